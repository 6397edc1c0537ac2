package vm

import (
	"fmt"
)

// Ref addresses an object in the Heap. The zero Ref is null.
type Ref uint32

// NullRef is the null reference.
const NullRef Ref = 0

// ---------------------------------------------------------------------------
// Object: instances and arrays
// ---------------------------------------------------------------------------

// Object is a heap-allocated instance or array. Instances keep one slot per
// entry of their class layout; arrays keep one slot per element.
type Object struct {
	Class    *Class
	Fields   []Value // instances
	Elements []Value // arrays

	// Text is the payload of java/lang/String instances.
	Text string
}

// IsArray reports whether o is an array.
func (o *Object) IsArray() bool {
	return o.Class.IsArray()
}

// Len returns the array length.
func (o *Object) Len() int {
	return len(o.Elements)
}

// ---------------------------------------------------------------------------
// Heap: arena of objects addressed by Ref
// ---------------------------------------------------------------------------

// Heap is an append-only arena. Objects are never reclaimed; a run is
// expected to be short-lived.
type Heap struct {
	objects  []*Object
	interned map[string]Ref
}

// NewHeap creates an empty heap. Slot 0 is reserved for null.
func NewHeap() *Heap {
	return &Heap{
		objects:  make([]*Object, 1, 256),
		interned: make(map[string]Ref),
	}
}

func (h *Heap) alloc(o *Object) Ref {
	h.objects = append(h.objects, o)
	return Ref(len(h.objects) - 1)
}

// Len returns the number of live objects.
func (h *Heap) Len() int {
	return len(h.objects) - 1
}

// Get returns the object for ref, or nil for null and unknown refs.
func (h *Heap) Get(ref Ref) *Object {
	if ref == NullRef || int(ref) >= len(h.objects) {
		return nil
	}
	return h.objects[ref]
}

func (h *Heap) deref(ref Ref) (*Object, error) {
	o := h.Get(ref)
	if o == nil {
		return nil, ErrNullPointer
	}
	return o, nil
}

// AllocInstance allocates an instance of c with every field at its zero
// value.
func (h *Heap) AllocInstance(c *Class) Ref {
	fields := make([]Value, len(c.Layout))
	for i, f := range c.Layout {
		fields[i] = ZeroValue(f.Type.Kind)
	}
	return h.alloc(&Object{Class: c, Fields: fields})
}

// AllocArray allocates an array of the array class c.
func (h *Heap) AllocArray(c *Class, length int32) (Ref, error) {
	if length < 0 {
		return NullRef, fmt.Errorf("%w: %d", ErrNegativeArraySize, length)
	}
	elems := make([]Value, length)
	zero := ZeroValue(c.ElemType)
	for i := range elems {
		elems[i] = zero
	}
	return h.alloc(&Object{Class: c, Elements: elems}), nil
}

// NewString allocates a java/lang/String instance holding s.
func (h *Heap) NewString(stringClass *Class, s string) Ref {
	ref := h.AllocInstance(stringClass)
	h.objects[ref].Text = s
	return ref
}

// Intern returns the shared String instance for a literal.
func (h *Heap) Intern(stringClass *Class, s string) Ref {
	if ref, ok := h.interned[s]; ok {
		return ref
	}
	ref := h.NewString(stringClass, s)
	h.interned[s] = ref
	return ref
}

// StringValue returns the payload of a String reference.
func (h *Heap) StringValue(ref Ref) (string, bool) {
	o := h.Get(ref)
	if o == nil || o.Class.Name != "java/lang/String" {
		return "", false
	}
	return o.Text, true
}

// ---------------------------------------------------------------------------
// Field and element access
// ---------------------------------------------------------------------------

// GetField reads the field name declared by declaring from an instance.
func (h *Heap) GetField(ref Ref, declaring *Class, name string) (Value, error) {
	o, err := h.deref(ref)
	if err != nil {
		return Value{}, err
	}
	slot := o.Class.FieldSlot(declaring, name)
	if slot < 0 {
		return Value{}, fmt.Errorf("%w: %s.%s on %s", ErrNoSuchField, declaring.Name, name, o.Class.Name)
	}
	return o.Fields[slot], nil
}

// SetField writes the field name declared by declaring on an instance.
func (h *Heap) SetField(ref Ref, declaring *Class, name string, v Value) error {
	o, err := h.deref(ref)
	if err != nil {
		return err
	}
	slot := o.Class.FieldSlot(declaring, name)
	if slot < 0 {
		return fmt.Errorf("%w: %s.%s on %s", ErrNoSuchField, declaring.Name, name, o.Class.Name)
	}
	o.Fields[slot] = v
	return nil
}

func (h *Heap) array(ref Ref, index int32) (*Object, error) {
	o, err := h.deref(ref)
	if err != nil {
		return nil, err
	}
	if !o.IsArray() {
		panic(internalf("%s is not an array", o.Class.Name))
	}
	if index < 0 || int(index) >= len(o.Elements) {
		return nil, fmt.Errorf("%w: index %d out of bounds for length %d", ErrIndexOutOfBounds, index, len(o.Elements))
	}
	return o, nil
}

// Load reads an array element.
func (h *Heap) Load(ref Ref, index int32) (Value, error) {
	o, err := h.array(ref, index)
	if err != nil {
		return Value{}, err
	}
	return o.Elements[index], nil
}

// Store writes an array element. Narrow integer element types are
// truncated the way the matching store instruction does.
func (h *Heap) Store(ref Ref, index int32, v Value) error {
	o, err := h.array(ref, index)
	if err != nil {
		return err
	}
	switch o.Class.ElemType {
	case 'Z':
		v = Int(v.AsInt() & 1)
	case 'B':
		v = Int(int32(int8(v.AsInt())))
	case 'C':
		v = Int(int32(uint16(v.AsInt())))
	case 'S':
		v = Int(int32(int16(v.AsInt())))
	}
	o.Elements[index] = v
	return nil
}

// ArrayLength returns the length of an array.
func (h *Heap) ArrayLength(ref Ref) (int32, error) {
	o, err := h.deref(ref)
	if err != nil {
		return 0, err
	}
	return int32(len(o.Elements)), nil
}

// ClassOf returns the runtime class of a non-null reference.
func (h *Heap) ClassOf(ref Ref) (*Class, error) {
	o, err := h.deref(ref)
	if err != nil {
		return nil, err
	}
	return o.Class, nil
}
