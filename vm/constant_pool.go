package vm

import (
	"fmt"

	"github.com/chazu/blaze/classfile"
)

// ConstantPool is the runtime view of a class's constant pool. Symbolic
// references are resolved on first use and the outcome, success or failure,
// is cached per entry and never retried.
type ConstantPool struct {
	class    *Class
	raw      classfile.ConstantPool
	registry *Registry
	cache    []resolution
}

type resolution struct {
	done   bool
	use    resolutionUse
	class  *Class
	field  *Field
	method *Method
	value  Value
	err    error
}

// resolutionUse says how an entry was resolved. Well-formed code uses each
// entry one way; a mismatched use is resolved again and not cached.
type resolutionUse uint8

const (
	useClass resolutionUse = iota + 1
	useField
	useMethod
	useInterfaceMethod
	useLiteral
)

func newConstantPool(c *Class, raw classfile.ConstantPool, r *Registry) *ConstantPool {
	return &ConstantPool{class: c, raw: raw, registry: r, cache: make([]resolution, len(raw))}
}

// Describe renders an entry for diagnostics.
func (cp *ConstantPool) Describe(index uint16) string {
	return cp.raw.Describe(index)
}

func (cp *ConstantPool) slot(index uint16, use resolutionUse) *resolution {
	if int(index) < len(cp.cache) {
		e := &cp.cache[index]
		if !e.done || e.use == use {
			e.use = use
			return e
		}
	}
	return &resolution{use: use}
}

// malformed reports a bad pool entry as a linkage failure.
func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrLinkage, err)
}

// ResolveClass resolves a Class entry, loading the class if needed.
func (cp *ConstantPool) ResolveClass(index uint16) (*Class, error) {
	e := cp.slot(index, useClass)
	if e.done {
		return e.class, e.err
	}
	e.done = true
	name, err := cp.raw.ClassName(index)
	if err != nil {
		e.err = malformed(err)
		return nil, e.err
	}
	e.class, e.err = cp.registry.LoadClass(name)
	return e.class, e.err
}

// ResolveField resolves a Fieldref entry.
func (cp *ConstantPool) ResolveField(index uint16) (*Field, error) {
	e := cp.slot(index, useField)
	if e.done {
		return e.field, e.err
	}
	e.done = true
	ref, err := cp.raw.MemberRef(index, classfile.TagFieldref)
	if err != nil {
		e.err = malformed(err)
		return nil, e.err
	}
	owner, err := cp.registry.LoadClass(ref.Class)
	if err != nil {
		e.err = err
		return nil, err
	}
	e.field = owner.FindField(ref.Name, ref.Descriptor)
	if e.field == nil {
		e.err = fmt.Errorf("%w: %s", ErrNoSuchField, ref)
	}
	return e.field, e.err
}

// ResolveMethod resolves a Methodref, or an InterfaceMethodref used by
// invokestatic or invokespecial.
func (cp *ConstantPool) ResolveMethod(index uint16) (*Method, error) {
	return cp.resolveMethod(index, useMethod, classfile.TagMethodref, classfile.TagInterfaceMethodref)
}

// ResolveInterfaceMethod resolves an InterfaceMethodref for invokeinterface.
func (cp *ConstantPool) ResolveInterfaceMethod(index uint16) (*Method, error) {
	return cp.resolveMethod(index, useInterfaceMethod, classfile.TagInterfaceMethodref)
}

func (cp *ConstantPool) resolveMethod(index uint16, use resolutionUse, tags ...classfile.Tag) (*Method, error) {
	e := cp.slot(index, use)
	if e.done {
		return e.method, e.err
	}
	e.done = true
	ref, err := cp.raw.MemberRef(index, tags...)
	if err != nil {
		e.err = malformed(err)
		return nil, e.err
	}
	owner, err := cp.registry.LoadClass(ref.Class)
	if err != nil {
		e.err = err
		return nil, err
	}
	if wantIface := ref.Kind == classfile.TagInterfaceMethodref; wantIface != owner.IsInterface() {
		e.err = fmt.Errorf("%w: incompatible class change: %s", ErrLinkage, ref)
		return nil, e.err
	}
	e.method = owner.FindMethod(ref.Name, ref.Descriptor)
	if e.method == nil {
		e.err = fmt.Errorf("%w: %s", ErrNoSuchMethod, ref)
	}
	return e.method, e.err
}

// Literal returns the value of a numeric or String entry, as loaded by ldc
// and used by ConstantValue attributes.
func (cp *ConstantPool) Literal(index uint16) (Value, error) {
	e := cp.slot(index, useLiteral)
	if e.done {
		return e.value, e.err
	}
	e.done = true
	c, err := cp.raw.Get(index)
	if err != nil {
		e.err = malformed(err)
		return Value{}, e.err
	}
	switch v := c.(type) {
	case classfile.Integer:
		e.value = Int(v.Value)
	case classfile.Float:
		e.value = Float(v.Value)
	case classfile.Long:
		e.value = Long(v.Value)
	case classfile.Double:
		e.value = Double(v.Value)
	case classfile.StringRef:
		s, err := cp.raw.StringValue(index)
		if err != nil {
			e.err = malformed(err)
			break
		}
		sc, err := cp.registry.StringClass()
		if err != nil {
			e.err = err
			break
		}
		e.value = RefValue(cp.registry.heap.Intern(sc, s))
	case classfile.ClassRef, classfile.MethodType, classfile.MethodHandle, classfile.DynamicRef:
		e.err = fmt.Errorf("%w: loadable constant %s", ErrUnsupportedOpcode, c.Tag())
	default:
		e.err = malformed(fmt.Errorf("%w: #%d (%s) is not loadable", classfile.ErrBadConstant, index, c.Tag()))
	}
	return e.value, e.err
}
