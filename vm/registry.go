package vm

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/classpath"
)

// ---------------------------------------------------------------------------
// Registry: class loading, linking and initialization
// ---------------------------------------------------------------------------

// Initializer runs a class's static initializer. The interpreter implements
// it; an uncaught guest throw is returned as *UncaughtException.
type Initializer interface {
	RunInitializer(c *Class, clinit *Method) error
}

// Registry owns every runtime class. There is at most one Class per name,
// and a name that failed to load keeps failing with the same error.
type Registry struct {
	source   classpath.Source
	heap     *Heap
	classes  map[string]*Class
	failures map[string]error
	loading  map[string]bool
	init     Initializer
	log      commonlog.Logger
}

// NewRegistry creates a registry loading class bytes from source. String
// constants are allocated on heap.
func NewRegistry(source classpath.Source, heap *Heap) *Registry {
	return &Registry{
		source:   source,
		heap:     heap,
		classes:  make(map[string]*Class),
		failures: make(map[string]error),
		loading:  make(map[string]bool),
		log:      commonlog.GetLogger("blaze.registry"),
	}
}

// SetInitializer installs the static initializer runner.
func (r *Registry) SetInitializer(i Initializer) {
	r.init = i
}

// Lookup returns an already loaded class without loading it.
func (r *Registry) Lookup(name string) *Class {
	return r.classes[name]
}

// Classes returns every loaded class ordered by name.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadClass returns the class named name, loading and linking it and its
// supertypes on first use.
func (r *Registry) LoadClass(name string) (*Class, error) {
	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	if err, ok := r.failures[name]; ok {
		return nil, err
	}
	if r.loading[name] {
		return nil, fmt.Errorf("%w: class circularity through %s", ErrLinkage, name)
	}
	r.loading[name] = true
	defer delete(r.loading, name)

	var c *Class
	var err error
	if strings.HasPrefix(name, "[") {
		c, err = r.defineArray(name)
	} else {
		c, err = r.define(name)
	}
	if err != nil {
		r.log.Warningf("cannot load %s: %s", name, err)
		r.failures[name] = err
		return nil, err
	}
	r.classes[name] = c
	return c, nil
}

// StringClass returns java/lang/String.
func (r *Registry) StringClass() (*Class, error) {
	return r.LoadClass("java/lang/String")
}

// ArrayOf returns the array class whose elements are of class c.
func (r *Registry) ArrayOf(c *Class) (*Class, error) {
	if c.IsArray() {
		return r.LoadClass("[" + c.Name)
	}
	return r.LoadClass("[L" + c.Name + ";")
}

func (r *Registry) define(name string) (*Class, error) {
	data, err := r.source.Find(name)
	if errors.Is(err, classpath.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrLinkage, name, err)
	}
	cd, err := classfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLinkage, name, err)
	}
	if cd.Name != name {
		return nil, fmt.Errorf("%w: %s: class file declares %s", ErrClassNotFound, name, cd.Name)
	}

	c := &Class{
		Name:       cd.Name,
		Flags:      cd.Flags,
		SourceFile: cd.SourceFile,
		methods:    make(map[methodKey]*Method),
		State:      StateLoaded,
	}
	c.Pool = newConstantPool(c, cd.Pool, r)

	if cd.SuperName != "" {
		super, err := r.LoadClass(cd.SuperName)
		if err != nil {
			return nil, fmt.Errorf("superclass of %s: %w", name, err)
		}
		if super.IsInterface() || super.Flags&classfile.AccFinal != 0 || super.IsArray() {
			return nil, fmt.Errorf("%w: %s cannot extend %s", ErrLinkage, name, super.Name)
		}
		c.Super = super
	}
	for _, iname := range cd.Interfaces {
		iface, err := r.LoadClass(iname)
		if err != nil {
			return nil, fmt.Errorf("superinterface of %s: %w", name, err)
		}
		if !iface.IsInterface() {
			return nil, fmt.Errorf("%w: %s implements non-interface %s", ErrLinkage, name, iname)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	for _, fi := range cd.Fields {
		ft, err := classfile.ParseFieldType(fi.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrLinkage, name, fi.Name, err)
		}
		c.Fields = append(c.Fields, &Field{
			Class:         c,
			Name:          fi.Name,
			Descriptor:    fi.Descriptor,
			Flags:         fi.Flags,
			Type:          ft,
			constantValue: fi.ConstantValueIndex,
		})
	}
	for i := range cd.Methods {
		mi := &cd.Methods[i]
		sig, err := classfile.ParseMethodDescriptor(mi.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrLinkage, name, mi.Name, err)
		}
		m := &Method{
			Class:      c,
			Name:       mi.Name,
			Descriptor: mi.Descriptor,
			Flags:      mi.Flags,
			Signature:  sig,
			Code:       mi.Code,
			ArgSlots:   sig.ArgSlots(),
		}
		if !m.IsStatic() {
			m.ArgSlots++
		}
		c.Methods = append(c.Methods, m)
		c.methods[methodKey{m.Name, m.Descriptor}] = m
	}

	r.link(c)
	r.log.Infof("loaded %s (%d fields, %d methods)", name, len(c.Fields), len(c.Methods))
	return c, nil
}

// defineArray creates an array class. Array classes have no initializer
// and are ready for use as soon as they exist.
func (r *Registry) defineArray(name string) (*Class, error) {
	ft, err := classfile.ParseFieldType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	object, err := r.LoadClass("java/lang/Object")
	if err != nil {
		return nil, err
	}
	c := &Class{
		Name:     name,
		Flags:    classfile.AccPublic | classfile.AccFinal,
		Super:    object,
		ElemType: ft.Elem.Kind,
		methods:  make(map[methodKey]*Method),
		State:    StateInitialized,
	}
	switch ft.Elem.Kind {
	case classfile.TypeObject:
		c.Component, err = r.LoadClass(ft.Elem.ClassName)
	case classfile.TypeArray:
		c.Component, err = r.LoadClass(ft.Elem.String())
	}
	if err != nil {
		return nil, err
	}
	c.VTable = NewVTable(c, object.VTable)
	r.log.Debugf("created array class %s", name)
	return c, nil
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// link lays out instance and static fields and builds the vtable.
func (r *Registry) link(c *Class) {
	var parent *VTable
	if c.Super != nil {
		c.Layout = append(c.Layout, c.Super.Layout...)
		parent = c.Super.VTable
	}
	for _, f := range c.Fields {
		if f.IsStatic() {
			f.Slot = len(c.Statics)
			c.Statics = append(c.Statics, ZeroValue(f.Type.Kind))
			continue
		}
		f.Slot = len(c.Layout)
		c.Layout = append(c.Layout, f)
	}

	vt := NewVTable(c, parent)
	for _, m := range c.Methods {
		if m.IsStatic() || m.IsPrivate() || strings.HasPrefix(m.Name, "<") {
			continue
		}
		if i := vt.IndexOf(m.Name, m.Descriptor); i >= 0 && overrides(m, vt.At(i)) {
			vt.set(i, m)
			continue
		}
		vt.add(m)
	}
	for _, iface := range allInterfaces(c) {
		for _, m := range iface.Methods {
			if m.IsStatic() || m.IsPrivate() || strings.HasPrefix(m.Name, "<") {
				continue
			}
			i := vt.IndexOf(m.Name, m.Descriptor)
			switch {
			case i < 0:
				vt.add(m)
			case vt.At(i).IsAbstract() && !m.IsAbstract() && vt.At(i).Class.IsInterface():
				// A default method fills an inherited abstract interface slot.
				vt.set(i, m)
			}
		}
	}
	c.VTable = vt
	c.State = StateLinked
	r.log.Debugf("linked %s: %d instance slots, %d statics, %d vtable entries",
		c.Name, len(c.Layout), len(c.Statics), vt.Len())
}

// allInterfaces returns every superinterface of c, nearest first, without
// duplicates.
func allInterfaces(c *Class) []*Class {
	var out []*Class
	seen := make(map[*Class]bool)
	var visit func(*Class)
	visit = func(i *Class) {
		if seen[i] {
			return
		}
		seen[i] = true
		out = append(out, i)
		for _, s := range i.Interfaces {
			visit(s)
		}
	}
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			visit(i)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// EnsureInitialized runs c's static initialization if it has not run. A
// class already initializing is treated as initialized, which lets a static
// initializer use its own class. A failed class stays failed.
func (r *Registry) EnsureInitialized(c *Class) error {
	switch c.State {
	case StateInitialized, StateInitializing:
		return nil
	case StateFailed:
		return c.initErr
	case StateLoaded:
		panic(internalf("initializing unlinked class %s", c.Name))
	}

	c.State = StateInitializing
	r.log.Debugf("initializing %s", c.Name)

	fail := func(err error) error {
		c.State = StateFailed
		c.initErr = fmt.Errorf("%w: %s", errPreviouslyFailed, c.Name)
		r.log.Warningf("initialization of %s failed: %s", c.Name, err)
		return err
	}

	if c.Super != nil && !c.IsInterface() {
		if err := r.EnsureInitialized(c.Super); err != nil {
			return fail(err)
		}
	}

	for _, f := range c.Fields {
		if !f.IsStatic() || f.constantValue == 0 {
			continue
		}
		v, err := c.Pool.Literal(f.constantValue)
		if err != nil {
			return fail(fmt.Errorf("constant value of %s: %w", f, err))
		}
		c.Statics[f.Slot] = v
	}

	if clinit := c.DeclaredMethod(classfile.StaticInitializerName, "()V"); clinit != nil {
		if r.init == nil {
			return fail(fmt.Errorf("%w: no initializer installed for %s", ErrInternal, c.Name))
		}
		if err := r.init.RunInitializer(c, clinit); err != nil {
			if errors.Is(err, ErrUncaught) {
				err = fmt.Errorf("%w: %s: %w", errInitializerThrew, c.Name, err)
			}
			return fail(err)
		}
	}

	c.State = StateInitialized
	r.log.Infof("initialized %s", c.Name)
	return nil
}
