package vm

import "github.com/chazu/blaze/classfile"

// VTable is the virtual dispatch table of a class: every instance method a
// receiver of the class can run, keyed by (name, descriptor), with overrides
// already applied.
//
// A subclass table starts as a copy of its superclass table, so an inherited
// method keeps its index down the hierarchy.
type VTable struct {
	class   *Class
	methods []*Method
	index   map[methodKey]int
}

type methodKey struct {
	name, descriptor string
}

// NewVTable creates a table for class, copying parent's entries.
func NewVTable(class *Class, parent *VTable) *VTable {
	vt := &VTable{class: class, index: make(map[methodKey]int)}
	if parent != nil {
		vt.methods = make([]*Method, len(parent.methods), len(parent.methods)+8)
		copy(vt.methods, parent.methods)
		for k, i := range parent.index {
			vt.index[k] = i
		}
	}
	return vt
}

// Lookup returns the method selected for (name, descriptor), or nil.
func (vt *VTable) Lookup(name, descriptor string) *Method {
	if i, ok := vt.index[methodKey{name, descriptor}]; ok {
		return vt.methods[i]
	}
	return nil
}

// IndexOf returns the slot of (name, descriptor), or -1.
func (vt *VTable) IndexOf(name, descriptor string) int {
	if i, ok := vt.index[methodKey{name, descriptor}]; ok {
		return i
	}
	return -1
}

// At returns the method in slot i.
func (vt *VTable) At(i int) *Method {
	return vt.methods[i]
}

// Len returns the number of slots.
func (vt *VTable) Len() int {
	return len(vt.methods)
}

// Class returns the class this table belongs to.
func (vt *VTable) Class() *Class {
	return vt.class
}

// Methods returns the slots in order.
func (vt *VTable) Methods() []*Method {
	return vt.methods
}

func (vt *VTable) set(i int, m *Method) {
	vt.methods[i] = m
}

func (vt *VTable) add(m *Method) int {
	i := len(vt.methods)
	vt.methods = append(vt.methods, m)
	vt.index[methodKey{m.Name, m.Descriptor}] = i
	return i
}

// overrides reports whether m, declared in a subclass, replaces the
// inherited method old. Private and static methods never override, and a
// package-private method is only visible inside its runtime package.
func overrides(m, old *Method) bool {
	if m.IsPrivate() || m.IsStatic() || old.IsPrivate() {
		return false
	}
	if old.Flags&(classfile.AccPublic|classfile.AccProtected) != 0 {
		return true
	}
	return old.Class.Package() == m.Class.Package()
}
