package vm

import (
	"strings"

	"github.com/chazu/blaze/classfile"
)

// ---------------------------------------------------------------------------
// Class: the linked runtime form of a class
// ---------------------------------------------------------------------------

// ClassState tracks a class through loading and initialization.
type ClassState uint8

const (
	StateLoaded ClassState = iota
	StateLinked
	StateInitializing
	StateInitialized
	StateFailed
)

var stateNames = [...]string{"loaded", "linked", "initializing", "initialized", "failed"}

func (s ClassState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Field is a declared field. Slot indexes the instance layout for instance
// fields and the declaring class's Statics for static ones.
type Field struct {
	Class      *Class
	Name       string
	Descriptor string
	Flags      uint16
	Type       classfile.FieldType
	Slot       int

	constantValue uint16
}

func (f *Field) IsStatic() bool { return f.Flags&classfile.AccStatic != 0 }

func (f *Field) String() string {
	return f.Class.Name + "." + f.Name + ":" + f.Descriptor
}

// Method is a declared method.
type Method struct {
	Class      *Class
	Name       string
	Descriptor string
	Flags      uint16
	Signature  classfile.MethodDescriptor
	Code       *classfile.CodeAttribute

	// ArgSlots counts local slots taken by the arguments, including the
	// receiver for instance methods.
	ArgSlots int

	sites map[int]*InlineCache
}

func (m *Method) IsStatic() bool { return m.Flags&classfile.AccStatic != 0 }
func (m *Method) IsPrivate() bool { return m.Flags&classfile.AccPrivate != 0 }
func (m *Method) IsAbstract() bool { return m.Flags&classfile.AccAbstract != 0 }
func (m *Method) IsNative() bool { return m.Flags&classfile.AccNative != 0 }

func (m *Method) String() string {
	return m.Class.Name + "." + m.Name + m.Descriptor
}

// Class is the linked, executable form of a class, interface or array type.
// Classes are owned by the Registry; everything else holds *Class handles.
type Class struct {
	Name       string
	Flags      uint16
	Super      *Class
	Interfaces []*Class
	SourceFile string

	Fields  []*Field  // declared
	Methods []*Method // declared
	methods map[methodKey]*Method

	// Link-time tables.
	VTable  *VTable
	Layout  []*Field // instance slots, superclass slots first
	Statics []Value

	State   ClassState
	initErr error

	Pool *ConstantPool

	// Array classes only.
	Component *Class // nil for primitive element types
	ElemType  byte   // descriptor character of the element type
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return c.Flags&classfile.AccInterface != 0
}

// IsAbstract reports whether c cannot be instantiated.
func (c *Class) IsAbstract() bool {
	return c.Flags&(classfile.AccAbstract|classfile.AccInterface) != 0
}

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool {
	return strings.HasPrefix(c.Name, "[")
}

// Package returns the runtime package name.
func (c *Class) Package() string {
	if i := strings.LastIndexByte(c.Name, '/'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// DeclaredMethod returns a method declared by c itself.
func (c *Class) DeclaredMethod(name, descriptor string) *Method {
	return c.methods[methodKey{name, descriptor}]
}

// DeclaredField returns a field declared by c itself.
func (c *Class) DeclaredField(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindField resolves a field reference: c's own fields, then its
// superinterfaces, then its superclass.
func (c *Class) FindField(name, descriptor string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		if f := cur.DeclaredField(name); f != nil && (descriptor == "" || f.Descriptor == descriptor) {
			return f
		}
		for _, iface := range cur.Interfaces {
			if f := iface.FindField(name, descriptor); f != nil {
				return f
			}
		}
	}
	return nil
}

// FindMethod resolves a method reference: c and its superclasses first,
// then superinterfaces. A concrete interface method is preferred over an
// abstract one.
func (c *Class) FindMethod(name, descriptor string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, descriptor); m != nil {
			return m
		}
	}
	var abstract *Method
	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			m := iface.findInterfaceMethod(name, descriptor)
			if m == nil {
				continue
			}
			if !m.IsAbstract() {
				return m
			}
			if abstract == nil {
				abstract = m
			}
		}
	}
	return abstract
}

func (c *Class) findInterfaceMethod(name, descriptor string) *Method {
	if m := c.DeclaredMethod(name, descriptor); m != nil {
		return m
	}
	var abstract *Method
	for _, iface := range c.Interfaces {
		m := iface.findInterfaceMethod(name, descriptor)
		if m == nil {
			continue
		}
		if !m.IsAbstract() {
			return m
		}
		if abstract == nil {
			abstract = m
		}
	}
	return abstract
}

// IsSubclassOf returns true if c is other or one of its subclasses.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Super {
		if current == other {
			return true
		}
	}
	return false
}

// Implements reports whether c, a superclass, or a superinterface of either
// is the interface iface.
func (c *Class) Implements(iface *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// IsAssignableTo reports whether a value of class c may be stored in a
// variable of type target.
func (c *Class) IsAssignableTo(target *Class) bool {
	if c == target {
		return true
	}
	if c.IsArray() {
		if !target.IsArray() {
			// Arrays are Objects; the root class is the only superclass.
			return target.Super == nil && !target.IsInterface()
		}
		if c.Component == nil || target.Component == nil {
			return false
		}
		return c.Component.IsAssignableTo(target.Component)
	}
	if target.IsInterface() {
		return c.Implements(target)
	}
	return c.IsSubclassOf(target)
}

// InstanceSlots returns the number of field slots of an instance.
func (c *Class) InstanceSlots() int {
	return len(c.Layout)
}

// FieldSlot returns the instance slot of the field name declared by
// declaring, or -1 when c has no such slot.
func (c *Class) FieldSlot(declaring *Class, name string) int {
	f := declaring.DeclaredField(name)
	if f == nil || f.IsStatic() || f.Slot >= len(c.Layout) || c.Layout[f.Slot] != f {
		return -1
	}
	return f.Slot
}

func (c *Class) String() string {
	return c.Name
}
