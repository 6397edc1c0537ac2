package classfile

// Version is a class-file format version.
type Version struct {
	Major uint16
	Minor uint16
}

// ClassDescriptor is the parsed, pre-link form of one class file.
type ClassDescriptor struct {
	Version    Version
	Pool       ConstantPool
	Flags      uint16
	Name       string
	SuperName  string // empty only for java/lang/Object
	Interfaces []string
	Fields     []FieldInfo
	Methods    []MethodInfo
	SourceFile string
}

// IsInterface reports whether the descriptor declares an interface.
func (cd *ClassDescriptor) IsInterface() bool {
	return cd.Flags&AccInterface != 0
}

// Method returns the declared method with the given name and descriptor.
func (cd *ClassDescriptor) Method(name, descriptor string) *MethodInfo {
	for i := range cd.Methods {
		if cd.Methods[i].Name == name && cd.Methods[i].Descriptor == descriptor {
			return &cd.Methods[i]
		}
	}
	return nil
}

// Field returns the declared field with the given name.
func (cd *ClassDescriptor) Field(name string) *FieldInfo {
	for i := range cd.Fields {
		if cd.Fields[i].Name == name {
			return &cd.Fields[i]
		}
	}
	return nil
}

// FieldInfo describes a declared field.
type FieldInfo struct {
	Flags      uint16
	Name       string
	Descriptor string

	// ConstantValueIndex is the pool index from a ConstantValue attribute,
	// or 0 when the field has none.
	ConstantValueIndex uint16
}

// IsStatic reports whether the field is a class field.
func (f *FieldInfo) IsStatic() bool { return f.Flags&AccStatic != 0 }

// MethodInfo describes a declared method.
type MethodInfo struct {
	Flags      uint16
	Name       string
	Descriptor string
	Code       *CodeAttribute // nil for abstract and native methods
	Exceptions []string       // declared checked exceptions
}

func (m *MethodInfo) IsStatic() bool { return m.Flags&AccStatic != 0 }
func (m *MethodInfo) IsAbstract() bool { return m.Flags&AccAbstract != 0 }
func (m *MethodInfo) IsNative() bool { return m.Flags&AccNative != 0 }
func (m *MethodInfo) IsPrivate() bool { return m.Flags&AccPrivate != 0 }

// CodeAttribute holds a method body.
type CodeAttribute struct {
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	LineNumbers    []LineNumber
}

// ExceptionHandler is one exception table row. The range [StartPC, EndPC) is
// protected; CatchType 0 catches everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Covers reports whether pc lies inside the protected range.
func (h ExceptionHandler) Covers(pc int) bool {
	return pc >= int(h.StartPC) && pc < int(h.EndPC)
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LineFor returns the source line for pc, or 0 when unknown.
func (c *CodeAttribute) LineFor(pc int) int {
	line, best := 0, -1
	for _, ln := range c.LineNumbers {
		if int(ln.StartPC) <= pc && int(ln.StartPC) > best {
			best = int(ln.StartPC)
			line = int(ln.Line)
		}
	}
	return line
}
