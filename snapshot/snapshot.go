// Package snapshot encodes parsed class descriptors as canonical CBOR.
//
// A snapshot flattens a ClassDescriptor: constant pool references are
// rendered to text and catch types become class names, so a snapshot can be
// inspected without the pool. Canonical encoding makes equal classes encode
// to equal bytes, which Digest relies on.
package snapshot

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/blaze/classfile"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Class is the flattened form of a ClassDescriptor.
type Class struct {
	Major      uint16     `cbor:"1,keyasint"`
	Minor      uint16     `cbor:"2,keyasint"`
	Flags      uint16     `cbor:"3,keyasint"`
	Name       string     `cbor:"4,keyasint"`
	Super      string     `cbor:"5,keyasint,omitempty"`
	Interfaces []string   `cbor:"6,keyasint,omitempty"`
	Constants  []Constant `cbor:"7,keyasint,omitempty"`
	Fields     []Field    `cbor:"8,keyasint,omitempty"`
	Methods    []Method   `cbor:"9,keyasint,omitempty"`
	SourceFile string     `cbor:"10,keyasint,omitempty"`
}

// Constant is one populated constant pool slot.
type Constant struct {
	Index uint16 `cbor:"1,keyasint"`
	Tag   string `cbor:"2,keyasint"`
	Text  string `cbor:"3,keyasint"`
}

// Field is a declared field. Constant holds the rendered ConstantValue.
type Field struct {
	Flags      uint16 `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	Descriptor string `cbor:"3,keyasint"`
	Constant   string `cbor:"4,keyasint,omitempty"`
}

// Method is a declared method. Code is nil for abstract and native methods.
type Method struct {
	Flags      uint16   `cbor:"1,keyasint"`
	Name       string   `cbor:"2,keyasint"`
	Descriptor string   `cbor:"3,keyasint"`
	Code       *Code    `cbor:"4,keyasint,omitempty"`
	Throws     []string `cbor:"5,keyasint,omitempty"`
}

// Code is a method body.
type Code struct {
	MaxStack  uint16    `cbor:"1,keyasint"`
	MaxLocals uint16    `cbor:"2,keyasint"`
	Bytes     []byte    `cbor:"3,keyasint"`
	Handlers  []Handler `cbor:"4,keyasint,omitempty"`
	Lines     []Line    `cbor:"5,keyasint,omitempty"`
}

// Handler is an exception table row. An empty CatchType catches everything.
type Handler struct {
	Start     uint16 `cbor:"1,keyasint"`
	End       uint16 `cbor:"2,keyasint"`
	Handler   uint16 `cbor:"3,keyasint"`
	CatchType string `cbor:"4,keyasint,omitempty"`
}

// Line maps a bytecode offset to a source line.
type Line struct {
	PC   uint16 `cbor:"1,keyasint"`
	Line uint16 `cbor:"2,keyasint"`
}

// FromDescriptor flattens cd.
func FromDescriptor(cd *classfile.ClassDescriptor) (*Class, error) {
	s := &Class{
		Major:      cd.Version.Major,
		Minor:      cd.Version.Minor,
		Flags:      cd.Flags,
		Name:       cd.Name,
		Super:      cd.SuperName,
		Interfaces: cd.Interfaces,
		SourceFile: cd.SourceFile,
	}
	for i, c := range cd.Pool {
		if c == nil {
			continue
		}
		s.Constants = append(s.Constants, Constant{
			Index: uint16(i),
			Tag:   c.Tag().String(),
			Text:  cd.Pool.Describe(uint16(i)),
		})
	}
	for _, f := range cd.Fields {
		sf := Field{Flags: f.Flags, Name: f.Name, Descriptor: f.Descriptor}
		if f.ConstantValueIndex != 0 {
			sf.Constant = cd.Pool.Describe(f.ConstantValueIndex)
		}
		s.Fields = append(s.Fields, sf)
	}
	for _, m := range cd.Methods {
		sm := Method{Flags: m.Flags, Name: m.Name, Descriptor: m.Descriptor, Throws: m.Exceptions}
		if m.Code != nil {
			code, err := flattenCode(cd.Pool, m.Code)
			if err != nil {
				return nil, fmt.Errorf("snapshot: %s.%s%s: %w", cd.Name, m.Name, m.Descriptor, err)
			}
			sm.Code = code
		}
		s.Methods = append(s.Methods, sm)
	}
	return s, nil
}

func flattenCode(pool classfile.ConstantPool, c *classfile.CodeAttribute) (*Code, error) {
	code := &Code{MaxStack: c.MaxStack, MaxLocals: c.MaxLocals, Bytes: c.Code}
	for _, h := range c.ExceptionTable {
		sh := Handler{Start: h.StartPC, End: h.EndPC, Handler: h.HandlerPC}
		if h.CatchType != 0 {
			name, err := pool.ClassName(h.CatchType)
			if err != nil {
				return nil, err
			}
			sh.CatchType = name
		}
		code.Handlers = append(code.Handlers, sh)
	}
	for _, ln := range c.LineNumbers {
		code.Lines = append(code.Lines, Line{PC: ln.StartPC, Line: ln.Line})
	}
	return code, nil
}

// Marshal serializes a snapshot to canonical CBOR bytes.
func Marshal(s *Class) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Class, error) {
	var s Class
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal class: %w", err)
	}
	return &s, nil
}

// Encode parses class-file bytes and returns the canonical snapshot encoding.
func Encode(classBytes []byte) ([]byte, error) {
	cd, err := classfile.Parse(classBytes)
	if err != nil {
		return nil, err
	}
	s, err := FromDescriptor(cd)
	if err != nil {
		return nil, err
	}
	return Marshal(s)
}

// Digest returns the SHA-256 of the canonical encoding of s.
func Digest(s *Class) ([32]byte, error) {
	data, err := Marshal(s)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Method returns the method with the given name and descriptor, or nil.
func (s *Class) Method(name, descriptor string) *Method {
	for i := range s.Methods {
		if s.Methods[i].Name == name && s.Methods[i].Descriptor == descriptor {
			return &s.Methods[i]
		}
	}
	return nil
}
