package classfile

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Field and method descriptors
// ---------------------------------------------------------------------------

// Base type characters used in descriptors.
const (
	TypeByte    byte = 'B'
	TypeChar    byte = 'C'
	TypeDouble  byte = 'D'
	TypeFloat   byte = 'F'
	TypeInt     byte = 'I'
	TypeLong    byte = 'J'
	TypeShort   byte = 'S'
	TypeBoolean byte = 'Z'
	TypeObject  byte = 'L'
	TypeArray   byte = '['
	TypeVoid    byte = 'V'
)

// FieldType is a parsed field descriptor.
type FieldType struct {
	Kind      byte       // one of the Type* characters (never TypeVoid)
	ClassName string     // for TypeObject
	Elem      *FieldType // for TypeArray
	raw       string
}

// String returns the descriptor text.
func (t FieldType) String() string {
	return t.raw
}

// IsReference reports whether values of this type are object references.
func (t FieldType) IsReference() bool {
	return t.Kind == TypeObject || t.Kind == TypeArray
}

// Slots returns the number of local variable slots a value of this type
// occupies: 2 for long and double, 1 otherwise.
func (t FieldType) Slots() int {
	if t.Kind == TypeLong || t.Kind == TypeDouble {
		return 2
	}
	return 1
}

// ParseFieldType parses a complete field descriptor such as "I",
// "Ljava/lang/String;" or "[[D".
func ParseFieldType(s string) (FieldType, error) {
	t, n, err := parseFieldType(s, 0)
	if err != nil {
		return FieldType{}, err
	}
	if n != len(s) {
		return FieldType{}, fmt.Errorf("%w: trailing characters in %q", ErrBadDescriptor, s)
	}
	return t, nil
}

func parseFieldType(s string, pos int) (FieldType, int, error) {
	if pos >= len(s) {
		return FieldType{}, pos, fmt.Errorf("%w: unexpected end of %q", ErrBadDescriptor, s)
	}
	start := pos
	switch c := s[pos]; c {
	case TypeByte, TypeChar, TypeDouble, TypeFloat, TypeInt, TypeLong, TypeShort, TypeBoolean:
		return FieldType{Kind: c, raw: s[pos : pos+1]}, pos + 1, nil
	case TypeObject:
		end := strings.IndexByte(s[pos:], ';')
		if end <= 1 {
			return FieldType{}, pos, fmt.Errorf("%w: unterminated class name in %q", ErrBadDescriptor, s)
		}
		end += pos
		return FieldType{Kind: c, ClassName: s[pos+1 : end], raw: s[start : end+1]}, end + 1, nil
	case TypeArray:
		dims := 0
		for i := pos; i < len(s) && s[i] == TypeArray; i++ {
			dims++
		}
		if dims > 255 {
			return FieldType{}, pos, fmt.Errorf("%w: too many array dimensions in %q", ErrBadDescriptor, s)
		}
		elem, next, err := parseFieldType(s, pos+1)
		if err != nil {
			return FieldType{}, pos, err
		}
		return FieldType{Kind: TypeArray, Elem: &elem, raw: s[start:next]}, next, nil
	default:
		return FieldType{}, pos, fmt.Errorf("%w: unexpected %q in %q", ErrBadDescriptor, c, s)
	}
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []FieldType
	Return *FieldType // nil for void
	raw    string
}

// String returns the descriptor text.
func (m MethodDescriptor) String() string {
	return m.raw
}

// ArgSlots returns the number of local variable slots the parameters occupy,
// not counting a receiver.
func (m MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += p.Slots()
	}
	return n
}

// ParseMethodDescriptor parses a descriptor such as "(I[JLjava/lang/String;)V".
func ParseMethodDescriptor(s string) (MethodDescriptor, error) {
	if len(s) < 3 || s[0] != '(' {
		return MethodDescriptor{}, fmt.Errorf("%w: %q is not a method descriptor", ErrBadDescriptor, s)
	}
	md := MethodDescriptor{raw: s}
	pos := 1
	for pos < len(s) && s[pos] != ')' {
		t, next, err := parseFieldType(s, pos)
		if err != nil {
			return MethodDescriptor{}, err
		}
		md.Params = append(md.Params, t)
		pos = next
	}
	if pos >= len(s) {
		return MethodDescriptor{}, fmt.Errorf("%w: missing ')' in %q", ErrBadDescriptor, s)
	}
	pos++
	if pos < len(s) && s[pos] == TypeVoid {
		if pos+1 != len(s) {
			return MethodDescriptor{}, fmt.Errorf("%w: trailing characters in %q", ErrBadDescriptor, s)
		}
		return md, nil
	}
	ret, next, err := parseFieldType(s, pos)
	if err != nil {
		return MethodDescriptor{}, err
	}
	if next != len(s) {
		return MethodDescriptor{}, fmt.Errorf("%w: trailing characters in %q", ErrBadDescriptor, s)
	}
	md.Return = &ret
	return md, nil
}
