package classfile

import (
	"fmt"
	"strconv"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Constant pool entries
// ---------------------------------------------------------------------------

// Constant is one constant pool entry.
type Constant interface {
	Tag() Tag
}

type Utf8 struct{ Value string }

func (Utf8) Tag() Tag { return TagUtf8 }

type Integer struct{ Value int32 }

func (Integer) Tag() Tag { return TagInteger }

type Float struct{ Value float32 }

func (Float) Tag() Tag { return TagFloat }

type Long struct{ Value int64 }

func (Long) Tag() Tag { return TagLong }

type Double struct{ Value float64 }

func (Double) Tag() Tag { return TagDouble }

// ClassRef names a class, interface or array type.
type ClassRef struct{ NameIndex uint16 }

func (ClassRef) Tag() Tag { return TagClass }

// StringRef is a string literal.
type StringRef struct{ StringIndex uint16 }

func (StringRef) Tag() Tag { return TagString }

// MemberRef is a Fieldref, Methodref or InterfaceMethodref; Kind tells which.
type MemberRef struct {
	Kind             Tag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (m MemberRef) Tag() Tag { return m.Kind }

type NameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (NameAndType) Tag() Tag { return TagNameAndType }

type MethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (MethodHandle) Tag() Tag { return TagMethodHandle }

type MethodType struct{ DescriptorIndex uint16 }

func (MethodType) Tag() Tag { return TagMethodType }

// DynamicRef is a Dynamic or InvokeDynamic entry; Kind tells which.
type DynamicRef struct {
	Kind                     Tag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (d DynamicRef) Tag() Tag { return d.Kind }

// NamedRef is a Module or Package entry; Kind tells which.
type NamedRef struct {
	Kind      Tag
	NameIndex uint16
}

func (n NamedRef) Tag() Tag { return n.Kind }

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool is indexed by the 1-based pool index. Index 0 and the slot
// following each Long or Double are nil.
//
// Entries are not cross-checked when parsed. Every accessor verifies the tag
// of the entries it follows, so a reference to the wrong kind of entry,
// including a reference cycle, surfaces as ErrBadConstant at first use.
type ConstantPool []Constant

// Len returns the pool count as written in the class file.
func (cp ConstantPool) Len() int {
	return len(cp)
}

// Get returns the entry at index.
func (cp ConstantPool) Get(index uint16) (Constant, error) {
	if index == 0 || int(index) >= len(cp) || cp[index] == nil {
		return nil, fmt.Errorf("%w: index %d out of range or unusable", ErrBadConstant, index)
	}
	return cp[index], nil
}

func (cp ConstantPool) expect(index uint16, tags ...Tag) (Constant, error) {
	c, err := cp.Get(index)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if c.Tag() == t {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: #%d is %s, want %v", ErrBadConstant, index, c.Tag(), tags)
}

// Utf8 returns the text of a Utf8 entry.
func (cp ConstantPool) Utf8(index uint16) (string, error) {
	c, err := cp.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.(Utf8).Value, nil
}

// ClassName returns the binary name referenced by a Class entry.
func (cp ConstantPool) ClassName(index uint16) (string, error) {
	c, err := cp.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return cp.Utf8(c.(ClassRef).NameIndex)
}

// StringValue returns the text of a String entry.
func (cp ConstantPool) StringValue(index uint16) (string, error) {
	c, err := cp.expect(index, TagString)
	if err != nil {
		return "", err
	}
	return cp.Utf8(c.(StringRef).StringIndex)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (cp ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	c, err := cp.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	nt := c.(NameAndType)
	if name, err = cp.Utf8(nt.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = cp.Utf8(nt.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// Member is a fully dereferenced field or method reference.
type Member struct {
	Kind       Tag
	Class      string
	Name       string
	Descriptor string
}

func (m Member) String() string {
	return m.Class + "." + m.Name + ":" + m.Descriptor
}

// MemberRef dereferences a Fieldref, Methodref or InterfaceMethodref. With no
// kinds given any of the three is accepted.
func (cp ConstantPool) MemberRef(index uint16, kinds ...Tag) (Member, error) {
	if len(kinds) == 0 {
		kinds = []Tag{TagFieldref, TagMethodref, TagInterfaceMethodref}
	}
	c, err := cp.expect(index, kinds...)
	if err != nil {
		return Member{}, err
	}
	ref := c.(MemberRef)
	m := Member{Kind: ref.Kind}
	if m.Class, err = cp.ClassName(ref.ClassIndex); err != nil {
		return Member{}, err
	}
	if m.Name, m.Descriptor, err = cp.NameAndType(ref.NameAndTypeIndex); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Describe renders an entry for disassembly listings.
func (cp ConstantPool) Describe(index uint16) string {
	c, err := cp.Get(index)
	if err != nil {
		return "<invalid>"
	}
	switch v := c.(type) {
	case Utf8:
		return strconv.Quote(v.Value)
	case Integer:
		return "int " + strconv.FormatInt(int64(v.Value), 10)
	case Float:
		return "float " + strconv.FormatFloat(float64(v.Value), 'g', -1, 32)
	case Long:
		return "long " + strconv.FormatInt(v.Value, 10)
	case Double:
		return "double " + strconv.FormatFloat(v.Value, 'g', -1, 64)
	case ClassRef:
		name, _ := cp.Utf8(v.NameIndex)
		return "class " + name
	case StringRef:
		s, _ := cp.Utf8(v.StringIndex)
		return "String " + strconv.Quote(s)
	case MemberRef:
		m, err := cp.MemberRef(index)
		if err != nil {
			return "<invalid " + v.Kind.String() + ">"
		}
		kind := "Field"
		if v.Kind != TagFieldref {
			kind = "Method"
		}
		return kind + " " + m.String()
	case NameAndType:
		name, desc, _ := cp.NameAndType(index)
		return name + ":" + desc
	}
	return c.Tag().String()
}

// ---------------------------------------------------------------------------
// Modified UTF-8
// ---------------------------------------------------------------------------

// decodeModifiedUTF8 decodes the class-file string encoding: NUL is written
// as two bytes and supplementary characters as surrogate pairs.
func decodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", fmt.Errorf("%w: NUL byte in Utf8 entry", ErrBadConstant)
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", fmt.Errorf("%w: truncated 2-byte sequence", ErrBadConstant)
			}
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", fmt.Errorf("%w: truncated 3-byte sequence", ErrBadConstant)
			}
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", fmt.Errorf("%w: invalid byte 0x%02x in Utf8 entry", ErrBadConstant, c)
		}
	}
	return string(utf16.Decode(units)), nil
}

// encodeModifiedUTF8 is the inverse of decodeModifiedUTF8.
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, byte(0xc0|u>>6), byte(0x80|u&0x3f))
		default:
			out = append(out, byte(0xe0|u>>12), byte(0x80|(u>>6)&0x3f), byte(0x80|u&0x3f))
		}
	}
	return out
}
