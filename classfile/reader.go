package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Parse: bytes -> ClassDescriptor
// ---------------------------------------------------------------------------

// Parse decodes a class file. It reads the input in one pass and fails with
// an error wrapping ErrMalformed on any inconsistency, including trailing
// bytes after the last attribute.
func Parse(data []byte) (*ClassDescriptor, error) {
	r := &reader{data: data}
	cd, err := r.classFile()
	if err != nil {
		return nil, err
	}
	if r.offset != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.data)-r.offset)
	}
	return cd, nil
}

type reader struct {
	data   []byte
	offset int
}

func (r *reader) need(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncated, n, r.offset)
	}
	return nil
}

func (r *reader) u1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

func (r *reader) u2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *reader) u4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *reader) u8() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *reader) classFile() (*ClassDescriptor, error) {
	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: got 0x%08X", ErrBadMagic, magic)
	}

	cd := &ClassDescriptor{}
	if cd.Version.Minor, err = r.u2(); err != nil {
		return nil, err
	}
	if cd.Version.Major, err = r.u2(); err != nil {
		return nil, err
	}
	if cd.Version.Major < MinMajorVersion || cd.Version.Major > MaxMajorVersion {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, cd.Version.Major, cd.Version.Minor)
	}

	if cd.Pool, err = r.constantPool(); err != nil {
		return nil, err
	}

	if cd.Flags, err = r.u2(); err != nil {
		return nil, err
	}
	thisIndex, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cd.Name, err = cd.Pool.ClassName(thisIndex); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	superIndex, err := r.u2()
	if err != nil {
		return nil, err
	}
	if superIndex == 0 {
		if cd.Name != "java/lang/Object" {
			return nil, fmt.Errorf("%w: %s has no superclass", ErrMalformed, cd.Name)
		}
	} else if cd.SuperName, err = cd.Pool.ClassName(superIndex); err != nil {
		return nil, fmt.Errorf("super_class: %w", err)
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := cd.Pool.ClassName(idx)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		cd.Interfaces = append(cd.Interfaces, name)
	}

	if cd.Fields, err = r.fields(cd.Pool); err != nil {
		return nil, err
	}
	if cd.Methods, err = r.methods(cd.Pool); err != nil {
		return nil, err
	}

	err = r.attributes(cd.Pool, func(name string, body []byte) error {
		if name == AttrSourceFile {
			if len(body) != 2 {
				return fmt.Errorf("%w: SourceFile length %d", ErrMalformed, len(body))
			}
			sf, err := cd.Pool.Utf8(binary.BigEndian.Uint16(body))
			if err != nil {
				return err
			}
			cd.SourceFile = sf
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cd, nil
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

func (r *reader) constantPool() (ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: constant pool count 0", ErrBadConstant)
	}
	pool := make(ConstantPool, count)
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		c, err := r.constant(Tag(tag))
		if err != nil {
			return nil, fmt.Errorf("constant #%d: %w", i, err)
		}
		pool[i] = c
		if tag == uint8(TagLong) || tag == uint8(TagDouble) {
			// Eight-byte constants take two slots; the second stays nil.
			i++
			if i >= int(count) {
				return nil, fmt.Errorf("%w: 8-byte constant #%d overruns pool", ErrBadConstant, i-1)
			}
		}
	}
	return pool, nil
}

func (r *reader) constant(tag Tag) (Constant, error) {
	switch tag {
	case TagUtf8:
		n, err := r.u2()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		s, err := decodeModifiedUTF8(b)
		if err != nil {
			return nil, err
		}
		return Utf8{Value: s}, nil
	case TagInteger:
		v, err := r.u4()
		return Integer{Value: int32(v)}, err
	case TagFloat:
		v, err := r.u4()
		return Float{Value: math.Float32frombits(v)}, err
	case TagLong:
		v, err := r.u8()
		return Long{Value: int64(v)}, err
	case TagDouble:
		v, err := r.u8()
		return Double{Value: math.Float64frombits(v)}, err
	case TagClass:
		v, err := r.u2()
		return ClassRef{NameIndex: v}, err
	case TagString:
		v, err := r.u2()
		return StringRef{StringIndex: v}, err
	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		c, err := r.u2()
		if err != nil {
			return nil, err
		}
		nt, err := r.u2()
		return MemberRef{Kind: tag, ClassIndex: c, NameAndTypeIndex: nt}, err
	case TagNameAndType:
		n, err := r.u2()
		if err != nil {
			return nil, err
		}
		d, err := r.u2()
		return NameAndType{NameIndex: n, DescriptorIndex: d}, err
	case TagMethodHandle:
		k, err := r.u1()
		if err != nil {
			return nil, err
		}
		idx, err := r.u2()
		return MethodHandle{ReferenceKind: k, ReferenceIndex: idx}, err
	case TagMethodType:
		v, err := r.u2()
		return MethodType{DescriptorIndex: v}, err
	case TagDynamic, TagInvokeDynamic:
		b, err := r.u2()
		if err != nil {
			return nil, err
		}
		nt, err := r.u2()
		return DynamicRef{Kind: tag, BootstrapMethodAttrIndex: b, NameAndTypeIndex: nt}, err
	case TagModule, TagPackage:
		v, err := r.u2()
		return NamedRef{Kind: tag, NameIndex: v}, err
	}
	return nil, fmt.Errorf("%w: unknown tag %d", ErrBadConstant, tag)
}

// ---------------------------------------------------------------------------
// Members and attributes
// ---------------------------------------------------------------------------

// attributes reads an attribute table, handing each body to fn. Bodies are
// sub-slices of the input; fn must not retain them past the call unless it
// copies.
func (r *reader) attributes(pool ConstantPool, fn func(name string, body []byte) error) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		nameIndex, err := r.u2()
		if err != nil {
			return err
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return fmt.Errorf("attribute name: %w", err)
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if uint64(length) > uint64(len(r.data)-r.offset) {
			return fmt.Errorf("%w: attribute %s length %d exceeds remaining %d bytes",
				ErrTruncated, name, length, len(r.data)-r.offset)
		}
		body, err := r.bytes(int(length))
		if err != nil {
			return err
		}
		if err := fn(name, body); err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
	}
	return nil
}

func (r *reader) member(pool ConstantPool) (flags uint16, name, desc string, err error) {
	if flags, err = r.u2(); err != nil {
		return
	}
	nameIndex, err := r.u2()
	if err != nil {
		return
	}
	descIndex, err := r.u2()
	if err != nil {
		return
	}
	if name, err = pool.Utf8(nameIndex); err != nil {
		return
	}
	desc, err = pool.Utf8(descIndex)
	return
}

func (r *reader) fields(pool ConstantPool) ([]FieldInfo, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldInfo, 0, count)
	for i := 0; i < int(count); i++ {
		flags, name, desc, err := r.member(pool)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		if _, err := ParseFieldType(desc); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		f := FieldInfo{Flags: flags, Name: name, Descriptor: desc}
		err = r.attributes(pool, func(attr string, body []byte) error {
			if attr != AttrConstantValue {
				return nil
			}
			if len(body) != 2 {
				return fmt.Errorf("%w: ConstantValue length %d", ErrMalformed, len(body))
			}
			f.ConstantValueIndex = binary.BigEndian.Uint16(body)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (r *reader) methods(pool ConstantPool) ([]MethodInfo, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	methods := make([]MethodInfo, 0, count)
	for i := 0; i < int(count); i++ {
		flags, name, desc, err := r.member(pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		if _, err := ParseMethodDescriptor(desc); err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}
		m := MethodInfo{Flags: flags, Name: name, Descriptor: desc}
		err = r.attributes(pool, func(attr string, body []byte) error {
			switch attr {
			case AttrCode:
				code, err := parseCode(pool, body)
				if err != nil {
					return err
				}
				m.Code = code
			case AttrExceptions:
				names, err := parseExceptions(pool, body)
				if err != nil {
					return err
				}
				m.Exceptions = names
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", name, desc, err)
		}
		if m.Code == nil && flags&(AccAbstract|AccNative) == 0 {
			return nil, fmt.Errorf("%w: method %s%s has no Code attribute", ErrMalformed, name, desc)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func parseCode(pool ConstantPool, body []byte) (*CodeAttribute, error) {
	r := &reader{data: body}
	c := &CodeAttribute{}
	var err error
	if c.MaxStack, err = r.u2(); err != nil {
		return nil, err
	}
	if c.MaxLocals, err = r.u2(); err != nil {
		return nil, err
	}
	codeLen, err := r.u4()
	if err != nil {
		return nil, err
	}
	if codeLen == 0 || codeLen >= 1<<16 {
		return nil, fmt.Errorf("%w: code length %d", ErrMalformed, codeLen)
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return nil, err
	}
	c.Code = append([]byte(nil), code...)

	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		var h ExceptionHandler
		if h.StartPC, err = r.u2(); err != nil {
			return nil, err
		}
		if h.EndPC, err = r.u2(); err != nil {
			return nil, err
		}
		if h.HandlerPC, err = r.u2(); err != nil {
			return nil, err
		}
		if h.CatchType, err = r.u2(); err != nil {
			return nil, err
		}
		if h.StartPC >= h.EndPC || uint32(h.EndPC) > codeLen || uint32(h.HandlerPC) >= codeLen {
			return nil, fmt.Errorf("%w: exception handler %d out of code range", ErrMalformed, i)
		}
		c.ExceptionTable = append(c.ExceptionTable, h)
	}

	err = r.attributes(pool, func(name string, b []byte) error {
		if name != AttrLineNumberTable {
			return nil
		}
		lr := &reader{data: b}
		n, err := lr.u2()
		if err != nil {
			return err
		}
		if len(b) != 2+4*int(n) {
			return fmt.Errorf("%w: LineNumberTable length %d for %d entries", ErrMalformed, len(b), n)
		}
		for j := 0; j < int(n); j++ {
			pc, _ := lr.u2()
			line, _ := lr.u2()
			c.LineNumbers = append(c.LineNumbers, LineNumber{StartPC: pc, Line: line})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.offset != len(body) {
		return nil, fmt.Errorf("%w: Code attribute has %d trailing bytes", ErrMalformed, len(body)-r.offset)
	}
	return c, nil
}

func parseExceptions(pool ConstantPool, body []byte) ([]string, error) {
	r := &reader{data: body}
	n, err := r.u2()
	if err != nil {
		return nil, err
	}
	if len(body) != 2+2*int(n) {
		return nil, fmt.Errorf("%w: Exceptions length %d for %d entries", ErrMalformed, len(body), n)
	}
	names := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		idx, _ := r.u2()
		name, err := pool.ClassName(idx)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
