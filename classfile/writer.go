package classfile

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/blaze/bytecode"
)

// ---------------------------------------------------------------------------
// Builder: assembles class files in memory
// ---------------------------------------------------------------------------

type poolKey struct {
	tag  Tag
	text string
	a, b uint16
	bits uint64
}

// Builder produces class-file bytes. Pool helpers deduplicate entries and
// return their index. Errors are sticky and reported by Bytes.
type Builder struct {
	version    Version
	flags      uint16
	pool       []Constant
	index      map[poolKey]uint16
	this       uint16
	super      uint16
	interfaces []uint16
	fields     []*fieldEntry
	methods    []*MethodBuilder
	sourceFile uint16
	err        error
}

type fieldEntry struct {
	flags      uint16
	name, desc uint16
	constant   uint16
}

// NewBuilder starts a public class. An empty super is only valid for the
// root class.
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		version: Version{Major: DefaultMajorVersion},
		flags:   AccPublic | AccSuper,
		pool:    []Constant{nil},
		index:   make(map[poolKey]uint16),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) add(key poolKey, c Constant) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	width := 1
	if key.tag == TagLong || key.tag == TagDouble {
		width = 2
	}
	if len(b.pool)+width > math.MaxUint16 {
		b.fail(fmt.Errorf("%w: constant pool overflow", ErrBadConstant))
		return 0
	}
	idx := uint16(len(b.pool))
	b.pool = append(b.pool, c)
	if width == 2 {
		b.pool = append(b.pool, nil)
	}
	b.index[key] = idx
	return idx
}

// SetAccess replaces the class access flags.
func (b *Builder) SetAccess(flags uint16) *Builder {
	b.flags = flags
	return b
}

// SetVersion sets the emitted format version.
func (b *Builder) SetVersion(major, minor uint16) *Builder {
	b.version = Version{Major: major, Minor: minor}
	return b
}

// SetSourceFile records a SourceFile attribute.
func (b *Builder) SetSourceFile(name string) *Builder {
	b.sourceFile = b.Utf8(name)
	return b
}

// AddInterface declares a superinterface.
func (b *Builder) AddInterface(name string) *Builder {
	b.interfaces = append(b.interfaces, b.Class(name))
	return b
}

// Pool helpers.

func (b *Builder) Utf8(s string) uint16 {
	if len(encodeModifiedUTF8(s)) > math.MaxUint16 {
		b.fail(fmt.Errorf("%w: string too long", ErrBadConstant))
		return 0
	}
	return b.add(poolKey{tag: TagUtf8, text: s}, Utf8{Value: s})
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.add(poolKey{tag: TagClass, a: n}, ClassRef{NameIndex: n})
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.add(poolKey{tag: TagString, a: n}, StringRef{StringIndex: n})
}

func (b *Builder) Int(v int32) uint16 {
	return b.add(poolKey{tag: TagInteger, bits: uint64(uint32(v))}, Integer{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	return b.add(poolKey{tag: TagFloat, bits: uint64(math.Float32bits(v))}, Float{Value: v})
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(poolKey{tag: TagLong, bits: uint64(v)}, Long{Value: v})
}

func (b *Builder) Double(v float64) uint16 {
	return b.add(poolKey{tag: TagDouble, bits: math.Float64bits(v)}, Double{Value: v})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.add(poolKey{tag: TagNameAndType, a: n, b: d}, NameAndType{NameIndex: n, DescriptorIndex: d})
}

func (b *Builder) member(kind Tag, class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	return b.add(poolKey{tag: kind, a: c, b: nt}, MemberRef{Kind: kind, ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) FieldRef(class, name, desc string) uint16 {
	return b.member(TagFieldref, class, name, desc)
}

func (b *Builder) MethodRef(class, name, desc string) uint16 {
	return b.member(TagMethodref, class, name, desc)
}

func (b *Builder) InterfaceMethodRef(class, name, desc string) uint16 {
	return b.member(TagInterfaceMethodref, class, name, desc)
}

// AddField declares a field.
func (b *Builder) AddField(flags uint16, name, desc string) *Builder {
	if _, err := ParseFieldType(desc); err != nil {
		b.fail(fmt.Errorf("field %s: %w", name, err))
	}
	b.fields = append(b.fields, &fieldEntry{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc)})
	return b
}

// AddConstantField declares a field with a ConstantValue attribute. value
// must be an int32, int64, float32, float64 or string.
func (b *Builder) AddConstantField(flags uint16, name, desc string, value any) *Builder {
	b.AddField(flags, name, desc)
	f := b.fields[len(b.fields)-1]
	switch v := value.(type) {
	case int32:
		f.constant = b.Int(v)
	case int64:
		f.constant = b.Long(v)
	case float32:
		f.constant = b.Float(v)
	case float64:
		f.constant = b.Double(v)
	case string:
		f.constant = b.String(v)
	default:
		b.fail(fmt.Errorf("field %s: unsupported constant %T", name, value))
	}
	return b
}

// AddMethod declares a method. Non-abstract, non-native methods need a body
// supplied through Code or Asm.
func (b *Builder) AddMethod(flags uint16, name, desc string) *MethodBuilder {
	if _, err := ParseMethodDescriptor(desc); err != nil {
		b.fail(fmt.Errorf("method %s: %w", name, err))
	}
	m := &MethodBuilder{owner: b, flags: flags, name: b.Utf8(name), desc: b.Utf8(desc), label: name + desc}
	b.methods = append(b.methods, m)
	return m
}

// ---------------------------------------------------------------------------
// MethodBuilder
// ---------------------------------------------------------------------------

type pendingHandler struct {
	start, end, handler *bytecode.Label
	raw                 ExceptionHandler
	catchType           uint16
}

type pendingLine struct {
	at   *bytecode.Label
	pc   uint16
	line uint16
}

// MethodBuilder collects one method body.
type MethodBuilder struct {
	owner      *Builder
	flags      uint16
	name, desc uint16
	label      string
	hasCode    bool
	maxStack   uint16
	maxLocals  uint16
	code       []byte
	asm        *bytecode.Builder
	handlers   []pendingHandler
	lines      []pendingLine
	exceptions []uint16
}

// Code sets a pre-assembled body.
func (m *MethodBuilder) Code(maxStack, maxLocals uint16, code []byte) *MethodBuilder {
	m.hasCode = true
	m.maxStack, m.maxLocals = maxStack, maxLocals
	m.code = code
	return m
}

// Asm returns an assembler for the body. Labels created on it can be used
// with Catch and LineAt; they are resolved when the class is written.
func (m *MethodBuilder) Asm(maxStack, maxLocals uint16) *bytecode.Builder {
	m.hasCode = true
	m.maxStack, m.maxLocals = maxStack, maxLocals
	m.asm = bytecode.NewBuilder()
	return m.asm
}

// Catch adds an exception table row protecting [start, end). An empty
// catchType catches everything.
func (m *MethodBuilder) Catch(start, end, handler *bytecode.Label, catchType string) *MethodBuilder {
	var ct uint16
	if catchType != "" {
		ct = m.owner.Class(catchType)
	}
	m.handlers = append(m.handlers, pendingHandler{start: start, end: end, handler: handler, catchType: ct})
	return m
}

// Handler adds an exception table row with explicit offsets.
func (m *MethodBuilder) Handler(h ExceptionHandler) *MethodBuilder {
	m.handlers = append(m.handlers, pendingHandler{raw: h})
	return m
}

// Line maps pc to a source line.
func (m *MethodBuilder) Line(pc, line uint16) *MethodBuilder {
	m.lines = append(m.lines, pendingLine{pc: pc, line: line})
	return m
}

// LineAt maps a label's position to a source line.
func (m *MethodBuilder) LineAt(at *bytecode.Label, line uint16) *MethodBuilder {
	m.lines = append(m.lines, pendingLine{at: at, line: line})
	return m
}

// Throws records a declared exception.
func (m *MethodBuilder) Throws(class string) *MethodBuilder {
	m.exceptions = append(m.exceptions, m.owner.Class(class))
	return m
}

func labelPC(l *bytecode.Label) (uint16, error) {
	pos := l.Position()
	if pos < 0 {
		return 0, bytecode.ErrUnresolvedLabel
	}
	return uint16(pos), nil
}

// finish resolves labels and returns the encoded Code attribute body, or
// nil for a method without one.
func (m *MethodBuilder) finish() ([]byte, error) {
	if !m.hasCode {
		return nil, nil
	}
	code := m.code
	if m.asm != nil {
		var err error
		if code, err = m.asm.Bytes(); err != nil {
			return nil, err
		}
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: empty code", ErrMalformed)
	}

	out := binary.BigEndian.AppendUint16(nil, m.maxStack)
	out = binary.BigEndian.AppendUint16(out, m.maxLocals)
	out = binary.BigEndian.AppendUint32(out, uint32(len(code)))
	out = append(out, code...)

	out = binary.BigEndian.AppendUint16(out, uint16(len(m.handlers)))
	for _, ph := range m.handlers {
		h := ph.raw
		if ph.start != nil {
			var err error
			if h.StartPC, err = labelPC(ph.start); err != nil {
				return nil, err
			}
			if h.EndPC, err = labelPC(ph.end); err != nil {
				return nil, err
			}
			if h.HandlerPC, err = labelPC(ph.handler); err != nil {
				return nil, err
			}
			h.CatchType = ph.catchType
		}
		out = binary.BigEndian.AppendUint16(out, h.StartPC)
		out = binary.BigEndian.AppendUint16(out, h.EndPC)
		out = binary.BigEndian.AppendUint16(out, h.HandlerPC)
		out = binary.BigEndian.AppendUint16(out, h.CatchType)
	}

	if len(m.lines) == 0 {
		return binary.BigEndian.AppendUint16(out, 0), nil
	}
	out = binary.BigEndian.AppendUint16(out, 1)
	out = binary.BigEndian.AppendUint16(out, m.owner.Utf8(AttrLineNumberTable))
	out = binary.BigEndian.AppendUint32(out, uint32(2+4*len(m.lines)))
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.lines)))
	for _, ln := range m.lines {
		pc := ln.pc
		if ln.at != nil {
			var err error
			if pc, err = labelPC(ln.at); err != nil {
				return nil, err
			}
		}
		out = binary.BigEndian.AppendUint16(out, pc)
		out = binary.BigEndian.AppendUint16(out, ln.line)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Bytes writes the class file.
func (b *Builder) Bytes() ([]byte, error) {
	// Bodies first: they may add attribute names to the pool.
	bodies := make([][]byte, len(b.methods))
	for i, m := range b.methods {
		body, err := m.finish()
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.label, err)
		}
		bodies[i] = body
	}
	codeAttr := b.Utf8(AttrCode)
	var cvAttr, excAttr, sfAttr uint16
	for _, f := range b.fields {
		if f.constant != 0 {
			cvAttr = b.Utf8(AttrConstantValue)
		}
	}
	for _, m := range b.methods {
		if len(m.exceptions) > 0 {
			excAttr = b.Utf8(AttrExceptions)
		}
	}
	if b.sourceFile != 0 {
		sfAttr = b.Utf8(AttrSourceFile)
	}
	if b.err != nil {
		return nil, b.err
	}

	out := binary.BigEndian.AppendUint32(nil, Magic)
	out = binary.BigEndian.AppendUint16(out, b.version.Minor)
	out = binary.BigEndian.AppendUint16(out, b.version.Major)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.pool)))
	for _, c := range b.pool {
		if c != nil {
			out = appendConstant(out, c)
		}
	}

	out = binary.BigEndian.AppendUint16(out, b.flags)
	out = binary.BigEndian.AppendUint16(out, b.this)
	out = binary.BigEndian.AppendUint16(out, b.super)
	out = binary.BigEndian.AppendUint16(out, uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		out = binary.BigEndian.AppendUint16(out, i)
	}

	out = binary.BigEndian.AppendUint16(out, uint16(len(b.fields)))
	for _, f := range b.fields {
		out = binary.BigEndian.AppendUint16(out, f.flags)
		out = binary.BigEndian.AppendUint16(out, f.name)
		out = binary.BigEndian.AppendUint16(out, f.desc)
		if f.constant == 0 {
			out = binary.BigEndian.AppendUint16(out, 0)
			continue
		}
		out = binary.BigEndian.AppendUint16(out, 1)
		out = binary.BigEndian.AppendUint16(out, cvAttr)
		out = binary.BigEndian.AppendUint32(out, 2)
		out = binary.BigEndian.AppendUint16(out, f.constant)
	}

	out = binary.BigEndian.AppendUint16(out, uint16(len(b.methods)))
	for i, m := range b.methods {
		out = binary.BigEndian.AppendUint16(out, m.flags)
		out = binary.BigEndian.AppendUint16(out, m.name)
		out = binary.BigEndian.AppendUint16(out, m.desc)
		var count uint16
		if bodies[i] != nil {
			count++
		}
		if len(m.exceptions) > 0 {
			count++
		}
		out = binary.BigEndian.AppendUint16(out, count)
		if bodies[i] != nil {
			out = binary.BigEndian.AppendUint16(out, codeAttr)
			out = binary.BigEndian.AppendUint32(out, uint32(len(bodies[i])))
			out = append(out, bodies[i]...)
		}
		if len(m.exceptions) > 0 {
			out = binary.BigEndian.AppendUint16(out, excAttr)
			out = binary.BigEndian.AppendUint32(out, uint32(2+2*len(m.exceptions)))
			out = binary.BigEndian.AppendUint16(out, uint16(len(m.exceptions)))
			for _, e := range m.exceptions {
				out = binary.BigEndian.AppendUint16(out, e)
			}
		}
	}

	if b.sourceFile == 0 {
		return binary.BigEndian.AppendUint16(out, 0), nil
	}
	out = binary.BigEndian.AppendUint16(out, 1)
	out = binary.BigEndian.AppendUint16(out, sfAttr)
	out = binary.BigEndian.AppendUint32(out, 2)
	out = binary.BigEndian.AppendUint16(out, b.sourceFile)
	return out, nil
}

// MustBytes is Bytes for statically known classes; it panics on error.
func (b *Builder) MustBytes() []byte {
	data, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return data
}

func appendConstant(out []byte, c Constant) []byte {
	out = append(out, byte(c.Tag()))
	switch v := c.(type) {
	case Utf8:
		enc := encodeModifiedUTF8(v.Value)
		out = binary.BigEndian.AppendUint16(out, uint16(len(enc)))
		out = append(out, enc...)
	case Integer:
		out = binary.BigEndian.AppendUint32(out, uint32(v.Value))
	case Float:
		out = binary.BigEndian.AppendUint32(out, math.Float32bits(v.Value))
	case Long:
		out = binary.BigEndian.AppendUint64(out, uint64(v.Value))
	case Double:
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(v.Value))
	case ClassRef:
		out = binary.BigEndian.AppendUint16(out, v.NameIndex)
	case StringRef:
		out = binary.BigEndian.AppendUint16(out, v.StringIndex)
	case MemberRef:
		out = binary.BigEndian.AppendUint16(out, v.ClassIndex)
		out = binary.BigEndian.AppendUint16(out, v.NameAndTypeIndex)
	case NameAndType:
		out = binary.BigEndian.AppendUint16(out, v.NameIndex)
		out = binary.BigEndian.AppendUint16(out, v.DescriptorIndex)
	}
	return out
}
