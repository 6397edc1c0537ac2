package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Builder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// ErrUnresolvedLabel is returned by Builder.Bytes when a jump refers to a
// label that was never marked.
var ErrUnresolvedLabel = errors.New("unresolved label")

// ErrBranchRange is returned when a 16-bit branch cannot reach its target.
var ErrBranchRange = errors.New("branch offset out of range")

// Label represents a position in the code that jumps may refer to before it
// is known.
type Label struct {
	name     string
	resolved bool
	position int
}

// Position returns the code offset of a marked label, or -1.
func (l *Label) Position() int {
	if !l.resolved {
		return -1
	}
	return l.position
}

// fixup records an operand that must be patched with a label offset.
// Offsets are relative to the start of the instruction that owns them.
type fixup struct {
	label *Label
	at    int  // operand position
	from  int  // instruction start
	wide  bool // 32-bit operand
}

// Builder assembles bytecode sequences. Multi-byte operands are big-endian.
type Builder struct {
	bytes  []byte
	fixups []fixup
}

// NewBuilder creates a new bytecode builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes: make([]byte, 0, 64),
	}
}

// Len returns the current length.
func (b *Builder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(ops ...Opcode) *Builder {
	for _, op := range ops {
		b.bytes = append(b.bytes, byte(op))
	}
	return b
}

// EmitByte appends an opcode with a single unsigned byte operand
// (local index, ldc index, newarray type).
func (b *Builder) EmitByte(op Opcode, operand byte) *Builder {
	b.bytes = append(b.bytes, byte(op), operand)
	return b
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *Builder) EmitInt8(op Opcode, operand int8) *Builder {
	b.bytes = append(b.bytes, byte(op), byte(operand))
	return b
}

// EmitInt16 appends an opcode with a signed 16-bit operand.
func (b *Builder) EmitInt16(op Opcode, operand int16) *Builder {
	return b.EmitUint16(op, uint16(operand))
}

// EmitUint16 appends an opcode with an unsigned 16-bit operand, typically a
// constant pool index.
func (b *Builder) EmitUint16(op Opcode, operand uint16) *Builder {
	b.bytes = append(b.bytes, byte(op), byte(operand>>8), byte(operand))
	return b
}

// EmitIinc appends an iinc instruction, using the wide form when needed.
func (b *Builder) EmitIinc(index uint16, delta int16) *Builder {
	if index > math.MaxUint8 || delta < math.MinInt8 || delta > math.MaxInt8 {
		b.bytes = append(b.bytes, byte(OpWide), byte(OpIinc),
			byte(index>>8), byte(index), byte(uint16(delta)>>8), byte(delta))
		return b
	}
	b.bytes = append(b.bytes, byte(OpIinc), byte(index), byte(delta))
	return b
}

// EmitLocal appends a load or store of a local variable, picking the
// single-byte _0.._3 form or the wide form as appropriate. op must be one
// of the indexed forms (OpIload .. OpAload, OpIstore .. OpAstore).
func (b *Builder) EmitLocal(op Opcode, index uint16) *Builder {
	var short Opcode
	switch {
	case op >= OpIload && op <= OpAload:
		short = OpIload0 + (op-OpIload)*4
	case op >= OpIstore && op <= OpAstore:
		short = OpIstore0 + (op-OpIstore)*4
	default:
		return b.EmitByte(op, byte(index))
	}
	switch {
	case index <= 3:
		return b.Emit(short + Opcode(index))
	case index <= math.MaxUint8:
		return b.EmitByte(op, byte(index))
	}
	b.bytes = append(b.bytes, byte(OpWide), byte(op), byte(index>>8), byte(index))
	return b
}

// EmitInt pushes an int constant using the shortest encoding that does not
// need the constant pool. Values outside the short range must use ldc.
func (b *Builder) EmitInt(v int32) *Builder {
	switch {
	case v >= -1 && v <= 5:
		return b.Emit(Opcode(int32(OpIconst0) + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return b.EmitInt8(OpBipush, int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return b.EmitInt16(OpSipush, int16(v))
	}
	panic(fmt.Sprintf("bytecode: EmitInt(%d) needs a constant pool entry", v))
}

// EmitInvokeInterface appends an invokeinterface instruction.
// count is the number of argument slots including the receiver.
func (b *Builder) EmitInvokeInterface(index uint16, count uint8) *Builder {
	b.bytes = append(b.bytes, byte(OpInvokeinterface), byte(index>>8), byte(index), count, 0)
	return b
}

// EmitMultiANewArray appends a multianewarray instruction.
func (b *Builder) EmitMultiANewArray(index uint16, dims uint8) *Builder {
	b.bytes = append(b.bytes, byte(OpMultianewarray), byte(index>>8), byte(index), dims)
	return b
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// NewLabel creates an unresolved label. The name is only used in errors.
func (b *Builder) NewLabel(name string) *Label {
	return &Label{name: name}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) *Builder {
	if label.resolved {
		panic(fmt.Sprintf("bytecode: label %q already marked", label.name))
	}
	label.resolved = true
	label.position = len(b.bytes)
	return b
}

// Here creates a label marked at the current position.
func (b *Builder) Here(name string) *Label {
	l := b.NewLabel(name)
	b.Mark(l)
	return l
}

// EmitJump emits a branch instruction with a 16-bit offset to label.
func (b *Builder) EmitJump(op Opcode, label *Label) *Builder {
	from := len(b.bytes)
	b.bytes = append(b.bytes, byte(op), 0, 0)
	b.fixups = append(b.fixups, fixup{label: label, at: from + 1, from: from})
	return b
}

// EmitJumpWide emits goto_w or jsr_w with a 32-bit offset to label.
func (b *Builder) EmitJumpWide(op Opcode, label *Label) *Builder {
	from := len(b.bytes)
	b.bytes = append(b.bytes, byte(op), 0, 0, 0, 0)
	b.fixups = append(b.fixups, fixup{label: label, at: from + 1, from: from, wide: true})
	return b
}

// pad aligns the next operand to a 4-byte boundary measured from the start
// of the code, as the switch instructions require.
func (b *Builder) pad() {
	for len(b.bytes)%4 != 0 {
		b.bytes = append(b.bytes, 0)
	}
}

func (b *Builder) emitInt32(v int32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	b.bytes = append(b.bytes, buf[:]...)
}

func (b *Builder) emitTarget(from int, label *Label) {
	b.fixups = append(b.fixups, fixup{label: label, at: len(b.bytes), from: from, wide: true})
	b.bytes = append(b.bytes, 0, 0, 0, 0)
}

// EmitTableSwitch emits a tableswitch covering keys low..low+len(targets)-1.
func (b *Builder) EmitTableSwitch(def *Label, low int32, targets []*Label) *Builder {
	from := len(b.bytes)
	b.bytes = append(b.bytes, byte(OpTableswitch))
	b.pad()
	b.emitTarget(from, def)
	b.emitInt32(low)
	b.emitInt32(low + int32(len(targets)) - 1)
	for _, t := range targets {
		b.emitTarget(from, t)
	}
	return b
}

// EmitLookupSwitch emits a lookupswitch. keys are parallel to targets and
// may be given in any order.
func (b *Builder) EmitLookupSwitch(def *Label, keys []int32, targets []*Label) *Builder {
	if len(keys) != len(targets) {
		panic("bytecode: lookupswitch keys and targets differ in length")
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return keys[order[x]] < keys[order[y]] })

	from := len(b.bytes)
	b.bytes = append(b.bytes, byte(OpLookupswitch))
	b.pad()
	b.emitTarget(from, def)
	b.emitInt32(int32(len(keys)))
	for _, i := range order {
		b.emitInt32(keys[i])
		b.emitTarget(from, targets[i])
	}
	return b
}

// Bytes patches all label references and returns the assembled code.
func (b *Builder) Bytes() ([]byte, error) {
	for _, f := range b.fixups {
		if !f.label.resolved {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedLabel, f.label.name)
		}
		offset := f.label.position - f.from
		if f.wide {
			binary.BigEndian.PutUint32(b.bytes[f.at:], uint32(int32(offset)))
			continue
		}
		if offset < math.MinInt16 || offset > math.MaxInt16 {
			return nil, fmt.Errorf("%w: %q at %d", ErrBranchRange, f.label.name, f.from)
		}
		binary.BigEndian.PutUint16(b.bytes[f.at:], uint16(int16(offset)))
	}
	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out, nil
}

// MustBytes is like Bytes but panics on error. Intended for tests and
// statically known code sequences.
func (b *Builder) MustBytes() []byte {
	code, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return code
}
