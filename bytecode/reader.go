package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCodeTruncated is returned when an instruction's operands run past the
// end of the code array.
var ErrCodeTruncated = errors.New("truncated instruction")

// ---------------------------------------------------------------------------
// Reader: sequential operand decoding
// ---------------------------------------------------------------------------

// Reader reads bytecode for disassembly and instruction walking.
type Reader struct {
	code []byte
	pos  int
}

// NewReader creates a reader positioned at the start of code.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// Seek moves the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.code)
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.code) {
		return fmt.Errorf("%w at %d", ErrCodeTruncated, r.pos)
	}
	return nil
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() (Opcode, error) {
	v, err := r.ReadU8()
	return Opcode(v), err
}

// ReadU8 reads an unsigned byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.code[r.pos]
	r.pos++
	return v, nil
}

// ReadI8 reads a signed byte.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadU16 reads a big-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.code[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadI16 reads a big-endian int16.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadI32 reads a big-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.code[r.pos:]))
	r.pos += 4
	return v, nil
}

// Align skips switch padding so the position is a multiple of four.
func (r *Reader) Align() {
	for r.pos%4 != 0 {
		r.pos++
	}
}

// ---------------------------------------------------------------------------
// Switch tables
// ---------------------------------------------------------------------------

// SwitchTable is a decoded tableswitch or lookupswitch. Offsets are relative
// to the switch instruction.
type SwitchTable struct {
	Default int32
	Keys    []int32
	Offsets []int32
}

// Target returns the branch offset selected by key.
func (s *SwitchTable) Target(key int32) int32 {
	for i, k := range s.Keys {
		if k == key {
			return s.Offsets[i]
		}
	}
	return s.Default
}

// ReadSwitch decodes the operands of a switch instruction whose opcode has
// already been consumed.
func (r *Reader) ReadSwitch(op Opcode) (*SwitchTable, error) {
	r.Align()
	def, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	st := &SwitchTable{Default: def}
	switch op {
	case OpTableswitch:
		low, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		high, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		if high < low {
			return nil, fmt.Errorf("tableswitch: high %d < low %d", high, low)
		}
		n := int(int64(high) - int64(low) + 1)
		if err := r.need(4 * n); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			off, _ := r.ReadI32()
			st.Keys = append(st.Keys, low+int32(i))
			st.Offsets = append(st.Offsets, off)
		}
	case OpLookupswitch:
		npairs, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		if npairs < 0 {
			return nil, fmt.Errorf("lookupswitch: negative pair count %d", npairs)
		}
		if err := r.need(8 * int(npairs)); err != nil {
			return nil, err
		}
		for i := int32(0); i < npairs; i++ {
			k, _ := r.ReadI32()
			off, _ := r.ReadI32()
			st.Keys = append(st.Keys, k)
			st.Offsets = append(st.Offsets, off)
		}
	default:
		return nil, fmt.Errorf("ReadSwitch: %s is not a switch", op)
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// Instruction decoding
// ---------------------------------------------------------------------------

// Instruction is one decoded instruction.
type Instruction struct {
	PC       int
	Op       Opcode
	Wide     bool  // prefixed by OpWide
	Operands []int // decoded operands in encoding order
	Switch   *SwitchTable
}

// Next decodes the instruction at the current position.
func (r *Reader) Next() (Instruction, error) {
	in := Instruction{PC: r.pos}
	op, err := r.ReadOpcode()
	if err != nil {
		return in, err
	}
	if !op.Valid() {
		return in, fmt.Errorf("invalid opcode 0x%02x at %d", byte(op), in.PC)
	}
	if op == OpWide {
		if op, err = r.ReadOpcode(); err != nil {
			return in, err
		}
		in.Wide = true
		in.Op = op
		idx, err := r.ReadU16()
		if err != nil {
			return in, err
		}
		in.Operands = append(in.Operands, int(idx))
		if op == OpIinc {
			delta, err := r.ReadI16()
			if err != nil {
				return in, err
			}
			in.Operands = append(in.Operands, int(delta))
		}
		return in, nil
	}
	in.Op = op

	switch op {
	case OpTableswitch, OpLookupswitch:
		st, err := r.ReadSwitch(op)
		if err != nil {
			return in, err
		}
		in.Switch = st
		return in, nil
	case OpBipush:
		v, err := r.ReadI8()
		in.Operands = append(in.Operands, int(v))
		return in, err
	case OpSipush:
		v, err := r.ReadI16()
		in.Operands = append(in.Operands, int(v))
		return in, err
	case OpIinc:
		idx, err := r.ReadU8()
		if err != nil {
			return in, err
		}
		delta, err := r.ReadI8()
		in.Operands = append(in.Operands, int(idx), int(delta))
		return in, err
	case OpGotoW, OpJsrW:
		v, err := r.ReadI32()
		in.Operands = append(in.Operands, int(v))
		return in, err
	case OpInvokeinterface, OpInvokedynamic:
		idx, err := r.ReadU16()
		if err != nil {
			return in, err
		}
		count, err := r.ReadU8()
		if err != nil {
			return in, err
		}
		_, err = r.ReadU8()
		in.Operands = append(in.Operands, int(idx), int(count))
		return in, err
	case OpMultianewarray:
		idx, err := r.ReadU16()
		if err != nil {
			return in, err
		}
		dims, err := r.ReadU8()
		in.Operands = append(in.Operands, int(idx), int(dims))
		return in, err
	}

	switch {
	case op.IsBranch():
		v, err := r.ReadI16()
		in.Operands = append(in.Operands, int(v))
		return in, err
	case op.OperandBytes() == 1:
		v, err := r.ReadU8()
		in.Operands = append(in.Operands, int(v))
		return in, err
	case op.OperandBytes() == 2:
		v, err := r.ReadU16()
		in.Operands = append(in.Operands, int(v))
		return in, err
	}
	return in, nil
}

// Decode decodes every instruction in code.
func Decode(code []byte) ([]Instruction, error) {
	r := NewReader(code)
	var out []Instruction
	for r.HasMore() {
		in, err := r.Next()
		if err != nil {
			return out, err
		}
		out = append(out, in)
	}
	return out, nil
}
