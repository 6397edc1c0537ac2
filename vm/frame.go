package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Frame: execution state of one method invocation
// ---------------------------------------------------------------------------

// Frame is the activation record of a method: locals, a bounded operand
// stack and the program counter.
type Frame struct {
	Method *Method
	Locals []Value
	Stack  []Value // len is the stack depth, cap is max-stack
	PC     int     // next byte to decode
	OpPC   int     // start of the instruction being executed
	Caller *Frame

	code []byte
	pool *ConstantPool
}

func newFrame(m *Method, caller *Frame) *Frame {
	return &Frame{
		Method: m,
		Locals: make([]Value, m.Code.MaxLocals),
		Stack:  make([]Value, 0, m.Code.MaxStack),
		Caller: caller,
		code:   m.Code.Code,
		pool:   m.Class.Pool,
	}
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (f *Frame) push(v Value) {
	if len(f.Stack) == cap(f.Stack) {
		panic(internalf("operand stack overflow in %s at pc %d", f.Method, f.OpPC))
	}
	f.Stack = append(f.Stack, v)
}

func (f *Frame) pop() Value {
	n := len(f.Stack)
	if n == 0 {
		panic(internalf("operand stack underflow in %s at pc %d", f.Method, f.OpPC))
	}
	v := f.Stack[n-1]
	f.Stack = f.Stack[:n-1]
	return v
}

func (f *Frame) peek(depth int) Value {
	n := len(f.Stack)
	if depth >= n {
		panic(internalf("operand stack underflow in %s at pc %d", f.Method, f.OpPC))
	}
	return f.Stack[n-1-depth]
}

func (f *Frame) pushInt(v int32) { f.push(Int(v)) }
func (f *Frame) pushLong(v int64) { f.push(Long(v)) }
func (f *Frame) pushFloat(v float32) { f.push(Float(v)) }
func (f *Frame) pushDouble(v float64) { f.push(Double(v)) }

func (f *Frame) popInt() int32 { return f.pop().AsInt() }
func (f *Frame) popLong() int64 { return f.pop().AsLong() }
func (f *Frame) popFloat() float32 { return f.pop().AsFloat() }
func (f *Frame) popDouble() float64 { return f.pop().AsDouble() }
func (f *Frame) popRef() Ref { return f.pop().AsRef() }

// clearStack empties the operand stack, as on entry to a handler.
func (f *Frame) clearStack() {
	f.Stack = f.Stack[:0]
}

// ---------------------------------------------------------------------------
// Local variables
// ---------------------------------------------------------------------------

func (f *Frame) local(i int) Value {
	if i < 0 || i >= len(f.Locals) {
		panic(internalf("local %d out of range in %s", i, f.Method))
	}
	return f.Locals[i]
}

// setLocal stores v at i. A long or double also claims slot i+1.
func (f *Frame) setLocal(i int, v Value) {
	width := 1
	if v.IsWide() {
		width = 2
	}
	if i < 0 || i+width > len(f.Locals) {
		panic(internalf("local %d out of range in %s", i, f.Method))
	}
	f.Locals[i] = v
	if width == 2 {
		f.Locals[i+1] = Top
	}
}

// ---------------------------------------------------------------------------
// Instruction stream
// ---------------------------------------------------------------------------

func (f *Frame) need(n int) {
	if f.PC+n > len(f.code) {
		panic(internalf("truncated instruction in %s at pc %d", f.Method, f.OpPC))
	}
}

func (f *Frame) u1() int {
	f.need(1)
	v := f.code[f.PC]
	f.PC++
	return int(v)
}

func (f *Frame) s1() int {
	return int(int8(f.u1()))
}

func (f *Frame) u2() uint16 {
	f.need(2)
	v := binary.BigEndian.Uint16(f.code[f.PC:])
	f.PC += 2
	return v
}

func (f *Frame) s2() int {
	return int(int16(f.u2()))
}

func (f *Frame) s4() int {
	f.need(4)
	v := int32(binary.BigEndian.Uint32(f.code[f.PC:]))
	f.PC += 4
	return int(v)
}

// align skips the padding before switch operands, which start on a
// four-byte boundary of the code array.
func (f *Frame) align() {
	f.PC = (f.PC + 3) &^ 3
}

// branch moves to an offset relative to the current instruction.
func (f *Frame) branch(offset int) {
	target := f.OpPC + offset
	if target < 0 || target >= len(f.code) {
		panic(internalf("branch to %d outside %s", target, f.Method))
	}
	f.PC = target
}

// line returns the source line of the current instruction, or 0.
func (f *Frame) line() int {
	return f.Method.Code.LineFor(f.OpPC)
}
