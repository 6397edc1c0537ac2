package vm

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/blaze/bytecode"
)

// DefaultMaxFrames bounds call depth when no limit is configured.
const DefaultMaxFrames = 1024

// ---------------------------------------------------------------------------
// Interpreter: bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes method bodies on a single logical thread. It keeps
// one frame stack; host calls and static initializers run as nested
// segments of it.
type Interpreter struct {
	registry  *Registry
	heap      *Heap
	frames    []*Frame
	maxFrames int

	// traces records where each in-flight thrown object was first raised.
	traces map[Ref][]StackElement

	log      commonlog.Logger
	trace    bool
	profiler *Profiler

	// Set by a return instruction, consumed by run.
	returning bool
	result    Value
	hasResult bool
}

// NewInterpreter creates an interpreter over registry and heap and installs
// it as the registry's static initializer runner.
func NewInterpreter(registry *Registry, heap *Heap, maxFrames int) *Interpreter {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	log := commonlog.GetLogger("blaze.vm")
	i := &Interpreter{
		registry:  registry,
		heap:      heap,
		maxFrames: maxFrames,
		traces:    make(map[Ref][]StackElement),
		log:       log,
		trace:     log.AllowLevel(commonlog.Debug),
	}
	registry.SetInitializer(i)
	return i
}

// Depth returns the number of active frames.
func (i *Interpreter) Depth() int {
	return len(i.frames)
}

// Invoke calls m with args and runs it to completion. Static methods
// initialize their class first. Instance methods take the receiver as the
// first argument.
func (i *Interpreter) Invoke(m *Method, args ...Value) (Value, error) {
	if m.IsStatic() {
		if err := i.registry.EnsureInitialized(m.Class); err != nil {
			return Value{}, err
		}
	}
	return i.execute(m, args)
}

// RunInitializer runs a static initializer. It satisfies Initializer.
func (i *Interpreter) RunInitializer(c *Class, clinit *Method) error {
	i.log.Debugf("running %s", clinit)
	_, err := i.execute(clinit, nil)
	return err
}

// execute pushes a frame for m on top of the current stack and runs until
// that frame returns.
func (i *Interpreter) execute(m *Method, args []Value) (Value, error) {
	switch {
	case m.IsNative():
		return Value{}, fmt.Errorf("%w: %s", ErrUnsatisfiedLink, m)
	case m.Code == nil:
		return Value{}, fmt.Errorf("%w: %s", ErrAbstractMethod, m)
	case len(i.frames) >= i.maxFrames:
		return Value{}, fmt.Errorf("%w: %d frames", ErrStackOverflow, len(i.frames))
	}

	var caller *Frame
	if n := len(i.frames); n > 0 {
		caller = i.frames[n-1]
	}
	f := newFrame(m, caller)
	if err := bindArguments(f, m, args); err != nil {
		return Value{}, err
	}
	i.enter(f)
	defer i.releaseTraces()
	return i.run(len(i.frames) - 1)
}

// releaseTraces forgets recorded throw sites once the frame stack is empty.
// A rethrow within one run keeps the trace of its first raise.
func (i *Interpreter) releaseTraces() {
	if len(i.frames) == 0 {
		clear(i.traces)
	}
}

// bindArguments copies args into the first local slots of f.
func bindArguments(f *Frame, m *Method, args []Value) error {
	want := len(m.Signature.Params)
	if !m.IsStatic() {
		want++
	}
	if len(args) != want {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInternal, m, want, len(args))
	}
	params := args
	if !m.IsStatic() {
		if k := args[0].Kind(); k != KindRef {
			return fmt.Errorf("%w: %s receiver is %s", ErrInternal, m, k)
		}
		params = args[1:]
	}
	for j, p := range m.Signature.Params {
		if k := params[j].Kind(); k != kindOf(p) {
			return fmt.Errorf("%w: %s argument %d is %s, want %s", ErrInternal, m, j, k, kindOf(p))
		}
	}
	if m.ArgSlots > len(f.Locals) {
		return fmt.Errorf("%w: %s has %d locals for %d argument slots", ErrInternal, m, len(f.Locals), m.ArgSlots)
	}
	slot := 0
	for _, a := range args {
		f.setLocal(slot, a)
		slot++
		if a.IsWide() {
			slot++
		}
	}
	return nil
}

// run executes frames until the frame at index base returns or an exception
// unwinds past it. Frames above base are discarded on every exit path.
func (i *Interpreter) run(base int) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(internalError)
			if !ok {
				panic(r)
			}
			if len(i.frames) > base {
				i.frames = i.frames[:base]
			}
			i.returning = false
			result, err = Value{}, fmt.Errorf("%w: %s", ErrInternal, string(ie))
		}
	}()

	for {
		f := i.frames[len(i.frames)-1]
		if i.profiler != nil {
			i.profiler.RecordInstruction(f.Method)
		}
		stepErr := i.step(f)

		if i.returning {
			i.returning = false
			if len(i.frames) == base {
				return i.result, nil
			}
			if i.hasResult {
				i.frames[len(i.frames)-1].push(i.result)
			}
			continue
		}

		if stepErr != nil {
			if err := i.raise(stepErr, base); err != nil {
				return Value{}, err
			}
		}
	}
}

// tableSwitch returns the branch offset for key. Only the default, the
// bounds and the selected entry are read.
func tableSwitch(f *Frame, key int32) int {
	f.align()
	def := f.s4()
	low, high := int32(f.s4()), int32(f.s4())
	if high < low {
		panic(internalf("tableswitch in %s at pc %d: high %d < low %d", f.Method, f.OpPC, high, low))
	}
	if key < low || key > high {
		return def
	}
	f.PC += 4 * int(int64(key)-int64(low))
	return f.s4()
}

// lookupSwitch binary-searches the sorted match pairs for key.
func lookupSwitch(f *Frame, key int32) int {
	f.align()
	def := f.s4()
	n := f.s4()
	if n < 0 {
		panic(internalf("lookupswitch in %s at pc %d: %d pairs", f.Method, f.OpPC, n))
	}
	base := f.PC
	f.need(8 * n)
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		f.PC = base + 8*mid
		k := int32(f.s4())
		switch {
		case k == key:
			return f.s4()
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return def
}

// enter pushes f as the current frame.
func (i *Interpreter) enter(f *Frame) {
	if i.profiler != nil {
		i.profiler.RecordInvocation(f.Method)
	}
	i.frames = append(i.frames, f)
}

// ret pops the current frame and hands v to run.
func (i *Interpreter) ret(v Value, has bool) {
	i.frames = i.frames[:len(i.frames)-1]
	i.returning = true
	i.result = v
	i.hasResult = has
}

// ---------------------------------------------------------------------------
// Instruction dispatch
// ---------------------------------------------------------------------------

// step executes one instruction of f. A returned error is raised as a guest
// exception by run.
func (i *Interpreter) step(f *Frame) error {
	f.OpPC = f.PC
	op := bytecode.Opcode(f.u1())
	if i.trace {
		i.log.Debugf("%s %4d: %s stack=%v", f.Method, f.OpPC, op, f.Stack)
	}

	switch op {
	case bytecode.OpNop:

	// Constants

	case bytecode.OpAconstNull:
		f.push(Null)
	case bytecode.OpIconstM1, bytecode.OpIconst0, bytecode.OpIconst1, bytecode.OpIconst2,
		bytecode.OpIconst3, bytecode.OpIconst4, bytecode.OpIconst5:
		f.pushInt(int32(op) - int32(bytecode.OpIconst0))
	case bytecode.OpLconst0, bytecode.OpLconst1:
		f.pushLong(int64(op - bytecode.OpLconst0))
	case bytecode.OpFconst0, bytecode.OpFconst1, bytecode.OpFconst2:
		f.pushFloat(float32(op - bytecode.OpFconst0))
	case bytecode.OpDconst0, bytecode.OpDconst1:
		f.pushDouble(float64(op - bytecode.OpDconst0))
	case bytecode.OpBipush:
		f.pushInt(int32(f.s1()))
	case bytecode.OpSipush:
		f.pushInt(int32(f.s2()))
	case bytecode.OpLdc:
		return i.ldc(f, uint16(f.u1()))
	case bytecode.OpLdcW, bytecode.OpLdc2W:
		return i.ldc(f, f.u2())

	// Locals

	case bytecode.OpIload, bytecode.OpLload, bytecode.OpFload, bytecode.OpDload, bytecode.OpAload:
		f.push(f.local(f.u1()))
	case bytecode.OpIstore, bytecode.OpLstore, bytecode.OpFstore, bytecode.OpDstore, bytecode.OpAstore:
		f.setLocal(f.u1(), f.pop())
	case bytecode.OpIinc:
		idx := f.u1()
		f.setLocal(idx, Int(f.local(idx).AsInt()+int32(f.s1())))
	case bytecode.OpWide:
		return i.wide(f)

	// Arrays

	case bytecode.OpIaload, bytecode.OpLaload, bytecode.OpFaload, bytecode.OpDaload,
		bytecode.OpAaload, bytecode.OpBaload, bytecode.OpCaload, bytecode.OpSaload:
		index := f.popInt()
		v, err := i.heap.Load(f.popRef(), index)
		if err != nil {
			return err
		}
		f.push(v)
	case bytecode.OpIastore, bytecode.OpLastore, bytecode.OpFastore, bytecode.OpDastore,
		bytecode.OpBastore, bytecode.OpCastore, bytecode.OpSastore:
		v := f.pop()
		index := f.popInt()
		return i.heap.Store(f.popRef(), index, v)
	case bytecode.OpAastore:
		v := f.pop()
		index := f.popInt()
		ref := f.popRef()
		if _, err := i.heap.Load(ref, index); err != nil {
			return err
		}
		if err := i.checkArrayStore(ref, v); err != nil {
			return err
		}
		return i.heap.Store(ref, index, v)
	case bytecode.OpArraylength:
		n, err := i.heap.ArrayLength(f.popRef())
		if err != nil {
			return err
		}
		f.pushInt(n)
	case bytecode.OpNewarray:
		return i.newArray(f, f.u1())
	case bytecode.OpAnewarray:
		return i.newRefArray(f, f.u2())

	// Operand stack

	case bytecode.OpPop:
		f.pop()
	case bytecode.OpPop2:
		f.Stack = f.Stack[:len(f.Stack)-f.entries(0, 2)]
	case bytecode.OpDup:
		f.dup(1, 0)
	case bytecode.OpDupX1:
		f.dup(1, 1)
	case bytecode.OpDupX2:
		f.dup(1, 2)
	case bytecode.OpDup2:
		f.dup(2, 0)
	case bytecode.OpDup2X1:
		f.dup(2, 1)
	case bytecode.OpDup2X2:
		f.dup(2, 2)
	case bytecode.OpSwap:
		a, b := f.pop(), f.pop()
		if a.IsWide() || b.IsWide() {
			panic(internalf("swap of a wide value in %s at pc %d", f.Method, f.OpPC))
		}
		f.push(a)
		f.push(b)

	// Integer arithmetic

	case bytecode.OpIadd:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a + b)
	case bytecode.OpIsub:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a - b)
	case bytecode.OpImul:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a * b)
	case bytecode.OpIdiv, bytecode.OpIrem:
		b, a := f.popInt(), f.popInt()
		div := idiv
		if op == bytecode.OpIrem {
			div = irem
		}
		r, err := div(a, b)
		if err != nil {
			return err
		}
		f.pushInt(r)
	case bytecode.OpIneg:
		f.pushInt(-f.popInt())
	case bytecode.OpIshl:
		b, a := f.popInt(), f.popInt()
		f.pushInt(ishl(a, b))
	case bytecode.OpIshr:
		b, a := f.popInt(), f.popInt()
		f.pushInt(ishr(a, b))
	case bytecode.OpIushr:
		b, a := f.popInt(), f.popInt()
		f.pushInt(iushr(a, b))
	case bytecode.OpIand:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a & b)
	case bytecode.OpIor:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a | b)
	case bytecode.OpIxor:
		b, a := f.popInt(), f.popInt()
		f.pushInt(a ^ b)

	// Long arithmetic

	case bytecode.OpLadd:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a + b)
	case bytecode.OpLsub:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a - b)
	case bytecode.OpLmul:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a * b)
	case bytecode.OpLdiv, bytecode.OpLrem:
		b, a := f.popLong(), f.popLong()
		div := ldiv
		if op == bytecode.OpLrem {
			div = lrem
		}
		r, err := div(a, b)
		if err != nil {
			return err
		}
		f.pushLong(r)
	case bytecode.OpLneg:
		f.pushLong(-f.popLong())
	case bytecode.OpLshl:
		b, a := f.popInt(), f.popLong()
		f.pushLong(lshl(a, b))
	case bytecode.OpLshr:
		b, a := f.popInt(), f.popLong()
		f.pushLong(lshr(a, b))
	case bytecode.OpLushr:
		b, a := f.popInt(), f.popLong()
		f.pushLong(lushr(a, b))
	case bytecode.OpLand:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a & b)
	case bytecode.OpLor:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a | b)
	case bytecode.OpLxor:
		b, a := f.popLong(), f.popLong()
		f.pushLong(a ^ b)

	// Floating arithmetic

	case bytecode.OpFadd:
		b, a := f.popFloat(), f.popFloat()
		f.pushFloat(a + b)
	case bytecode.OpFsub:
		b, a := f.popFloat(), f.popFloat()
		f.pushFloat(a - b)
	case bytecode.OpFmul:
		b, a := f.popFloat(), f.popFloat()
		f.pushFloat(a * b)
	case bytecode.OpFdiv:
		b, a := f.popFloat(), f.popFloat()
		f.pushFloat(a / b)
	case bytecode.OpFrem:
		b, a := f.popFloat(), f.popFloat()
		f.pushFloat(frem(a, b))
	case bytecode.OpFneg:
		f.pushFloat(-f.popFloat())
	case bytecode.OpDadd:
		b, a := f.popDouble(), f.popDouble()
		f.pushDouble(a + b)
	case bytecode.OpDsub:
		b, a := f.popDouble(), f.popDouble()
		f.pushDouble(a - b)
	case bytecode.OpDmul:
		b, a := f.popDouble(), f.popDouble()
		f.pushDouble(a * b)
	case bytecode.OpDdiv:
		b, a := f.popDouble(), f.popDouble()
		f.pushDouble(a / b)
	case bytecode.OpDrem:
		b, a := f.popDouble(), f.popDouble()
		f.pushDouble(drem(a, b))
	case bytecode.OpDneg:
		f.pushDouble(-f.popDouble())

	// Conversions

	case bytecode.OpI2l:
		f.pushLong(int64(f.popInt()))
	case bytecode.OpI2f:
		f.pushFloat(float32(f.popInt()))
	case bytecode.OpI2d:
		f.pushDouble(float64(f.popInt()))
	case bytecode.OpL2i:
		f.pushInt(int32(f.popLong()))
	case bytecode.OpL2f:
		f.pushFloat(float32(f.popLong()))
	case bytecode.OpL2d:
		f.pushDouble(float64(f.popLong()))
	case bytecode.OpF2i:
		f.pushInt(d2i(float64(f.popFloat())))
	case bytecode.OpF2l:
		f.pushLong(d2l(float64(f.popFloat())))
	case bytecode.OpF2d:
		f.pushDouble(float64(f.popFloat()))
	case bytecode.OpD2i:
		f.pushInt(d2i(f.popDouble()))
	case bytecode.OpD2l:
		f.pushLong(d2l(f.popDouble()))
	case bytecode.OpD2f:
		f.pushFloat(float32(f.popDouble()))
	case bytecode.OpI2b:
		f.pushInt(int32(int8(f.popInt())))
	case bytecode.OpI2c:
		f.pushInt(int32(uint16(f.popInt())))
	case bytecode.OpI2s:
		f.pushInt(int32(int16(f.popInt())))

	// Comparisons

	case bytecode.OpLcmp:
		b, a := f.popLong(), f.popLong()
		f.pushInt(lcmp(a, b))
	case bytecode.OpFcmpl, bytecode.OpFcmpg:
		b, a := f.popFloat(), f.popFloat()
		f.pushInt(fcmp(float64(a), float64(b), nanResult(op == bytecode.OpFcmpg)))
	case bytecode.OpDcmpl, bytecode.OpDcmpg:
		b, a := f.popDouble(), f.popDouble()
		f.pushInt(fcmp(a, b, nanResult(op == bytecode.OpDcmpg)))

	// Control transfer

	case bytecode.OpIfeq, bytecode.OpIfne, bytecode.OpIflt, bytecode.OpIfge, bytecode.OpIfgt, bytecode.OpIfle:
		off := f.s2()
		if compare(op-bytecode.OpIfeq, f.popInt(), 0) {
			f.branch(off)
		}
	case bytecode.OpIfIcmpeq, bytecode.OpIfIcmpne, bytecode.OpIfIcmplt,
		bytecode.OpIfIcmpge, bytecode.OpIfIcmpgt, bytecode.OpIfIcmple:
		off := f.s2()
		b, a := f.popInt(), f.popInt()
		if compare(op-bytecode.OpIfIcmpeq, a, b) {
			f.branch(off)
		}
	case bytecode.OpIfAcmpeq, bytecode.OpIfAcmpne:
		off := f.s2()
		b, a := f.popRef(), f.popRef()
		if (a == b) == (op == bytecode.OpIfAcmpeq) {
			f.branch(off)
		}
	case bytecode.OpIfnull, bytecode.OpIfnonnull:
		off := f.s2()
		if f.pop().IsNull() == (op == bytecode.OpIfnull) {
			f.branch(off)
		}
	case bytecode.OpGoto:
		f.branch(f.s2())
	case bytecode.OpGotoW:
		f.branch(f.s4())
	case bytecode.OpJsr:
		off := f.s2()
		f.push(returnAddress(f.PC))
		f.branch(off)
	case bytecode.OpJsrW:
		off := f.s4()
		f.push(returnAddress(f.PC))
		f.branch(off)
	case bytecode.OpRet:
		i.subroutineReturn(f, f.u1())
	case bytecode.OpTableswitch:
		f.branch(tableSwitch(f, f.popInt()))
	case bytecode.OpLookupswitch:
		f.branch(lookupSwitch(f, f.popInt()))

	// Returns

	case bytecode.OpIreturn, bytecode.OpLreturn, bytecode.OpFreturn, bytecode.OpDreturn, bytecode.OpAreturn:
		i.ret(f.pop(), true)
	case bytecode.OpReturn:
		i.ret(Value{}, false)

	// Fields

	case bytecode.OpGetstatic, bytecode.OpPutstatic:
		return i.staticField(f, op, f.u2())
	case bytecode.OpGetfield, bytecode.OpPutfield:
		return i.instanceField(f, op, f.u2())

	// Invocation

	case bytecode.OpInvokevirtual:
		return i.invokeVirtual(f, f.u2())
	case bytecode.OpInvokespecial:
		return i.invokeSpecial(f, f.u2())
	case bytecode.OpInvokestatic:
		return i.invokeStatic(f, f.u2())
	case bytecode.OpInvokeinterface:
		idx := f.u2()
		f.u1() // count
		f.u1() // zero
		return i.invokeInterface(f, idx)

	// Objects

	case bytecode.OpNew:
		return i.newObject(f, f.u2())
	case bytecode.OpCheckcast:
		return i.checkCast(f, f.u2())
	case bytecode.OpInstanceof:
		return i.instanceOf(f, f.u2())
	case bytecode.OpAthrow:
		ref := f.popRef()
		if ref == NullRef {
			return fmt.Errorf("%w: throw of null", ErrNullPointer)
		}
		return &thrown{ref}
	case bytecode.OpMonitorenter, bytecode.OpMonitorexit:
		// Single-threaded: monitors only check their operand.
		if f.pop().IsNull() {
			return fmt.Errorf("%w: monitor on null", ErrNullPointer)
		}

	case bytecode.OpInvokedynamic, bytecode.OpMultianewarray:
		return fmt.Errorf("%w: %s in %s at pc %d", ErrUnsupportedOpcode, op, f.Method, f.OpPC)

	default:
		switch {
		case op >= bytecode.OpIload0 && op <= bytecode.OpAload3:
			f.push(f.local(int(op-bytecode.OpIload0) % 4))
		case op >= bytecode.OpIstore0 && op <= bytecode.OpAstore3:
			f.setLocal(int(op-bytecode.OpIstore0)%4, f.pop())
		default:
			return fmt.Errorf("%w: 0x%02x in %s at pc %d", ErrUnsupportedOpcode, byte(op), f.Method, f.OpPC)
		}
	}
	return nil
}

// compare evaluates the condition of an if<cond> family member; cond is
// the offset from the family's eq opcode.
func compare(cond bytecode.Opcode, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

func nanResult(greater bool) int32 {
	if greater {
		return 1
	}
	return -1
}

// ldc pushes a loadable constant.
func (i *Interpreter) ldc(f *Frame, index uint16) error {
	v, err := f.pool.Literal(index)
	if err != nil {
		return err
	}
	f.push(v)
	return nil
}

// wide executes the instruction following a wide prefix.
func (i *Interpreter) wide(f *Frame) error {
	op := bytecode.Opcode(f.u1())
	idx := int(f.u2())
	switch op {
	case bytecode.OpIload, bytecode.OpLload, bytecode.OpFload, bytecode.OpDload, bytecode.OpAload:
		f.push(f.local(idx))
	case bytecode.OpIstore, bytecode.OpLstore, bytecode.OpFstore, bytecode.OpDstore, bytecode.OpAstore:
		f.setLocal(idx, f.pop())
	case bytecode.OpIinc:
		f.setLocal(idx, Int(f.local(idx).AsInt()+int32(f.s2())))
	case bytecode.OpRet:
		i.subroutineReturn(f, idx)
	default:
		panic(internalf("wide %s in %s at pc %d", op, f.Method, f.OpPC))
	}
	return nil
}

func (i *Interpreter) subroutineReturn(f *Frame, idx int) {
	v := f.local(idx)
	if v.Kind() != KindReturnAddress {
		panic(internalf("ret through %s local in %s at pc %d", v.Kind(), f.Method, f.OpPC))
	}
	f.PC = v.retPC()
}

// ---------------------------------------------------------------------------
// Category-aware stack shuffles
// ---------------------------------------------------------------------------

// entries returns how many stack entries, starting depth entries below the
// top, make up exactly slots value slots. A long or double counts as two.
func (f *Frame) entries(depth, slots int) int {
	n, sum := 0, 0
	for sum < slots {
		v := f.peek(depth + n)
		n++
		sum++
		if v.IsWide() {
			sum++
		}
	}
	if sum != slots {
		panic(internalf("stack shuffle splits a wide value in %s at pc %d", f.Method, f.OpPC))
	}
	return n
}

// dup copies the top count slots and inserts the copy beneath the skip
// slots under them. dup is (1,0), dup_x1 is (1,1), dup2_x2 is (2,2).
func (f *Frame) dup(count, skip int) {
	n := f.entries(0, count)
	m := 0
	if skip > 0 {
		m = f.entries(n, skip)
	}
	top := len(f.Stack)
	vals := append([]Value(nil), f.Stack[top-n:]...)
	for range vals {
		f.push(Top)
	}
	pos := top - n - m
	copy(f.Stack[pos+n:], f.Stack[pos:top])
	copy(f.Stack[pos:], vals)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

var primitiveArrays = map[int]string{
	int(bytecode.TBoolean): "[Z",
	int(bytecode.TChar):    "[C",
	int(bytecode.TFloat):   "[F",
	int(bytecode.TDouble):  "[D",
	int(bytecode.TByte):    "[B",
	int(bytecode.TShort):   "[S",
	int(bytecode.TInt):     "[I",
	int(bytecode.TLong):    "[J",
}

func (i *Interpreter) newArray(f *Frame, atype int) error {
	name, ok := primitiveArrays[atype]
	if !ok {
		panic(internalf("newarray type %d in %s at pc %d", atype, f.Method, f.OpPC))
	}
	c, err := i.registry.LoadClass(name)
	if err != nil {
		return err
	}
	return i.allocArray(f, c)
}

func (i *Interpreter) newRefArray(f *Frame, index uint16) error {
	elem, err := f.pool.ResolveClass(index)
	if err != nil {
		return err
	}
	c, err := i.registry.ArrayOf(elem)
	if err != nil {
		return err
	}
	return i.allocArray(f, c)
}

func (i *Interpreter) allocArray(f *Frame, c *Class) error {
	ref, err := i.heap.AllocArray(c, f.popInt())
	if err != nil {
		return err
	}
	f.push(RefValue(ref))
	return nil
}

// checkArrayStore verifies that v may be stored into the reference array.
func (i *Interpreter) checkArrayStore(array Ref, v Value) error {
	if v.IsNull() {
		return nil
	}
	ac, err := i.heap.ClassOf(array)
	if err != nil {
		return err
	}
	vc, err := i.heap.ClassOf(v.AsRef())
	if err != nil {
		return err
	}
	if ac.Component != nil && !vc.IsAssignableTo(ac.Component) {
		return fmt.Errorf("%w: %s into %s", ErrArrayStore, vc.Name, ac.Name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Objects and fields
// ---------------------------------------------------------------------------

func (i *Interpreter) newObject(f *Frame, index uint16) error {
	c, err := f.pool.ResolveClass(index)
	if err != nil {
		return err
	}
	if c.IsAbstract() || c.IsArray() {
		return fmt.Errorf("%w: %s", ErrInstantiation, c.Name)
	}
	if err := i.registry.EnsureInitialized(c); err != nil {
		return err
	}
	f.push(RefValue(i.heap.AllocInstance(c)))
	return nil
}

func (i *Interpreter) staticField(f *Frame, op bytecode.Opcode, index uint16) error {
	fld, err := f.pool.ResolveField(index)
	if err != nil {
		return err
	}
	if !fld.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is not static", ErrLinkage, fld)
	}
	if err := i.registry.EnsureInitialized(fld.Class); err != nil {
		return err
	}
	if op == bytecode.OpGetstatic {
		f.push(fld.Class.Statics[fld.Slot])
	} else {
		fld.Class.Statics[fld.Slot] = f.pop()
	}
	return nil
}

func (i *Interpreter) instanceField(f *Frame, op bytecode.Opcode, index uint16) error {
	fld, err := f.pool.ResolveField(index)
	if err != nil {
		return err
	}
	if fld.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is static", ErrLinkage, fld)
	}
	var v Value
	if op == bytecode.OpPutfield {
		v = f.pop()
	}
	o := i.heap.Get(f.popRef())
	if o == nil {
		return fmt.Errorf("%w: field %s", ErrNullPointer, fld.Name)
	}
	if fld.Slot >= len(o.Fields) || o.Class.Layout[fld.Slot] != fld {
		return fmt.Errorf("%w: %s on %s", ErrNoSuchField, fld, o.Class.Name)
	}
	if op == bytecode.OpGetfield {
		f.push(o.Fields[fld.Slot])
	} else {
		o.Fields[fld.Slot] = v
	}
	return nil
}

func (i *Interpreter) checkCast(f *Frame, index uint16) error {
	v := f.peek(0)
	if v.IsNull() {
		return nil
	}
	target, err := f.pool.ResolveClass(index)
	if err != nil {
		return err
	}
	c, err := i.heap.ClassOf(v.AsRef())
	if err != nil {
		return err
	}
	if !c.IsAssignableTo(target) {
		return fmt.Errorf("%w: %s cannot be cast to %s", ErrClassCast, c.Name, target.Name)
	}
	return nil
}

func (i *Interpreter) instanceOf(f *Frame, index uint16) error {
	target, err := f.pool.ResolveClass(index)
	if err != nil {
		return err
	}
	v := f.pop()
	if v.IsNull() {
		f.pushInt(0)
		return nil
	}
	c, err := i.heap.ClassOf(v.AsRef())
	if err != nil {
		return err
	}
	f.push(Bool(c.IsAssignableTo(target)))
	return nil
}

