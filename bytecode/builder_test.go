package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeInfo(t *testing.T) {
	assert.Equal(t, "iadd", OpIadd.Name())
	assert.Equal(t, 2, OpGoto.OperandBytes())
	assert.Equal(t, VariableLength, OpTableswitch.OperandBytes())
	assert.True(t, OpIfIcmpge.IsBranch())
	assert.True(t, OpGotoW.IsBranch())
	assert.False(t, OpIadd.IsBranch())
	assert.True(t, OpAreturn.IsReturn())
	assert.False(t, Opcode(0xfe).Valid())
	assert.Equal(t, "unknown_fe", Opcode(0xfe).String())
}

func TestBuilderForwardAndBackwardJumps(t *testing.T) {
	b := NewBuilder()
	loop := b.Here("loop")
	end := b.NewLabel("end")
	b.EmitJump(OpIfeq, end)  // 0: ifeq -> 6
	b.EmitJump(OpGoto, loop) // 3: goto -> 0
	b.Mark(end)
	b.Emit(OpReturn) // 6

	code, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		byte(OpIfeq), 0x00, 0x06,
		byte(OpGoto), 0xff, 0xfd,
		byte(OpReturn),
	}, code)
}

func TestBuilderUnresolvedLabel(t *testing.T) {
	b := NewBuilder()
	b.EmitJump(OpGoto, b.NewLabel("nowhere"))
	_, err := b.Bytes()
	assert.ErrorIs(t, err, ErrUnresolvedLabel)
}

func TestBuilderEmitLocalForms(t *testing.T) {
	b := NewBuilder()
	b.EmitLocal(OpIload, 2)
	b.EmitLocal(OpLstore, 3)
	b.EmitLocal(OpAload, 9)
	b.EmitLocal(OpDload, 300)
	code := b.MustBytes()
	assert.Equal(t, []byte{
		byte(OpIload2),
		byte(OpLstore3),
		byte(OpAload), 9,
		byte(OpWide), byte(OpDload), 0x01, 0x2c,
	}, code)
}

func TestBuilderEmitInt(t *testing.T) {
	code := NewBuilder().EmitInt(-1).EmitInt(5).EmitInt(100).EmitInt(-1000).MustBytes()
	assert.Equal(t, []byte{
		byte(OpIconstM1),
		byte(OpIconst5),
		byte(OpBipush), 100,
		byte(OpSipush), 0xfc, 0x18,
	}, code)
}

func TestTableSwitchRoundTrip(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpIload0)
	def := b.NewLabel("default")
	c0 := b.NewLabel("c0")
	c1 := b.NewLabel("c1")
	b.EmitTableSwitch(def, 10, []*Label{c0, c1})
	b.Mark(c0).Emit(OpIconst0, OpIreturn)
	b.Mark(c1).Emit(OpIconst1, OpIreturn)
	b.Mark(def).Emit(OpIconstM1, OpIreturn)

	instrs, err := Decode(b.MustBytes())
	require.NoError(t, err)
	require.Len(t, instrs, 8)

	sw := instrs[1]
	require.Equal(t, OpTableswitch, sw.Op)
	require.NotNil(t, sw.Switch)
	assert.Equal(t, []int32{10, 11}, sw.Switch.Keys)
	assert.Equal(t, c0.Position(), sw.PC+int(sw.Switch.Target(10)))
	assert.Equal(t, c1.Position(), sw.PC+int(sw.Switch.Target(11)))
	assert.Equal(t, def.Position(), sw.PC+int(sw.Switch.Target(99)))
}

func TestLookupSwitchDecode(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpNop, OpIload0)
	def := b.NewLabel("default")
	a := b.NewLabel("a")
	b.EmitLookupSwitch(def, []int32{-5, 1000}, []*Label{a, def})
	b.Mark(a).Emit(OpReturn)
	b.Mark(def).Emit(OpReturn)

	instrs, err := Decode(b.MustBytes())
	require.NoError(t, err)
	sw := instrs[2]
	require.Equal(t, OpLookupswitch, sw.Op)
	assert.Equal(t, a.Position(), sw.PC+int(sw.Switch.Target(-5)))
	assert.Equal(t, def.Position(), sw.PC+int(sw.Switch.Target(1000)))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{byte(OpSipush), 0x01})
	assert.ErrorIs(t, err, ErrCodeTruncated)
}

func TestDecodeWideIinc(t *testing.T) {
	code := NewBuilder().EmitIinc(1, 1).EmitIinc(2, 1000).MustBytes()
	instrs, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.False(t, instrs[0].Wide)
	assert.Equal(t, []int{1, 1}, instrs[0].Operands)
	assert.True(t, instrs[1].Wide)
	assert.Equal(t, OpIinc, instrs[1].Op)
	assert.Equal(t, []int{2, 1000}, instrs[1].Operands)
}

type fakePool map[uint16]string

func (p fakePool) Describe(i uint16) string { return p[i] }

func TestDisassemble(t *testing.T) {
	b := NewBuilder()
	b.EmitUint16(OpGetstatic, 7)
	b.EmitInvokeInterface(9, 1)
	b.Emit(OpReturn)

	out, err := Disassemble(b.MustBytes(), fakePool{7: "Field Foo.bar:I", 9: "Method Baz.run:()V"})
	require.NoError(t, err)
	assert.Contains(t, out, "0: getstatic #7 // Field Foo.bar:I")
	assert.Contains(t, out, "3: invokeinterface #9 // Method Baz.run:()V, 1")
	assert.Contains(t, out, "8: return")
}
