package classfile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/bytecode"
)

func sampleClass(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder("demo/Point", "java/lang/Object")
	b.AddInterface("java/lang/Runnable")
	b.SetSourceFile("Point.java")
	b.AddField(AccPrivate, "x", "I")
	b.AddField(AccPrivate, "y", "J")
	b.AddConstantField(AccPublic|AccStatic|AccFinal, "ORIGIN", "I", int32(7))
	b.AddConstantField(AccPublic|AccStatic|AccFinal, "NAME", "Ljava/lang/String;", "pt")

	ctor := b.AddMethod(AccPublic, ConstructorName, "()V")
	asm := ctor.Asm(1, 1)
	asm.Emit(bytecode.OpAload0)
	asm.EmitUint16(bytecode.OpInvokespecial, b.MethodRef("java/lang/Object", ConstructorName, "()V"))
	asm.Emit(bytecode.OpReturn)
	ctor.Line(0, 3)

	run := b.AddMethod(AccPublic, "run", "()V")
	a := run.Asm(2, 1)
	start := a.Here("start")
	a.Emit(bytecode.OpIconst1, bytecode.OpIconst0, bytecode.OpIdiv, bytecode.OpPop)
	end := a.Here("end")
	a.Emit(bytecode.OpReturn)
	handler := a.Here("handler")
	a.Emit(bytecode.OpPop, bytecode.OpReturn)
	run.Catch(start, end, handler, "java/lang/ArithmeticException")
	run.Throws("java/lang/Exception")

	b.AddMethod(AccPublic|AccAbstract, "size", "()I")

	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func TestParseRoundTrip(t *testing.T) {
	cd, err := Parse(sampleClass(t))
	require.NoError(t, err)

	assert.Equal(t, "demo/Point", cd.Name)
	assert.Equal(t, "java/lang/Object", cd.SuperName)
	assert.Equal(t, []string{"java/lang/Runnable"}, cd.Interfaces)
	assert.Equal(t, "Point.java", cd.SourceFile)
	assert.Equal(t, DefaultMajorVersion, cd.Version.Major)
	require.Len(t, cd.Fields, 4)
	assert.Equal(t, "J", cd.Field("y").Descriptor)

	origin := cd.Field("ORIGIN")
	require.NotNil(t, origin)
	c, err := cd.Pool.Get(origin.ConstantValueIndex)
	require.NoError(t, err)
	assert.Equal(t, Integer{Value: 7}, c)
	s, err := cd.Pool.StringValue(cd.Field("NAME").ConstantValueIndex)
	require.NoError(t, err)
	assert.Equal(t, "pt", s)

	run := cd.Method("run", "()V")
	require.NotNil(t, run)
	require.NotNil(t, run.Code)
	assert.Equal(t, uint16(2), run.Code.MaxStack)
	require.Len(t, run.Code.ExceptionTable, 1)
	h := run.Code.ExceptionTable[0]
	assert.Equal(t, ExceptionHandler{StartPC: 0, EndPC: 4, HandlerPC: 5, CatchType: h.CatchType}, h)
	name, err := cd.Pool.ClassName(h.CatchType)
	require.NoError(t, err)
	assert.Equal(t, "java/lang/ArithmeticException", name)
	assert.True(t, h.Covers(3))
	assert.False(t, h.Covers(4))
	assert.Equal(t, []string{"java/lang/Exception"}, run.Exceptions)

	ctor := cd.Method(ConstructorName, "()V")
	require.NotNil(t, ctor)
	assert.Equal(t, 3, ctor.Code.LineFor(4))

	size := cd.Method("size", "()I")
	require.NotNil(t, size)
	assert.True(t, size.IsAbstract())
	assert.Nil(t, size.Code)
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := sampleClass(t)
	data[0] = 0xDE
	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrBadMagic)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	data := sampleClass(t)
	binary.BigEndian.PutUint16(data[6:], 99)
	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseTruncated(t *testing.T) {
	data := sampleClass(t)
	for _, n := range []int{0, 3, 9, len(data) / 2, len(data) - 1} {
		_, err := Parse(data[:n])
		assert.ErrorIs(t, err, ErrMalformed, "prefix %d", n)
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	_, err := Parse(append(sampleClass(t), 0))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRequiresSuperclass(t *testing.T) {
	b := NewBuilder("demo/Orphan", "")
	_, err := Parse(b.MustBytes())
	assert.ErrorIs(t, err, ErrMalformed)

	root := NewBuilder("java/lang/Object", "")
	cd, err := Parse(root.MustBytes())
	require.NoError(t, err)
	assert.Empty(t, cd.SuperName)
}

func TestConstantPoolTagChecks(t *testing.T) {
	pool := ConstantPool{
		nil,
		Utf8{Value: "A"},
		ClassRef{NameIndex: 1},
		ClassRef{NameIndex: 2}, // points at a Class, not a Utf8
		Long{Value: 1},
		nil,
		NameAndType{NameIndex: 7, DescriptorIndex: 1},
		NameAndType{NameIndex: 6, DescriptorIndex: 1}, // cycle through the wrong kind
	}
	name, err := pool.ClassName(2)
	require.NoError(t, err)
	assert.Equal(t, "A", name)

	_, err = pool.ClassName(3)
	assert.ErrorIs(t, err, ErrBadConstant)
	_, err = pool.Get(5)
	assert.ErrorIs(t, err, ErrBadConstant)
	_, err = pool.Get(99)
	assert.ErrorIs(t, err, ErrBadConstant)
	_, _, err = pool.NameAndType(6)
	assert.ErrorIs(t, err, ErrBadConstant)
	_, err = pool.MemberRef(2)
	assert.ErrorIs(t, err, ErrBadConstant)
}

func TestDescribe(t *testing.T) {
	b := NewBuilder("demo/A", "java/lang/Object")
	f := b.FieldRef("demo/A", "count", "I")
	s := b.String("hi")
	l := b.Long(-3)
	cd, err := Parse(b.MustBytes())
	require.NoError(t, err)
	assert.Equal(t, "Field demo/A.count:I", cd.Pool.Describe(f))
	assert.Equal(t, `String "hi"`, cd.Pool.Describe(s))
	assert.Equal(t, "long -3", cd.Pool.Describe(l))
	assert.Equal(t, "<invalid>", cd.Pool.Describe(0))
}

func TestModifiedUTF8(t *testing.T) {
	for _, s := range []string{"", "plain", "nul\x00byte", "café", "€", "\U0001F600"} {
		enc := encodeModifiedUTF8(s)
		assert.NotContains(t, enc, byte(0), "%q", s)
		dec, err := decodeModifiedUTF8(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
	_, err := decodeModifiedUTF8([]byte{0xc3})
	assert.ErrorIs(t, err, ErrBadConstant)
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType("[[Ljava/lang/String;")
	require.NoError(t, err)
	assert.Equal(t, TypeArray, ft.Kind)
	assert.Equal(t, "[[Ljava/lang/String;", ft.String())
	require.NotNil(t, ft.Elem)
	assert.Equal(t, "[Ljava/lang/String;", ft.Elem.String())
	assert.Equal(t, "java/lang/String", ft.Elem.Elem.ClassName)
	assert.True(t, ft.IsReference())

	j, err := ParseFieldType("J")
	require.NoError(t, err)
	assert.Equal(t, 2, j.Slots())

	for _, bad := range []string{"", "V", "L;", "Ljava/lang/String", "II", "Q"} {
		_, err := ParseFieldType(bad)
		assert.ErrorIs(t, err, ErrBadDescriptor, bad)
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	md, err := ParseMethodDescriptor("(IJ[DLjava/lang/Object;)Ljava/lang/String;")
	require.NoError(t, err)
	require.Len(t, md.Params, 4)
	assert.Equal(t, 1+2+1+1, md.ArgSlots())
	require.NotNil(t, md.Return)
	assert.Equal(t, "java/lang/String", md.Return.ClassName)

	v, err := ParseMethodDescriptor("()V")
	require.NoError(t, err)
	assert.Nil(t, v.Return)
	assert.Zero(t, v.ArgSlots())

	for _, bad := range []string{"V", "(I", "(I)", "()VV", "(V)V"} {
		_, err := ParseMethodDescriptor(bad)
		assert.ErrorIs(t, err, ErrBadDescriptor, bad)
	}
}
