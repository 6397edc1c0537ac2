package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/classpath"
)

func TestLoadFailuresAreCached(t *testing.T) {
	vm := New(classpath.NewMemory())
	_, err := vm.LoadClass("demo/Missing")
	require.ErrorIs(t, err, ErrClassNotFound)
	_, again := vm.LoadClass("demo/Missing")
	assert.Same(t, err, again)
}

func TestLoadRejectsBadHierarchies(t *testing.T) {
	iface := newInterface("demo/Iface")
	final := newClass("demo/Final", "java/lang/Object").
		SetAccess(classfile.AccPublic | classfile.AccSuper | classfile.AccFinal)
	extendsIface := newClass("demo/ExtendsIface", "demo/Iface")
	extendsFinal := newClass("demo/ExtendsFinal", "demo/Final")
	implementsClass := newClass("demo/ImplementsClass", "java/lang/Object").AddInterface("demo/Final")
	loopA := newClass("demo/LoopA", "demo/LoopB")
	loopB := newClass("demo/LoopB", "demo/LoopA")

	vm := newVM(t, nil, iface, final, extendsIface, extendsFinal, implementsClass, loopA, loopB)
	for _, name := range []string{"demo/ExtendsIface", "demo/ExtendsFinal", "demo/ImplementsClass", "demo/LoopA"} {
		_, err := vm.LoadClass(name)
		assert.ErrorIs(t, err, ErrLinkage, name)
	}
	assert.Nil(t, vm.Registry().Lookup("demo/LoopA"))
}

func TestLoadRejectsMalformedBytes(t *testing.T) {
	mem := classpath.NewMemory().
		Add("demo/Garbage", []byte{0xca, 0xfe}).
		Add("demo/Renamed", newClass("demo/Other", "java/lang/Object").MustBytes())
	vm := New(mem)

	_, err := vm.LoadClass("demo/Garbage")
	assert.ErrorIs(t, err, ErrLinkage)
	assert.ErrorIs(t, err, classfile.ErrMalformed)

	_, err = vm.LoadClass("demo/Renamed")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestArrayClasses(t *testing.T) {
	vm := newVM(t, nil, newClass("demo/Elem", "java/lang/Object"))
	ints, err := vm.LoadClass("[I")
	require.NoError(t, err)
	assert.Nil(t, ints.Component)
	assert.Equal(t, byte('I'), ints.ElemType)
	assert.Equal(t, StateInitialized, ints.State)

	elem, err := vm.LoadClass("demo/Elem")
	require.NoError(t, err)
	elems, err := vm.Registry().ArrayOf(elem)
	require.NoError(t, err)
	assert.Equal(t, "[Ldemo/Elem;", elems.Name)
	nested, err := vm.Registry().ArrayOf(elems)
	require.NoError(t, err)
	assert.Equal(t, "[[Ldemo/Elem;", nested.Name)
	assert.Same(t, elems, nested.Component)

	object := vm.Registry().Lookup("java/lang/Object")
	objects, err := vm.Registry().ArrayOf(object)
	require.NoError(t, err)
	assert.True(t, elems.IsAssignableTo(objects))
	assert.True(t, elems.IsAssignableTo(object))
	assert.False(t, objects.IsAssignableTo(elems))
	assert.False(t, ints.IsAssignableTo(objects))
}

func TestPackagePrivateOverride(t *testing.T) {
	base := newClass("a/Base", "java/lang/Object")
	base.AddMethod(0, "hidden", "()I").Asm(1, 1).Emit(bytecode.OpIconst1, bytecode.OpIreturn)
	base.AddMethod(classfile.AccProtected, "shown", "()I").Asm(1, 1).Emit(bytecode.OpIconst1, bytecode.OpIreturn)
	other := newClass("b/Other", "a/Base")
	other.AddMethod(0, "hidden", "()I").Asm(1, 1).Emit(bytecode.OpIconst2, bytecode.OpIreturn)
	other.AddMethod(classfile.AccPublic, "shown", "()I").Asm(1, 1).Emit(bytecode.OpIconst2, bytecode.OpIreturn)

	vm := newVM(t, nil, base, other)
	o, err := vm.LoadClass("b/Other")
	require.NoError(t, err)
	b := o.Super

	// A package-private method in another package gets its own slot.
	assert.NotEqual(t, b.VTable.IndexOf("hidden", "()I"), o.VTable.IndexOf("hidden", "()I"))
	assert.Equal(t, b.VTable.IndexOf("shown", "()I"), o.VTable.IndexOf("shown", "()I"))
	assert.Equal(t, b.VTable.Len()+1, o.VTable.Len())
}

func TestDefaultMethodFillsInterfaceSlot(t *testing.T) {
	greeter := newInterface("demo/Greeter")
	greeter.AddMethod(classfile.AccPublic, "greet", "()I").Asm(1, 1).EmitInt(9).Emit(bytecode.OpIreturn)
	impl := newClass("demo/Impl", "java/lang/Object").AddInterface("demo/Greeter")

	main := newClass("demo/Main", "java/lang/Object")
	asm := main.AddMethod(pubStatic, "run", "()I").Asm(2, 0)
	construct(asm, main, "demo/Impl")
	asm.EmitInvokeInterface(main.InterfaceMethodRef("demo/Greeter", "greet", "()I"), 1).
		Emit(bytecode.OpIreturn)

	vm := newVM(t, nil, greeter, impl, main)
	v, err := vm.Invoke("demo/Main", "run", "()I")
	require.NoError(t, err)
	assert.Equal(t, int32(9), v.AsInt())
}

func TestConstantPoolResolution(t *testing.T) {
	vm := New(nil)
	object, err := vm.LoadClass("java/lang/Object")
	require.NoError(t, err)

	raw := classfile.ConstantPool{
		nil,
		classfile.ClassRef{NameIndex: 1}, // names itself
		classfile.Utf8{Value: "java/lang/Object"},
		classfile.ClassRef{NameIndex: 2},
		classfile.Integer{Value: 12},
		classfile.ClassRef{NameIndex: 6},
		classfile.Utf8{Value: "demo/Nope"},
	}
	cp := newConstantPool(object, raw, vm.Registry())

	_, err = cp.ResolveClass(1)
	assert.ErrorIs(t, err, ErrLinkage)

	c, err := cp.ResolveClass(3)
	require.NoError(t, err)
	assert.Same(t, object, c)

	v, err := cp.Literal(4)
	require.NoError(t, err)
	assert.Equal(t, Int(12), v)

	_, err = cp.ResolveClass(5)
	require.ErrorIs(t, err, ErrClassNotFound)
	_, again := cp.ResolveClass(5)
	assert.Same(t, err, again)

	_, err = cp.Literal(3)
	assert.ErrorIs(t, err, ErrUnsupportedOpcode)

	_, err = cp.ResolveField(4)
	assert.ErrorIs(t, err, ErrLinkage)
	_, err = cp.ResolveClass(99)
	assert.ErrorIs(t, err, ErrLinkage)
}

func TestHeap(t *testing.T) {
	vm := New(nil)
	h := vm.Heap()
	bools, err := vm.LoadClass("[Z")
	require.NoError(t, err)

	ref, err := h.AllocArray(bools, 2)
	require.NoError(t, err)
	require.NoError(t, h.Store(ref, 1, Int(3)))
	v, err := h.Load(ref, 1)
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)

	_, err = h.Load(ref, 2)
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)
	_, err = h.Load(NullRef, 0)
	assert.ErrorIs(t, err, ErrNullPointer)
	_, err = h.AllocArray(bools, -1)
	assert.ErrorIs(t, err, ErrNegativeArraySize)

	sc, err := vm.Registry().StringClass()
	require.NoError(t, err)
	a := h.Intern(sc, "x")
	assert.Equal(t, a, h.Intern(sc, "x"))
	assert.NotEqual(t, a, h.NewString(sc, "x"))
	s, ok := h.StringValue(a)
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = h.StringValue(ref)
	assert.False(t, ok)
}
