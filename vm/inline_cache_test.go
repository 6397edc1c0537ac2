package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
)

func TestInlineCacheStates(t *testing.T) {
	var ic InlineCache
	classes := make([]*Class, MaxPICEntries+1)
	targets := make([]*Method, len(classes))
	for j := range classes {
		classes[j] = &Class{Name: "demo/C"}
		targets[j] = &Method{Class: classes[j], Name: "m", Descriptor: "()V"}
	}

	assert.Nil(t, ic.Lookup(classes[0]))
	ic.Update(classes[0], targets[0])
	assert.Equal(t, CacheMonomorphic, ic.State)
	assert.Same(t, targets[0], ic.Lookup(classes[0]))

	ic.Update(classes[0], targets[0])
	assert.Equal(t, CacheMonomorphic, ic.State)

	for j := 1; j < MaxPICEntries; j++ {
		ic.Update(classes[j], targets[j])
	}
	assert.Equal(t, CachePolymorphic, ic.State)
	assert.Same(t, targets[MaxPICEntries-1], ic.Lookup(classes[MaxPICEntries-1]))

	ic.Update(classes[MaxPICEntries], targets[MaxPICEntries])
	assert.Equal(t, CacheMegamorphic, ic.State)
	assert.Nil(t, ic.Lookup(classes[0]))
	ic.Update(classes[0], targets[0])
	assert.Equal(t, CacheMegamorphic, ic.State)

	assert.Equal(t, uint64(2), ic.Hits)
	assert.Equal(t, uint64(2), ic.Misses)
}

func TestCallSiteCachesReceiverClasses(t *testing.T) {
	animal := newClass("demo/Animal", "java/lang/Object")
	animal.AddMethod(classfile.AccPublic, "speak", "()I").Asm(1, 1).Emit(bytecode.OpIconst1, bytecode.OpIreturn)
	dog := newClass("demo/Dog", "demo/Animal")
	dog.AddMethod(classfile.AccPublic, "speak", "()I").Asm(1, 1).Emit(bytecode.OpIconst2, bytecode.OpIreturn)

	main := newClass("demo/Main", "java/lang/Object")
	main.AddMethod(pubStatic, "speak", "(Ldemo/Animal;)I").Asm(1, 1).
		Emit(bytecode.OpAload0).
		EmitUint16(bytecode.OpInvokevirtual, main.MethodRef("demo/Animal", "speak", "()I")).
		Emit(bytecode.OpIreturn)
	speak := main.MethodRef("demo/Main", "speak", "(Ldemo/Animal;)I")
	asm := main.AddMethod(pubStatic, "run", "()I").Asm(4, 0)
	for _, c := range []string{"demo/Dog", "demo/Animal", "demo/Dog"} {
		construct(asm, main, c)
		asm.EmitUint16(bytecode.OpInvokestatic, speak)
	}
	asm.Emit(bytecode.OpIadd, bytecode.OpIadd, bytecode.OpIreturn)

	vm := newVM(t, nil, animal, dog, main)
	v, err := vm.Invoke("demo/Main", "run", "()I")
	require.NoError(t, err)
	assert.Equal(t, int32(5), v.AsInt())

	c, err := vm.LoadClass("demo/Main")
	require.NoError(t, err)
	ic := c.DeclaredMethod("speak", "(Ldemo/Animal;)I").CallSite(1)
	require.NotNil(t, ic)
	assert.Equal(t, CachePolymorphic, ic.State)
	assert.Equal(t, uint64(1), ic.Hits)
	assert.Equal(t, uint64(2), ic.Misses)
}
