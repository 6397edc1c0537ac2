package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/bytecode"
)

func TestProfilerCountsInvocations(t *testing.T) {
	main := newClass("demo/Main", "java/lang/Object")
	main.AddMethod(pubStatic, "id", "(I)I").Asm(1, 1).Emit(bytecode.OpIload0, bytecode.OpIreturn)
	id := main.MethodRef("demo/Main", "id", "(I)I")
	asm := main.AddMethod(pubStatic, "run", "()I").Asm(2, 0)
	asm.EmitInt(1).EmitUint16(bytecode.OpInvokestatic, id)
	asm.EmitUint16(bytecode.OpInvokestatic, id)
	asm.EmitUint16(bytecode.OpInvokestatic, id)
	asm.Emit(bytecode.OpIreturn)

	p := NewProfiler()
	p.HotThreshold = 3
	var hot []string
	p.OnHot = func(m *Method, _ *MethodProfile) { hot = append(hot, m.Name) }

	vm := newVM(t, []Option{WithProfiler(p)}, main)
	v, err := vm.Invoke("demo/Main", "run", "()I")
	require.NoError(t, err)
	assert.Equal(t, int32(1), v.AsInt())

	c, err := vm.LoadClass("demo/Main")
	require.NoError(t, err)
	idProfile := p.Profile(c.DeclaredMethod("id", "(I)I"))
	require.NotNil(t, idProfile)
	assert.Equal(t, uint64(3), idProfile.Invocations)
	assert.Equal(t, uint64(6), idProfile.Instructions)
	assert.True(t, idProfile.IsHot)
	assert.Equal(t, []string{"id"}, hot)

	runProfile := p.Profile(c.DeclaredMethod("run", "()I"))
	require.NotNil(t, runProfile)
	assert.Equal(t, uint64(1), runProfile.Invocations)
	assert.Equal(t, uint64(5), runProfile.Instructions)

	top := p.Top(1)
	require.Len(t, top, 1)
	assert.Same(t, idProfile, top[0])
	assert.Equal(t, []*Method{idProfile.Method}, p.HotMethods())

	p.Reset()
	assert.Nil(t, p.Profile(idProfile.Method))
}
