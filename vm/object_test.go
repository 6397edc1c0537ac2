package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/blaze/classfile"
)

func TestHiddenFieldsKeepSeparateSlots(t *testing.T) {
	base := newClass("demo/Base", "java/lang/Object").
		AddField(classfile.AccPublic, "x", "I").
		AddField(classfile.AccPublic, "d", "D")
	derived := newClass("demo/Derived", "demo/Base").
		AddField(classfile.AccPublic, "x", "I")

	vm := newVM(t, nil, base, derived)
	d, err := vm.LoadClass("demo/Derived")
	require.NoError(t, err)
	b := d.Super

	h := vm.Heap()
	ref := h.AllocInstance(d)
	assert.Equal(t, 3, d.InstanceSlots())

	v, err := h.GetField(ref, b, "d")
	require.NoError(t, err)
	assert.Equal(t, Double(0), v)

	require.NoError(t, h.SetField(ref, b, "x", Int(1)))
	require.NoError(t, h.SetField(ref, d, "x", Int(2)))
	v, err = h.GetField(ref, b, "x")
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)
	v, err = h.GetField(ref, d, "x")
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)

	// A Base instance has no slot for the field Derived declares.
	other := h.AllocInstance(b)
	_, err = h.GetField(other, d, "x")
	assert.ErrorIs(t, err, ErrNoSuchField)
	_, err = h.GetField(NullRef, b, "x")
	assert.ErrorIs(t, err, ErrNullPointer)

	c, err := h.ClassOf(ref)
	require.NoError(t, err)
	assert.Same(t, d, c)
}
