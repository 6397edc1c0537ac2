package vm

import (
	"fmt"

	"github.com/chazu/blaze/classfile"
)

// ---------------------------------------------------------------------------
// Method invocation
// ---------------------------------------------------------------------------

func (i *Interpreter) invokeStatic(f *Frame, index uint16) error {
	m, err := f.pool.ResolveMethod(index)
	if err != nil {
		return err
	}
	if !m.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is not static", ErrLinkage, m)
	}
	if err := i.registry.EnsureInitialized(m.Class); err != nil {
		return err
	}
	return i.call(f, m)
}

// invokeSpecial calls constructors, private methods and superclass methods
// without virtual dispatch.
func (i *Interpreter) invokeSpecial(f *Frame, index uint16) error {
	m, err := f.pool.ResolveMethod(index)
	if err != nil {
		return err
	}
	if m.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is static", ErrLinkage, m)
	}
	target := m
	caller := f.Method.Class
	if m.Name != classfile.ConstructorName && !m.IsPrivate() && !m.Class.IsInterface() &&
		caller.Flags&classfile.AccSuper != 0 && caller != m.Class && caller.IsSubclassOf(m.Class) {
		// Superclass call: start the search above the caller.
		target = caller.Super.FindMethod(m.Name, m.Descriptor)
		if target == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchMethod, m)
		}
	}
	if err := i.receiver(f, m); err != nil {
		return err
	}
	return i.call(f, target)
}

// invokeVirtual selects the implementation from the receiver's runtime
// class.
func (i *Interpreter) invokeVirtual(f *Frame, index uint16) error {
	m, err := f.pool.ResolveMethod(index)
	if err != nil {
		return err
	}
	if m.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is static", ErrLinkage, m)
	}
	if err := i.receiver(f, m); err != nil {
		return err
	}
	if m.IsPrivate() {
		return i.call(f, m)
	}
	target, err := i.selectMethod(f, m)
	if err != nil {
		return err
	}
	return i.call(f, target)
}

func (i *Interpreter) invokeInterface(f *Frame, index uint16) error {
	m, err := f.pool.ResolveInterfaceMethod(index)
	if err != nil {
		return err
	}
	if m.IsStatic() {
		return fmt.Errorf("%w: incompatible class change: %s is static", ErrLinkage, m)
	}
	if err := i.receiver(f, m); err != nil {
		return err
	}
	rc := i.heap.Get(f.peek(len(m.Signature.Params)).AsRef()).Class
	if !rc.IsAssignableTo(m.Class) {
		return fmt.Errorf("%w: incompatible class change: %s does not implement %s", ErrLinkage, rc.Name, m.Class.Name)
	}
	if m.IsPrivate() {
		return i.call(f, m)
	}
	target, err := i.selectMethod(f, m)
	if err != nil {
		return err
	}
	return i.call(f, target)
}

// receiver checks that the receiver of an instance call is not null.
func (i *Interpreter) receiver(f *Frame, m *Method) error {
	if f.peek(len(m.Signature.Params)).IsNull() {
		return fmt.Errorf("%w: invoking %s", ErrNullPointer, m.Name)
	}
	return nil
}

// selectMethod finds the most derived override of m for the receiver on
// f's stack.
func (i *Interpreter) selectMethod(f *Frame, m *Method) (*Method, error) {
	rc := i.heap.Get(f.peek(len(m.Signature.Params)).AsRef()).Class
	ic := f.Method.callSite(f.OpPC)
	if target := ic.Lookup(rc); target != nil {
		return target, nil
	}
	target := rc.VTable.Lookup(m.Name, m.Descriptor)
	if target == nil {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, rc.Name, m.Name, m.Descriptor)
	}
	ic.Update(rc, target)
	return target, nil
}

// call pops m's arguments from the caller's stack into a new frame and makes
// it current. The caller resumes after the invoke instruction once the
// callee returns.
func (i *Interpreter) call(f *Frame, m *Method) error {
	switch {
	case m.IsNative():
		return fmt.Errorf("%w: %s", ErrUnsatisfiedLink, m)
	case m.IsAbstract() || m.Code == nil:
		return fmt.Errorf("%w: %s", ErrAbstractMethod, m)
	case len(i.frames) >= i.maxFrames:
		return fmt.Errorf("%w: %d frames", ErrStackOverflow, len(i.frames))
	}

	n := len(m.Signature.Params)
	if !m.IsStatic() {
		n++
	}
	if n > len(f.Stack) {
		panic(internalf("%s needs %d arguments, stack has %d", m, n, len(f.Stack)))
	}
	args := f.Stack[len(f.Stack)-n:]
	params := m.Signature.Params
	if !m.IsStatic() {
		if args[0].Kind() != KindRef {
			panic(internalf("%s receiver is %s", m, args[0].Kind()))
		}
		args = args[1:]
	}
	for j, p := range params {
		if args[j].Kind() != kindOf(p) {
			panic(internalf("%s argument %d is %s, want %s", m, j, args[j].Kind(), kindOf(p)))
		}
	}

	callee := newFrame(m, f)
	if m.ArgSlots > len(callee.Locals) {
		panic(internalf("%s has %d locals for %d argument slots", m, len(callee.Locals), m.ArgSlots))
	}
	slot := 0
	for _, a := range f.Stack[len(f.Stack)-n:] {
		callee.setLocal(slot, a)
		slot++
		if a.IsWide() {
			slot++
		}
	}
	f.Stack = f.Stack[:len(f.Stack)-n]
	i.enter(callee)
	return nil
}

// kindOf returns the stack kind that carries values of type t.
func kindOf(t classfile.FieldType) Kind {
	switch t.Kind {
	case classfile.TypeLong:
		return KindLong
	case classfile.TypeFloat:
		return KindFloat
	case classfile.TypeDouble:
		return KindDouble
	case classfile.TypeObject, classfile.TypeArray:
		return KindRef
	}
	return KindInt
}
