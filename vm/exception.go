package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Guest exceptions
// ---------------------------------------------------------------------------

// thrown carries a guest Throwable raised by athrow through the step
// result.
type thrown struct {
	ref Ref
}

func (t *thrown) Error() string {
	return fmt.Sprintf("throw @%d", t.ref)
}

// ThrowableClass is the root of every throwable guest class.
const ThrowableClass = "java/lang/Throwable"

// messageField holds a Throwable's detail message.
const messageField = "detailMessage"

// raise turns err into a guest exception and unwinds to the nearest handler
// at or above base. It returns nil when a handler was found and execution
// can continue, an *UncaughtException when the exception escaped the frame
// at base, and any host-fatal error unchanged.
func (i *Interpreter) raise(err error, base int) error {
	var ref Ref
	var t *thrown
	if errors.As(err, &t) {
		ref = t.ref
	} else {
		class, message := guestException(err)
		if class == "" {
			i.log.Errorf("fatal: %s", err)
			i.frames = i.frames[:base]
			return err
		}
		var terr error
		ref, terr = i.newThrowable(class, message)
		if terr != nil {
			i.frames = i.frames[:base]
			return fmt.Errorf("%w: cannot create %s for %q: %w", ErrInternal, class, err, terr)
		}
	}
	return i.unwind(ref, base)
}

// unwind searches the frame stack for a handler of ref, popping frames that
// have none.
func (i *Interpreter) unwind(ref Ref, base int) error {
	if _, ok := i.traces[ref]; !ok {
		i.traces[ref] = i.stackTrace()
	}
	class := i.heap.Get(ref).Class

	for len(i.frames) > base {
		f := i.frames[len(i.frames)-1]
		if pc, ok := i.findHandler(f, class); ok {
			i.log.Debugf("%s caught by %s at pc %d", class.Name, f.Method, pc)
			f.clearStack()
			f.push(RefValue(ref))
			f.PC = pc
			return nil
		}
		i.frames = i.frames[:len(i.frames)-1]
	}

	ue := &UncaughtException{
		Ref:     ref,
		Class:   class.Name,
		Message: i.ThrowableMessage(ref),
		Trace:   i.traces[ref],
	}
	i.log.Infof("%s", ue)
	return ue
}

// findHandler returns the handler pc of the first exception table entry of
// f that covers the faulting instruction and accepts class.
func (i *Interpreter) findHandler(f *Frame, class *Class) (int, bool) {
	for _, h := range f.Method.Code.ExceptionTable {
		if !h.Covers(f.OpPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		catch, err := f.pool.ResolveClass(h.CatchType)
		if err != nil {
			// An unloadable catch type matches nothing.
			i.log.Warningf("%s: catch type %s: %s", f.Method, f.pool.Describe(h.CatchType), err)
			continue
		}
		if class.IsAssignableTo(catch) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

// stackTrace snapshots the frame stack, innermost first.
func (i *Interpreter) stackTrace() []StackElement {
	out := make([]StackElement, 0, len(i.frames))
	for j := len(i.frames) - 1; j >= 0; j-- {
		f := i.frames[j]
		out = append(out, StackElement{
			Class:  f.Method.Class.Name,
			Method: f.Method.Name,
			Line:   f.line(),
			PC:     f.OpPC,
		})
	}
	return out
}

// newThrowable allocates an instance of the named Throwable subclass with
// message as its detail message. The constructor is not run.
func (i *Interpreter) newThrowable(className, message string) (Ref, error) {
	c, err := i.registry.LoadClass(className)
	if err != nil {
		return NullRef, err
	}
	if err := i.registry.EnsureInitialized(c); err != nil {
		return NullRef, err
	}
	ref := i.heap.AllocInstance(c)
	if message == "" {
		return ref, nil
	}
	root, err := i.registry.LoadClass(ThrowableClass)
	if err != nil {
		return NullRef, err
	}
	sc, err := i.registry.StringClass()
	if err != nil {
		return NullRef, err
	}
	msg := RefValue(i.heap.NewString(sc, message))
	if err := i.heap.SetField(ref, root, messageField, msg); err != nil {
		return NullRef, err
	}
	return ref, nil
}

// ThrowableMessage returns the detail message of a Throwable, or "".
func (i *Interpreter) ThrowableMessage(ref Ref) string {
	root := i.registry.Lookup(ThrowableClass)
	if root == nil {
		return ""
	}
	v, err := i.heap.GetField(ref, root, messageField)
	if err != nil || v.IsNull() {
		return ""
	}
	s, _ := i.heap.StringValue(v.AsRef())
	return s
}

