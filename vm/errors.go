package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Host-side error types
// ---------------------------------------------------------------------------

// Linkage failures. Each is converted to the matching guest error when it
// occurs while executing bytecode.
var (
	ErrClassNotFound = errors.New("class not found")
	ErrNoSuchField   = errors.New("no such field")
	ErrNoSuchMethod  = errors.New("no such method")
	ErrLinkage       = errors.New("linkage error")

	ErrInitialization = errors.New("class initialization failed")

	// errInitializerThrew is the first failure of a static initializer;
	// errPreviouslyFailed is every later use of the same class.
	errInitializerThrew = fmt.Errorf("%w: exception in static initializer", ErrInitialization)
	errPreviouslyFailed = fmt.Errorf("%w: class previously failed to initialize", ErrInitialization)
)

// Runtime failures raised by individual instructions.
var (
	ErrNullPointer       = errors.New("null pointer access")
	ErrIndexOutOfBounds  = errors.New("index out of bounds")
	ErrNegativeArraySize = errors.New("negative array size")
	ErrArithmetic        = errors.New("arithmetic error")
	ErrClassCast         = errors.New("class cast")
	ErrArrayStore        = errors.New("array store")
	ErrAbstractMethod    = errors.New("abstract method invoked")
	ErrInstantiation     = errors.New("cannot instantiate")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrUnsatisfiedLink   = errors.New("native method not available")
)

// Host-fatal failures. These are never visible to guest code.
var (
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrInternal          = errors.New("internal error")
	ErrUncaught          = errors.New("uncaught exception")
)

// guestErrors maps host failures to the guest class thrown in their place.
// Order matters: the first match wins, so specific errors come before the
// general ones they wrap.
var guestErrors = []struct {
	err   error
	class string
}{
	{errInitializerThrew, "java/lang/ExceptionInInitializerError"},
	{errPreviouslyFailed, "java/lang/NoClassDefFoundError"},
	{ErrClassNotFound, "java/lang/NoClassDefFoundError"},
	{ErrNoSuchField, "java/lang/NoSuchFieldError"},
	{ErrNoSuchMethod, "java/lang/NoSuchMethodError"},
	{ErrAbstractMethod, "java/lang/AbstractMethodError"},
	{ErrInstantiation, "java/lang/InstantiationError"},
	{ErrUnsatisfiedLink, "java/lang/UnsatisfiedLinkError"},
	{ErrLinkage, "java/lang/LinkageError"},
	{ErrNullPointer, "java/lang/NullPointerException"},
	{ErrIndexOutOfBounds, "java/lang/ArrayIndexOutOfBoundsException"},
	{ErrNegativeArraySize, "java/lang/NegativeArraySizeException"},
	{ErrArithmetic, "java/lang/ArithmeticException"},
	{ErrClassCast, "java/lang/ClassCastException"},
	{ErrArrayStore, "java/lang/ArrayStoreException"},
	{ErrStackOverflow, "java/lang/StackOverflowError"},
}

// guestException returns the guest class thrown in place of err and its
// detail message, or "" when err is fatal to the host.
func guestException(err error) (class, message string) {
	for _, g := range guestErrors {
		if errors.Is(err, g.err) {
			return g.class, strings.TrimPrefix(err.Error(), g.err.Error()+": ")
		}
	}
	return "", ""
}

// internalError is panicked for conditions that well-formed input never
// produces. The interpreter loop recovers it into ErrInternal.
type internalError string

func internalf(format string, args ...any) internalError {
	return internalError(fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Uncaught exceptions
// ---------------------------------------------------------------------------

// StackElement is one line of a guest stack trace.
type StackElement struct {
	Class  string
	Method string
	Line   int // 0 when unknown
	PC     int
}

func (e StackElement) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s.%s(line %d)", e.Class, e.Method, e.Line)
	}
	return fmt.Sprintf("%s.%s(pc %d)", e.Class, e.Method, e.PC)
}

// UncaughtException is returned when a thrown value unwinds past the
// outermost frame of a run.
type UncaughtException struct {
	Ref     Ref
	Class   string
	Message string
	Trace   []StackElement
}

func (e *UncaughtException) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("uncaught %s: %s", e.Class, e.Message)
	}
	return "uncaught " + e.Class
}

// Is makes errors.Is(err, ErrUncaught) match.
func (e *UncaughtException) Is(target error) bool {
	return target == ErrUncaught
}

// StackTrace renders the guest trace, innermost frame first.
func (e *UncaughtException) StackTrace() string {
	s := e.Error()
	for _, el := range e.Trace {
		s += "\n\tat " + el.String()
	}
	return s
}
