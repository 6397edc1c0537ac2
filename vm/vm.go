package vm

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/classpath"
)

// ---------------------------------------------------------------------------
// VM: the engine facade
// ---------------------------------------------------------------------------

// VM ties together a class source, the registry, the heap and the
// interpreter. A VM is not safe for concurrent use.
type VM struct {
	registry *Registry
	heap     *Heap
	interp   *Interpreter
	log      commonlog.Logger
	profiler *Profiler

	maxFrames int
}

// Option configures a VM.
type Option func(*VM)

// WithMaxFrames bounds the call depth. Deeper calls raise
// java/lang/StackOverflowError.
func WithMaxFrames(n int) Option {
	return func(vm *VM) { vm.maxFrames = n }
}

// WithProfiler counts invocations and instructions into p.
func WithProfiler(p *Profiler) Option {
	return func(vm *VM) { vm.profiler = p }
}

// WithLogger replaces the engine's execution logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// New creates a VM loading classes from src, falling back to the built-in
// core library for anything src lacks.
func New(src classpath.Source, opts ...Option) *VM {
	vm := &VM{
		maxFrames: DefaultMaxFrames,
		log:       commonlog.GetLogger("blaze.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}

	path := classpath.Path{CoreLibrary()}
	if src != nil {
		path = classpath.Path{src, CoreLibrary()}
	}
	vm.heap = NewHeap()
	vm.registry = NewRegistry(path, vm.heap)
	vm.interp = NewInterpreter(vm.registry, vm.heap, vm.maxFrames)
	vm.interp.log = vm.log
	vm.interp.trace = vm.log.AllowLevel(commonlog.Debug)
	vm.interp.profiler = vm.profiler
	return vm
}

// Registry returns the class registry.
func (vm *VM) Registry() *Registry { return vm.registry }

// Heap returns the object heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// Interpreter returns the execution engine.
func (vm *VM) Interpreter() *Interpreter { return vm.interp }

// LoadClass loads and links a class without initializing it.
func (vm *VM) LoadClass(name string) (*Class, error) {
	return vm.registry.LoadClass(name)
}

// Run initializes className and invokes its entry point: a static main
// taking no arguments, or else main(String[]) called with an empty array.
func (vm *VM) Run(className string) (Value, error) {
	c, err := vm.registry.LoadClass(className)
	if err != nil {
		return Value{}, err
	}
	m := entryPoint(c)
	if m == nil {
		return Value{}, fmt.Errorf("%w: %s has no static main method", ErrNoSuchMethod, className)
	}

	var args []Value
	if len(m.Signature.Params) == 1 {
		sc, err := vm.registry.StringClass()
		if err != nil {
			return Value{}, err
		}
		ac, err := vm.registry.ArrayOf(sc)
		if err != nil {
			return Value{}, err
		}
		ref, err := vm.heap.AllocArray(ac, 0)
		if err != nil {
			return Value{}, err
		}
		args = append(args, RefValue(ref))
	}

	vm.log.Infof("running %s", m)
	return vm.interp.Invoke(m, args...)
}

// entryPoint picks the method Run starts from.
func entryPoint(c *Class) *Method {
	var fallback *Method
	for _, m := range c.Methods {
		if m.Name != "main" || !m.IsStatic() || m.Code == nil {
			continue
		}
		if strings.HasPrefix(m.Descriptor, "()") {
			return m
		}
		if m.Descriptor == "([Ljava/lang/String;)V" {
			fallback = m
		}
	}
	return fallback
}

// Invoke runs the static method className.name with the given descriptor.
func (vm *VM) Invoke(className, name, descriptor string, args ...Value) (Value, error) {
	c, err := vm.registry.LoadClass(className)
	if err != nil {
		return Value{}, err
	}
	m := c.FindMethod(name, descriptor)
	if m == nil {
		return Value{}, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, className, name, descriptor)
	}
	if !m.IsStatic() {
		return Value{}, fmt.Errorf("%w: %s is not static", ErrLinkage, m)
	}
	return vm.interp.Invoke(m, args...)
}

// GetStatic reads a static field after initializing its class.
func (vm *VM) GetStatic(className, name string) (Value, error) {
	c, err := vm.registry.LoadClass(className)
	if err != nil {
		return Value{}, err
	}
	f := c.FindField(name, "")
	if f == nil || !f.IsStatic() {
		return Value{}, fmt.Errorf("%w: %s.%s", ErrNoSuchField, className, name)
	}
	if err := vm.registry.EnsureInitialized(f.Class); err != nil {
		return Value{}, err
	}
	return f.Class.Statics[f.Slot], nil
}

// NewString allocates a guest string.
func (vm *VM) NewString(s string) (Value, error) {
	sc, err := vm.registry.StringClass()
	if err != nil {
		return Value{}, err
	}
	return RefValue(vm.heap.NewString(sc, s)), nil
}

// GoString returns the text of a guest string value.
func (vm *VM) GoString(v Value) (string, bool) {
	if v.Kind() != KindRef {
		return "", false
	}
	return vm.heap.StringValue(v.AsRef())
}

// Describe summarizes a loaded class for diagnostics.
func (vm *VM) Describe(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", c.Name, c.State)
	if c.Super != nil {
		fmt.Fprintf(&sb, " extends %s", c.Super.Name)
	}
	for _, f := range c.Fields {
		kind := "instance"
		if f.IsStatic() {
			kind = "static"
		}
		fmt.Fprintf(&sb, "\n  field %s %s slot %d (%s)", f.Name, f.Descriptor, f.Slot, kind)
	}
	for _, m := range c.Methods {
		fmt.Fprintf(&sb, "\n  method %s%s", m.Name, m.Descriptor)
		if m.Flags&classfile.AccStatic != 0 {
			sb.WriteString(" static")
		}
		if m.Code != nil {
			fmt.Fprintf(&sb, " (%d bytes)", len(m.Code.Code))
		}
	}
	if vt := c.VTable; vt != nil {
		for slot, m := range vt.Methods() {
			fmt.Fprintf(&sb, "\n  vtable %d %s%s", slot, m.Name, m.Descriptor)
			if m.Class != vt.Class() {
				fmt.Fprintf(&sb, " from %s", m.Class.Name)
			}
		}
	}
	return sb.String()
}
