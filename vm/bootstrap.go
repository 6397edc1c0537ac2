package vm

import (
	"sync"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/classpath"
)

// ---------------------------------------------------------------------------
// Core library: the java/lang classes the engine itself depends on
// ---------------------------------------------------------------------------

// coreHierarchy lists the synthesized throwable classes, each after its
// superclass.
var coreHierarchy = []struct{ name, super string }{
	{"java/lang/Exception", ThrowableClass},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/ClassCastException", "java/lang/RuntimeException"},
	{"java/lang/ArrayStoreException", "java/lang/RuntimeException"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/Error", ThrowableClass},
	{"java/lang/VirtualMachineError", "java/lang/Error"},
	{"java/lang/StackOverflowError", "java/lang/VirtualMachineError"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{"java/lang/NoClassDefFoundError", "java/lang/LinkageError"},
	{"java/lang/ClassFormatError", "java/lang/LinkageError"},
	{"java/lang/ClassCircularityError", "java/lang/LinkageError"},
	{"java/lang/ExceptionInInitializerError", "java/lang/LinkageError"},
	{"java/lang/UnsatisfiedLinkError", "java/lang/LinkageError"},
	{"java/lang/IncompatibleClassChangeError", "java/lang/LinkageError"},
	{"java/lang/NoSuchFieldError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/AbstractMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/InstantiationError", "java/lang/IncompatibleClassChangeError"},
}

var (
	coreOnce sync.Once
	core     *classpath.Memory
)

// CoreLibrary returns a class source holding java/lang/Object,
// java/lang/String and the Throwable hierarchy the engine raises. Put it
// after user classes on a search path.
func CoreLibrary() classpath.Source {
	coreOnce.Do(func() {
		core = classpath.NewMemory().
			Add("java/lang/Object", objectClass()).
			Add("java/lang/String", stringClass()).
			Add(ThrowableClass, throwableClass())
		for _, c := range coreHierarchy {
			core.Add(c.name, throwableSubclass(c.name, c.super))
		}
	})
	return core
}

func objectClass() []byte {
	b := classfile.NewBuilder("java/lang/Object", "")
	b.AddMethod(classfile.AccPublic, classfile.ConstructorName, "()V").
		Asm(0, 1).
		Emit(bytecode.OpReturn)

	// equals compares identity.
	asm := b.AddMethod(classfile.AccPublic, "equals", "(Ljava/lang/Object;)Z").Asm(2, 2)
	differ := asm.NewLabel("differ")
	asm.Emit(bytecode.OpAload0, bytecode.OpAload1).
		EmitJump(bytecode.OpIfAcmpne, differ).
		Emit(bytecode.OpIconst1, bytecode.OpIreturn).
		Mark(differ).
		Emit(bytecode.OpIconst0, bytecode.OpIreturn)
	return b.MustBytes()
}

// stringClass is an opaque final class; the heap stores the characters.
func stringClass() []byte {
	b := classfile.NewBuilder("java/lang/String", "java/lang/Object").
		SetAccess(classfile.AccPublic | classfile.AccFinal | classfile.AccSuper)
	superInit(b, "java/lang/Object")
	return b.MustBytes()
}

func throwableClass() []byte {
	b := classfile.NewBuilder(ThrowableClass, "java/lang/Object")
	b.AddField(classfile.AccPrivate, messageField, "Ljava/lang/String;")
	superInit(b, "java/lang/Object")

	b.AddMethod(classfile.AccPublic, classfile.ConstructorName, "(Ljava/lang/String;)V").
		Asm(2, 2).
		Emit(bytecode.OpAload0).
		EmitUint16(bytecode.OpInvokespecial, b.MethodRef("java/lang/Object", classfile.ConstructorName, "()V")).
		Emit(bytecode.OpAload0, bytecode.OpAload1).
		EmitUint16(bytecode.OpPutfield, b.FieldRef(ThrowableClass, messageField, "Ljava/lang/String;")).
		Emit(bytecode.OpReturn)

	b.AddMethod(classfile.AccPublic, "getMessage", "()Ljava/lang/String;").
		Asm(1, 1).
		Emit(bytecode.OpAload0).
		EmitUint16(bytecode.OpGetfield, b.FieldRef(ThrowableClass, messageField, "Ljava/lang/String;")).
		Emit(bytecode.OpAreturn)
	return b.MustBytes()
}

// throwableSubclass has the two usual constructors, each delegating to
// the superclass.
func throwableSubclass(name, super string) []byte {
	b := classfile.NewBuilder(name, super)
	superInit(b, super)
	b.AddMethod(classfile.AccPublic, classfile.ConstructorName, "(Ljava/lang/String;)V").
		Asm(2, 2).
		Emit(bytecode.OpAload0, bytecode.OpAload1).
		EmitUint16(bytecode.OpInvokespecial, b.MethodRef(super, classfile.ConstructorName, "(Ljava/lang/String;)V")).
		Emit(bytecode.OpReturn)
	return b.MustBytes()
}

// superInit adds a no-argument constructor that calls super's.
func superInit(b *classfile.Builder, super string) {
	b.AddMethod(classfile.AccPublic, classfile.ConstructorName, "()V").
		Asm(1, 1).
		Emit(bytecode.OpAload0).
		EmitUint16(bytecode.OpInvokespecial, b.MethodRef(super, classfile.ConstructorName, "()V")).
		Emit(bytecode.OpReturn)
}
