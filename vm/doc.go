// Package vm implements the blaze class-file execution engine.
//
// This package contains:
//   - Tagged value representation with two-slot longs and doubles
//   - Append-only instance layouts and a reference-addressed heap
//   - VTable-based virtual and interface dispatch with inline caches
//   - Lazy constant pool resolution and class initialization
//   - Bytecode interpreter with exception table unwinding
package vm
