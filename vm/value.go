package vm

import (
	"fmt"
	"math"
)

// Kind identifies what a Value slot holds.
type Kind uint8

const (
	// KindTop marks an unusable slot: an uninitialized local or the upper
	// half of a long or double in the local variable array.
	KindTop Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
	KindReturnAddress
)

var kindNames = [...]string{"top", "int", "long", "float", "double", "ref", "returnAddress"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is one operand stack entry or local variable slot. Int also carries
// boolean, byte, char and short values.
//
// Longs and doubles occupy a single operand stack entry but two local
// variable slots; the second slot holds Top.
type Value struct {
	kind Kind
	bits uint64
}

// Null is the null reference.
var Null = Value{kind: KindRef}

// Top is the unusable slot value.
var Top = Value{}

func Int(v int32) Value { return Value{kind: KindInt, bits: uint64(uint32(v))} }
func Long(v int64) Value { return Value{kind: KindLong, bits: uint64(v)} }
func Float(v float32) Value { return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))} }
func Double(v float64) Value { return Value{kind: KindDouble, bits: math.Float64bits(v)} }
func RefValue(r Ref) Value { return Value{kind: KindRef, bits: uint64(r)} }
func returnAddress(pc int) Value { return Value{kind: KindReturnAddress, bits: uint64(pc)} }

// Bool is an Int of 0 or 1.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt() int32 { return int32(uint32(v.bits)) }
func (v Value) AsLong() int64 { return int64(v.bits) }
func (v Value) AsFloat() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) AsDouble() float64 { return math.Float64frombits(v.bits) }
func (v Value) AsRef() Ref { return Ref(v.bits) }
func (v Value) retPC() int { return int(v.bits) }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool {
	return v.kind == KindRef && v.bits == 0
}

// IsWide reports whether v is a long or double.
func (v Value) IsWide() bool {
	return v.kind == KindLong || v.kind == KindDouble
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.AsInt())
	case KindLong:
		return fmt.Sprintf("%dL", v.AsLong())
	case KindFloat:
		return fmt.Sprintf("%gf", v.AsFloat())
	case KindDouble:
		return fmt.Sprintf("%gd", v.AsDouble())
	case KindRef:
		if v.IsNull() {
			return "null"
		}
		return fmt.Sprintf("@%d", v.AsRef())
	case KindReturnAddress:
		return fmt.Sprintf("ret:%d", v.bits)
	}
	return "top"
}

// ZeroValue returns the default value for a descriptor base type.
func ZeroValue(kind byte) Value {
	switch kind {
	case 'J':
		return Long(0)
	case 'F':
		return Float(0)
	case 'D':
		return Double(0)
	case 'L', '[':
		return Null
	}
	return Int(0)
}
