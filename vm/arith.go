package vm

import (
	"fmt"
	"math"
)

// Integer division and remainder. Go's wraparound for MinInt / -1 matches
// two's-complement semantics; only a zero divisor needs care.

func idiv(a, b int32) (int32, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
	}
	return a / b, nil
}

func irem(a, b int32) (int32, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
	}
	return a % b, nil
}

func ldiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
	}
	return a / b, nil
}

func lrem(a, b int64) (int64, error) {
	if b == 0 {
		return 0, fmt.Errorf("%w: / by zero", ErrArithmetic)
	}
	return a % b, nil
}

// Shifts use the low five (int) or six (long) bits of the distance.

func ishl(a, b int32) int32  { return a << (uint32(b) & 0x1f) }
func ishr(a, b int32) int32  { return a >> (uint32(b) & 0x1f) }
func iushr(a, b int32) int32 { return int32(uint32(a) >> (uint32(b) & 0x1f)) }
func lshl(a int64, b int32) int64  { return a << (uint32(b) & 0x3f) }
func lshr(a int64, b int32) int64  { return a >> (uint32(b) & 0x3f) }
func lushr(a int64, b int32) int64 { return int64(uint64(a) >> (uint32(b) & 0x3f)) }

// Floating remainder truncates toward zero, as math.Mod does.

func frem(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) }
func drem(a, b float64) float64 { return math.Mod(a, b) }

// Float to integer conversions saturate and map NaN to zero.

func d2i(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

func d2l(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

// Comparisons push -1, 0 or 1. An unordered floating comparison pushes
// nan, which is -1 for the *cmpl forms and 1 for *cmpg.

func lcmp(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func fcmp(a, b float64, nan int32) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return nan
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
