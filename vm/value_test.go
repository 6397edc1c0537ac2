package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		kind Kind
		wide bool
		str  string
	}{
		{Int(-7), KindInt, false, "-7"},
		{Long(math.MaxInt64), KindLong, true, "9223372036854775807L"},
		{Float(1.5), KindFloat, false, "1.5f"},
		{Double(-0.25), KindDouble, true, "-0.25d"},
		{Null, KindRef, false, "null"},
		{RefValue(3), KindRef, false, "@3"},
		{Top, KindTop, false, "top"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.v.Kind())
			assert.Equal(t, tt.wide, tt.v.IsWide())
			assert.Equal(t, tt.str, tt.v.String())
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	assert.Equal(t, int32(math.MinInt32), Int(math.MinInt32).AsInt())
	assert.Equal(t, int64(math.MinInt64), Long(math.MinInt64).AsLong())
	assert.True(t, math.IsNaN(float64(Float(float32(math.NaN())).AsFloat())))
	assert.True(t, math.Signbit(Double(math.Copysign(0, -1)).AsDouble()))
	assert.Equal(t, Int(1), Bool(true))
	assert.Equal(t, Int(0), Bool(false))
	assert.True(t, Null.IsNull())
	assert.False(t, RefValue(1).IsNull())
	assert.False(t, Int(0).IsNull())
}
