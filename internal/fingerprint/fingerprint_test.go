package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_PermutingMapKeysIsStable(t *testing.T) {
	a := map[string]int{"x": 1, "y": 2, "z": 3}
	b := map[string]int{"z": 3, "x": 1, "y": 2}

	assert.Equal(t, Of(a, nil), Of(b, nil))
}

func TestOf_PermutingSliceOrderDiffers(t *testing.T) {
	a := []int{1, 2, 3}
	b := []int{3, 2, 1}

	assert.NotEqual(t, Of(a, nil), Of(b, nil))
}

func TestOf_DistinguishesZeroAndNegativeZero(t *testing.T) {
	assert.NotEqual(t, Of(0.0, nil), Of(math.Copysign(0, -1), nil))
}

func TestOf_DistinguishesNaNFromNumbers(t *testing.T) {
	assert.NotEqual(t, Of(math.NaN(), nil), Of(1.0, nil))
	assert.Equal(t, Of(math.NaN(), nil), Of(math.NaN(), nil))
}

func TestOf_Cycle(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	n := &node{Name: "a"}
	n.Next = n

	assert.NotPanics(t, func() { Of(n, nil) })
}

func TestOf_DistinctFunctionsDiffer(t *testing.T) {
	f1 := func() {}
	f2 := func() {}

	assert.NotEqual(t, Of(f1, nil), Of(f2, nil))
	assert.Equal(t, Of(f1, nil), Of(f1, nil))
}

func TestOf_CustomSerializerIsOpaque(t *testing.T) {
	got := Of(map[string]int{"a": 1}, func(v any) string { return "literal" })
	assert.Equal(t, "literal", got)
}

func TestHash_StableWidth(t *testing.T) {
	h := Hash("anything")
	assert.Len(t, h, 16)
}
