package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func TestSoftmaxSumsToOne(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
	}{
		{"single", []float32{3}},
		{"uniform", []float32{0, 0, 0, 0}},
		{"mixed", []float32{-2.5, 0.1, 4, 1.75}},
		{"large logits", []float32{1000, 999, 998}},
		{"very negative", []float32{-1000, -1001, -1002}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs := Softmax(tt.scores)
			require.Len(t, probs, len(tt.scores))
			assert.InDelta(t, 1.0, sum(probs), 1e-5)
			for _, p := range probs {
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 1.0)
			}
		})
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	scores := []float32{1.5, -0.5, 3.25, 0}
	shifted := make([]float32, len(scores))
	for i, v := range scores {
		shifted[i] = v + 100
	}

	base := Softmax(scores)
	moved := Softmax(shifted)
	for i := range base {
		assert.InDelta(t, base[i], moved[i], 1e-5)
	}
}

func TestSoftmaxEmpty(t *testing.T) {
	assert.Nil(t, Softmax(nil))
}

func TestSoftmaxTieBreaksToFirstIndex(t *testing.T) {
	probs := Softmax([]float32{5, 5, 1})

	assert.Equal(t, probs[0], probs[1])
	assert.Greater(t, probs[0], probs[2])
	assert.Equal(t, 0, Argmax(probs))
}

func TestArgmax(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected int
	}{
		{"empty", nil, -1},
		{"single", []float64{0.2}, 0},
		{"last", []float64{0.1, 0.2, 0.7}, 2},
		{"tie middle", []float64{0.1, 0.45, 0.45}, 1},
		{"all equal", []float64{0.25, 0.25, 0.25, 0.25}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Argmax(tt.values))
		})
	}
}
