package classifier

import (
	"math"
)

// Softmax subtracts the maximum score before exponentiating so large logits
// cannot overflow.
func Softmax(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}

	maxVal := float64(scores[0])
	for _, v := range scores[1:] {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, v := range scores {
		e := math.Exp(float64(v) - maxVal)
		probs[i] = e
		sum += e
	}

	for i := range probs {
		probs[i] /= sum
	}

	return probs
}

// Argmax returns the index of the first maximum, or -1 for an empty slice.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}

	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}
