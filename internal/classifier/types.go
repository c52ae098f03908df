package classifier

import (
	"context"
)

// FeatureSize is 21 hand landmarks times (x, y, z).
const FeatureSize = 63

type FeatureVector [FeatureSize]float32

// Engine is the forward pass of the classifier.
type Engine interface {
	InputSize() int
	OutputSize() int
	Infer(ctx context.Context, input []float32) ([]float32, error)
}

type LabelTable interface {
	LabelOf(index int) (string, bool)
	Len() int
}

type PredictionRequest struct {
	Keypoints []any `json:"keypoints" validate:"required"`
}

type Prediction struct {
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}
