// Package classifier turns raw keypoints into a labelled prediction:
// validate, infer, softmax, argmax, decode.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Pipeline is stateless between calls and safe for concurrent use.
type Pipeline struct {
	engine Engine
	labels LabelTable
}

// New checks that the engine consumes FeatureSize values and produces one
// score per label before any request is served.
func New(engine Engine, labels LabelTable) (*Pipeline, error) {
	if engine == nil || labels == nil {
		return nil, fmt.Errorf("%w: engine and label table are required", ErrConfigMismatch)
	}
	if engine.InputSize() != FeatureSize {
		return nil, fmt.Errorf("%w: model expects %d inputs, want %d", ErrConfigMismatch, engine.InputSize(), FeatureSize)
	}
	if engine.OutputSize() != labels.Len() {
		return nil, fmt.Errorf("%w: model emits %d scores for %d labels", ErrConfigMismatch, engine.OutputSize(), labels.Len())
	}

	return &Pipeline{
		engine: engine,
		labels: labels,
	}, nil
}

// Classify validates decoded JSON keypoints and classifies them.
func (p *Pipeline) Classify(ctx context.Context, raw []any) (*Prediction, error) {
	vec, err := ParseKeypoints(raw)
	if err != nil {
		return nil, err
	}
	return p.ClassifyVector(ctx, vec)
}

func (p *Pipeline) ClassifyVector(ctx context.Context, vec FeatureVector) (*Prediction, error) {
	scores, err := p.engine.Infer(ctx, vec[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}
	if len(scores) != p.labels.Len() {
		return nil, fmt.Errorf("%w: got %d scores for %d labels", ErrInferenceFailure, len(scores), p.labels.Len())
	}

	probs := Softmax(scores)
	idx := Argmax(probs)

	label, ok := p.labels.LabelOf(idx)
	if !ok {
		return nil, fmt.Errorf("%w: no label for class index %d", ErrInferenceFailure, idx)
	}

	confidence := probs[idx]
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return nil, fmt.Errorf("%w: non-finite confidence for %q", ErrInferenceFailure, label)
	}

	return &Prediction{
		Label:      label,
		Confidence: confidence,
	}, nil
}

// ParseKeypoints converts a decoded JSON array into a FeatureVector. A nil
// slice means the field was absent.
func ParseKeypoints(raw []any) (FeatureVector, error) {
	var vec FeatureVector

	if raw == nil {
		return vec, fmt.Errorf("%w: keypoints field is required", ErrInvalidInput)
	}
	if len(raw) != FeatureSize {
		return vec, fmt.Errorf("%w: expected %d keypoint values, got %d", ErrInvalidInput, FeatureSize, len(raw))
	}

	for i, v := range raw {
		f, ok := toFloat(v)
		if !ok {
			return vec, fmt.Errorf("%w: keypoint %d is %T, want a number", ErrInvalidInput, i, v)
		}
		vec[i] = float32(f)
	}

	return vec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
