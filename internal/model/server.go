package model

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ErrInputSize    = errors.New("input size mismatch")
	ErrEngineClosed = errors.New("engine closed")
)

type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// Engine runs a single-input, single-output float32 ONNX model. Every pooled
// session owns its own tensors, so Infer may be called concurrently.
type Engine struct {
	metadata   Metadata
	inputSize  int
	outputSize int

	sessions chan *session
	all      []*session

	closeOnce sync.Once
	done      chan struct{}
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}

	in, err := selectTensor(inputs, cfg.InputName, DefaultInputName)
	if err != nil {
		return nil, fmt.Errorf("input selection: %w", err)
	}
	out, err := selectTensor(outputs, cfg.OutputName, DefaultOutputName)
	if err != nil {
		return nil, fmt.Errorf("output selection: %w", err)
	}

	inputShape := resolveShape(in.Dimensions)
	outputShape := resolveShape(out.Dimensions)

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}

	e := &Engine{
		metadata: Metadata{
			InputName:   in.Name,
			OutputName:  out.Name,
			InputShape:  inputShape,
			OutputShape: outputShape,
		},
		inputSize:  int(inputShape.FlattenedSize()),
		outputSize: int(outputShape.FlattenedSize()),
		sessions:   make(chan *session, poolSize),
		done:       make(chan struct{}),
	}

	for i := 0; i < poolSize; i++ {
		s, err := newSession(cfg, in.Name, out.Name, inputShape, outputShape)
		if err != nil {
			e.destroySessions()
			return nil, fmt.Errorf("failed to create ONNX session %d/%d: %w", i+1, poolSize, err)
		}
		e.all = append(e.all, s)
		e.sessions <- s
	}

	return e, nil
}

func newSession(cfg EngineConfig, inputName, outputName string, inputShape, outputShape ort.Shape) (*session, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		opts)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &session{
		session: s,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

func (e *Engine) Metadata() Metadata {
	m := e.metadata
	m.InputShape = append([]int64(nil), e.metadata.InputShape...)
	m.OutputShape = append([]int64(nil), e.metadata.OutputShape...)
	return m
}

func (e *Engine) InputSize() int {
	return e.inputSize
}

func (e *Engine) OutputSize() int {
	return e.outputSize
}

// Infer runs one forward pass and returns a fresh copy of the raw scores.
// It blocks until a session is free or ctx is done.
func (e *Engine) Infer(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != e.inputSize {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, e.inputSize, len(input))
	}

	var s *session
	select {
	case s = <-e.sessions:
	case <-e.done:
		return nil, ErrEngineClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { e.sessions <- s }()

	copy(s.input.GetData(), input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, e.outputSize)
	copy(scores, s.output.GetData())

	return scores, nil
}

// Close waits for in-flight calls to return their sessions, then releases
// every native resource and the ONNX environment.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		for range e.all {
			<-e.sessions
		}
		e.destroySessions()
		if ort.IsInitialized() {
			ort.DestroyEnvironment()
		}
	})
}

func (e *Engine) destroySessions() {
	for _, s := range e.all {
		s.destroy()
	}
	e.all = nil
}

// selectTensor picks the tensor named want, else preferred, else the only
// tensor present. Only float32 tensors are accepted.
func selectTensor(infos []ort.InputOutputInfo, want, preferred string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.New("model declares no tensors")
	}

	pick := func(info ort.InputOutputInfo) (ort.InputOutputInfo, error) {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return ort.InputOutputInfo{}, fmt.Errorf("tensor %q has type %v, want float32", info.Name, info.DataType)
		}
		return info, nil
	}

	if want != "" {
		for _, info := range infos {
			if info.Name == want {
				return pick(info)
			}
		}
		return ort.InputOutputInfo{}, fmt.Errorf("tensor %q not found in %v", want, tensorNames(infos))
	}

	for _, info := range infos {
		if strings.EqualFold(info.Name, preferred) {
			return pick(info)
		}
	}
	if len(infos) == 1 {
		return pick(infos[0])
	}
	return ort.InputOutputInfo{}, fmt.Errorf("multiple tensors found without %q: %v", preferred, tensorNames(infos))
}

// resolveShape replaces dynamic dimensions (batch, usually) with 1.
func resolveShape(dims []int64) ort.Shape {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d > 0 {
			shape[i] = d
		} else {
			shape[i] = 1
		}
	}
	return ort.NewShape(shape...)
}

func tensorNames(infos []ort.InputOutputInfo) []string {
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}
