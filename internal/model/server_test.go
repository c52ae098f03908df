package model

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func floatInfo(name string, dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{
		Name:       name,
		Dimensions: ort.NewShape(dims...),
		DataType:   ort.TensorElementDataTypeFloat,
	}
}

func TestResolveShape(t *testing.T) {
	tests := []struct {
		name     string
		dims     []int64
		expected ort.Shape
		size     int64
	}{
		{"static", []int64{1, 63}, ort.NewShape(1, 63), 63},
		{"dynamic batch", []int64{-1, 63}, ort.NewShape(1, 63), 63},
		{"unknown dims", []int64{0, 26}, ort.NewShape(1, 26), 26},
		{"flat", []int64{26}, ort.NewShape(26), 26},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape := resolveShape(tt.dims)
			assert.Equal(t, tt.expected, shape)
			assert.Equal(t, tt.size, shape.FlattenedSize())
		})
	}
}

func TestSelectTensor(t *testing.T) {
	tests := []struct {
		name      string
		infos     []ort.InputOutputInfo
		want      string
		expected  string
		expectErr bool
	}{
		{"only tensor", []ort.InputOutputInfo{floatInfo("input", -1, 63)}, "", "input", false},
		{"preferred name", []ort.InputOutputInfo{floatInfo("other", 1), floatInfo("keypoints", -1, 63)}, "", "keypoints", false},
		{"explicit name", []ort.InputOutputInfo{floatInfo("a", 1), floatInfo("b", 1)}, "b", "b", false},
		{"explicit missing", []ort.InputOutputInfo{floatInfo("a", 1)}, "b", "", true},
		{"ambiguous", []ort.InputOutputInfo{floatInfo("a", 1), floatInfo("b", 1)}, "", "", true},
		{"none", nil, "", "", true},
		{"wrong type", []ort.InputOutputInfo{{Name: "keypoints", DataType: ort.TensorElementDataTypeInt64}}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := selectTensor(tt.infos, tt.want, DefaultInputName)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, info.Name)
		})
	}
}

// newPooledEngine builds an engine around sessions that hold no native
// resources. Only paths that never reach Run may use it.
func newPooledEngine(sessions ...*session) *Engine {
	e := &Engine{
		inputSize:  63,
		outputSize: 26,
		sessions:   make(chan *session, len(sessions)),
		all:        sessions,
		done:       make(chan struct{}),
	}
	for _, s := range sessions {
		e.sessions <- s
	}
	return e
}

func TestInferWithoutFreeSession(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	expired, cancelExpired := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelExpired()

	closed := newPooledEngine()
	close(closed.done)

	tests := []struct {
		name     string
		engine   *Engine
		ctx      context.Context
		expected error
	}{
		{"cancelled context", newPooledEngine(), cancelled, context.Canceled},
		{"deadline while waiting", newPooledEngine(), expired, context.DeadlineExceeded},
		{"closed engine", closed, context.Background(), ErrEngineClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := tt.engine.Infer(tt.ctx, make([]float32, 63))
			require.ErrorIs(t, err, tt.expected)
			assert.Nil(t, scores)
		})
	}
}

func TestInferRejectsInputSizeBeforeTakingSession(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for _, n := range []int{0, 62, 64} {
		e := newPooledEngine(&session{})
		_, err := e.Infer(cancelled, make([]float32, n))
		require.ErrorIs(t, err, ErrInputSize)
		assert.Len(t, e.sessions, 1, "session must stay in the pool")
	}
}

func TestCloseWaitsForInFlightSessions(t *testing.T) {
	s := &session{}
	e := newPooledEngine(s)
	<-e.sessions

	closed := make(chan struct{})
	go func() {
		e.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a session was still in use")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := e.Infer(context.Background(), make([]float32, 63))
	require.ErrorIs(t, err, ErrEngineClosed)

	e.sessions <- s

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the session came back")
	}
	assert.Nil(t, e.all)

	e.Close()
}

func TestNewEngineRequiresModelPath(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	require.Error(t, err)
}

// TestEngineInfer exercises the native runtime and needs a shared library
// and a 63-input model on disk.
func TestEngineInfer(t *testing.T) {
	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	modelPath := os.Getenv("TEST_MODEL_PATH")
	if libPath == "" || modelPath == "" {
		t.Skip("ONNXRUNTIME_SHARED_LIBRARY_PATH and TEST_MODEL_PATH not set")
	}

	engine, err := NewEngine(EngineConfig{
		ModelPath:         modelPath,
		SharedLibraryPath: libPath,
		PoolSize:          2,
	})
	require.NoError(t, err)
	defer engine.Close()

	require.Equal(t, 63, engine.InputSize())
	require.Positive(t, engine.OutputSize())

	_, err = engine.Infer(context.Background(), make([]float32, 62))
	require.ErrorIs(t, err, ErrInputSize)

	first, err := engine.Infer(context.Background(), make([]float32, 63))
	require.NoError(t, err)
	require.Len(t, first, engine.OutputSize())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scores, err := engine.Infer(context.Background(), make([]float32, 63))
			assert.NoError(t, err)
			assert.Equal(t, first, scores)
		}()
	}
	wg.Wait()
}
