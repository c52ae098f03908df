package model

// Metadata describes the tensors of a loaded model, as discovered from the
// artifact itself.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

type EngineConfig struct {
	ModelPath         string
	SharedLibraryPath string

	// InputName and OutputName pick tensors when the model has several.
	// Empty means the preferred default, then the only tensor present.
	InputName  string
	OutputName string

	PoolSize       int
	IntraOpThreads int
}

const (
	DefaultInputName  = "keypoints"
	DefaultOutputName = "logits"
)
