package classifier

import (
	"errors"
	"net/http"

	"github.com/Brownie44l1/asl-api/pkg/response"
)

var (
	// ErrInvalidInput is a client error: the keypoints never reach the engine.
	ErrInvalidInput = response.NewError(http.StatusBadRequest, "invalid input")
	// ErrInferenceFailure is a server error raised during or after the forward pass.
	ErrInferenceFailure = response.NewError(http.StatusInternalServerError, "inference failure")
	// ErrConfigMismatch means the model and label table disagree. Startup only.
	ErrConfigMismatch = errors.New("model and label table mismatch")
)
