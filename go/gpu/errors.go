package gpu

import "github.com/pkg/errors"

var (
	// ErrPipelineState means the register state could not be turned into
	// pipeline state. The draw should be skipped.
	ErrPipelineState = errors.New("invalid pipeline state")
	// ErrPipelineCompile means the device rejected a pipeline.
	ErrPipelineCompile = errors.New("pipeline compilation failed")
	// ErrInvalidShader means a shader failed translation earlier.
	ErrInvalidShader = errors.New("invalid shader")
)
