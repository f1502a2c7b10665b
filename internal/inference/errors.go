package inference

import (
	"errors"

	"github.com/cartridge/inference/internal/actuators"
)

var (
	// ErrModelIncompatible indicates model metadata that cannot be parsed or
	// does not match the requested action spec.
	ErrModelIncompatible = errors.New("model incompatible")
	// ErrMixedActionSpace is returned when a spec mixes continuous and
	// discrete actions but the model has no combined output support.
	ErrMixedActionSpace = actuators.ErrMixedActionSpace
	// ErrUnsupportedModelVersion indicates a model API version with no
	// discrete applier.
	ErrUnsupportedModelVersion = errors.New("unsupported model api version")
	// ErrUnknownOutput indicates an output tensor with no registered applier.
	ErrUnknownOutput = errors.New("unknown tensor expected as output")
	// ErrBatchMismatch indicates a tensor batch smaller than the agent list.
	ErrBatchMismatch = errors.New("tensor batch smaller than agent batch")
	// ErrShapeMismatch indicates a tensor width the applier cannot interpret.
	ErrShapeMismatch = errors.New("tensor shape mismatch")
)
