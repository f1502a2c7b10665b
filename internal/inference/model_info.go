package inference

import (
	"fmt"
	"math"
	"slices"

	"github.com/cartridge/inference/internal/actuators"
)

// Model is the metadata view of a loaded model: the names of its outputs and
// the constants baked into the graph at export time.
type Model struct {
	Name      string
	Outputs   []string
	Constants map[string][]float32
}

// HasOutput reports whether the model exports a tensor called name.
func (m *Model) HasOutput(name string) bool {
	return slices.Contains(m.Outputs, name)
}

// Constant returns the named constant.
func (m *Model) Constant(name string) ([]float32, bool) {
	v, ok := m.Constants[name]
	return v, ok && len(v) > 0
}

// ModelInfo answers read-only questions about a model's outputs.
type ModelInfo struct {
	model         *Model
	version       ModelAPIVersion
	deterministic bool
}

// NewModelInfo inspects model. It fails if the version constant is missing or
// malformed, or if a declared output shape is not a list of integers.
func NewModelInfo(model *Model, deterministic bool) (*ModelInfo, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: no model", ErrModelIncompatible)
	}
	raw, ok := model.Constant(ConstVersionNumber)
	if !ok {
		return nil, fmt.Errorf("%w: %q is missing from model %q", ErrModelIncompatible, ConstVersionNumber, model.Name)
	}
	version, err := integral(raw[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelIncompatible, ConstVersionNumber, err)
	}
	for _, name := range []string{
		ConstContinuousActionOutputShape,
		ConstDiscreteActionOutputShape,
		ConstActionOutputShapeDeprecated,
	} {
		if raw, ok := model.Constant(name); ok {
			if _, ok := integrals(raw); !ok {
				return nil, fmt.Errorf("%w: %s of model %q is not a list of integers: %v",
					ErrModelIncompatible, name, model.Name, raw)
			}
		}
	}
	return &ModelInfo{
		model:         model,
		version:       ModelAPIVersion(version),
		deterministic: deterministic,
	}, nil
}

// Version is the model's export API version.
func (mi *ModelInfo) Version() ModelAPIVersion {
	return mi.version
}

// SupportsContinuousAndDiscrete reports whether the model exports separate
// continuous and discrete heads.
func (mi *ModelInfo) SupportsContinuousAndDiscrete() bool {
	return mi.model.HasOutput(TensorContinuousActionOutput) ||
		mi.model.HasOutput(TensorDiscreteActionOutput) ||
		mi.model.HasOutput(TensorDeterministicContinuousActionOutput) ||
		mi.model.HasOutput(TensorDeterministicDiscreteActionOutput)
}

// ContinuousOutputName is the tensor carrying continuous actions.
func (mi *ModelInfo) ContinuousOutputName() string {
	if !mi.SupportsContinuousAndDiscrete() {
		return TensorActionOutputDeprecated
	}
	if mi.deterministic && mi.model.HasOutput(TensorDeterministicContinuousActionOutput) {
		return TensorDeterministicContinuousActionOutput
	}
	return TensorContinuousActionOutput
}

// DiscreteOutputName is the tensor carrying discrete actions.
func (mi *ModelInfo) DiscreteOutputName() string {
	if !mi.SupportsContinuousAndDiscrete() {
		return TensorActionOutputDeprecated
	}
	if mi.deterministic && mi.model.HasOutput(TensorDeterministicDiscreteActionOutput) {
		return TensorDeterministicDiscreteActionOutput
	}
	return TensorDiscreteActionOutput
}

// MemorySize is the recurrent state width, 0 for models without memory.
func (mi *ModelInfo) MemorySize() int {
	raw, ok := mi.model.Constant(ConstMemorySize)
	if !ok {
		return 0
	}
	size, err := integral(raw[0])
	if err != nil {
		return 0
	}
	return size
}

// ContinuousOutputShape is the declared number of continuous actions.
func (mi *ModelInfo) ContinuousOutputShape() (int, bool) {
	if raw, ok := mi.model.Constant(ConstContinuousActionOutputShape); ok {
		size, err := integral(raw[0])
		return size, err == nil
	}
	if mi.legacyContinuous() {
		if raw, ok := mi.model.Constant(ConstActionOutputShapeDeprecated); ok {
			size, err := integral(raw[0])
			return size, err == nil
		}
	}
	return 0, false
}

// DiscreteOutputShape is the declared branch sizes. Legacy models only declare
// the total width, returned as a single element.
func (mi *ModelInfo) DiscreteOutputShape() ([]int, bool) {
	if raw, ok := mi.model.Constant(ConstDiscreteActionOutputShape); ok {
		return integrals(raw)
	}
	if flag, ok := mi.model.Constant(ConstIsContinuousControlDeprecated); ok && flag[0] == 0 {
		if raw, ok := mi.model.Constant(ConstActionOutputShapeDeprecated); ok {
			return integrals(raw)
		}
	}
	return nil, false
}

// CheckActionSpec compares spec with the output shapes the model declares.
// Shapes the model does not declare are not checked.
func (mi *ModelInfo) CheckActionSpec(spec actuators.ActionSpec) error {
	if size, ok := mi.ContinuousOutputShape(); ok && size != spec.NumContinuousActions {
		return fmt.Errorf("%w: model declares %d continuous actions, spec has %d",
			ErrModelIncompatible, size, spec.NumContinuousActions)
	}
	sizes, ok := mi.DiscreteOutputShape()
	if !ok {
		return nil
	}
	if _, split := mi.model.Constant(ConstDiscreteActionOutputShape); split {
		if !slices.Equal(sizes, spec.BranchSizes) {
			return fmt.Errorf("%w: model declares discrete branches %v, spec has %v",
				ErrModelIncompatible, sizes, spec.BranchSizes)
		}
		return nil
	}
	total := 0
	for _, size := range sizes {
		total += size
	}
	if total != spec.SumOfDiscreteBranchSizes() {
		return fmt.Errorf("%w: model declares %d discrete choices, spec has %d",
			ErrModelIncompatible, total, spec.SumOfDiscreteBranchSizes())
	}
	return nil
}

func (mi *ModelInfo) legacyContinuous() bool {
	flag, ok := mi.model.Constant(ConstIsContinuousControlDeprecated)
	return ok && flag[0] > 0
}

func integral(v float32) (int, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected an integer, got %v", v)
	}
	return int(f), nil
}

func integrals(raw []float32) ([]int, bool) {
	out := make([]int, len(raw))
	for i, v := range raw {
		n, err := integral(v)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
