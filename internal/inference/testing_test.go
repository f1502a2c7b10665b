package inference

import (
	"github.com/rs/zerolog"

	"github.com/cartridge/inference/internal/actuators"
)

// splitModel exports separate continuous and discrete heads (API 2.0).
func splitModel(extraOutputs ...string) *Model {
	return &Model{
		Name:    "split",
		Outputs: append([]string{TensorContinuousActionOutput, TensorDiscreteActionOutput, TensorRecurrentOutput}, extraOutputs...),
		Constants: map[string][]float32{
			ConstVersionNumber: {float32(MLAgents2_0)},
		},
	}
}

// legacyModel exports a single "action" head (API 1.0).
func legacyModel(continuous bool) *Model {
	flag := float32(0)
	if continuous {
		flag = 1
	}
	return &Model{
		Name:    "legacy",
		Outputs: []string{TensorActionOutputDeprecated, TensorRecurrentOutput},
		Constants: map[string][]float32{
			ConstVersionNumber:                 {float32(MLAgents1_0)},
			ConstIsContinuousControlDeprecated: {flag},
		},
	}
}

// legacySplitModel is an API 1.0 model with split heads, used to exercise the
// logit sampler under the discrete_actions name.
func legacySplitModel() *Model {
	m := splitModel()
	m.Constants[ConstVersionNumber] = []float32{float32(MLAgents1_0)}
	return m
}

type recordingObserver struct {
	applied       map[string]int
	unknown       []string
	maskFallbacks int
	corrected     int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{applied: make(map[string]int)}
}

func (o *recordingObserver) TensorApplied(name string, _ ApplierKind, agents int) {
	o.applied[name] += agents
}

func (o *recordingObserver) UnknownOutput(name string) {
	o.unknown = append(o.unknown, name)
}

func (o *recordingObserver) MaskFallback(string, int, int) {
	o.maskFallbacks++
}

func (o *recordingObserver) ResolvedActionCorrected(string, int, int) {
	o.corrected++
}

func newTestApplier(spec actuators.ActionSpec, model *Model, deterministic bool, seed int64) (*TensorApplier, error) {
	return NewTensorApplier(Options{
		ActionSpec:    spec,
		Seed:          seed,
		Memories:      make(map[int][]float32),
		Masks:         make(map[int]actuators.ActionMask),
		Model:         model,
		Deterministic: deterministic,
		Logger:        zerolog.Nop(),
	})
}

func firstMaxIndex(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
