package inference

// Output tensor names exported by trained policy models.
const (
	TensorRecurrentOutput                     = "recurrent_out"
	TensorActionOutputDeprecated              = "action"
	TensorContinuousActionOutput              = "continuous_actions"
	TensorDiscreteActionOutput                = "discrete_actions"
	TensorDeterministicContinuousActionOutput = "deterministic_continuous_actions"
	TensorDeterministicDiscreteActionOutput   = "deterministic_discrete_actions"
)

// Constants embedded in model metadata.
const (
	ConstVersionNumber                 = "version_number"
	ConstMemorySize                    = "memory_size"
	ConstIsContinuousControlDeprecated = "is_continuous_control"
	ConstActionOutputShapeDeprecated   = "action_output_shape"
	ConstContinuousActionOutputShape   = "continuous_action_output_shape"
	ConstDiscreteActionOutputShape     = "discrete_action_output_shape"
)

// ModelAPIVersion identifies the export convention a model was produced with.
type ModelAPIVersion int

const (
	// MLAgents1_0 models emit concatenated per-branch logits for discrete
	// actions and expect the runtime to sample them.
	MLAgents1_0 ModelAPIVersion = 2
	// MLAgents2_0 models resolve discrete actions inside the graph and may
	// export split continuous/discrete and deterministic heads.
	MLAgents2_0 ModelAPIVersion = 3

	MinSupportedVersion = MLAgents1_0
	MaxSupportedVersion = MLAgents2_0
)

func (v ModelAPIVersion) String() string {
	switch v {
	case MLAgents1_0:
		return "mlagents-1.0"
	case MLAgents2_0:
		return "mlagents-2.0"
	default:
		return "unknown"
	}
}
