// Package actuators describes the action space of a policy and the per-agent
// buffers that carry the actions decided for a step.
package actuators

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidActionSpec indicates a malformed action specification.
	ErrInvalidActionSpec = errors.New("invalid action spec")
	// ErrMixedActionSpace indicates a spec with both continuous and discrete
	// actions where only one kind is supported.
	ErrMixedActionSpace = errors.New("mixed continuous and discrete actions not supported")
)

// ActionSpaceType classifies an ActionSpec.
type ActionSpaceType int

const (
	ActionSpaceNone ActionSpaceType = iota
	ActionSpaceContinuous
	ActionSpaceDiscrete
	ActionSpaceHybrid
)

func (t ActionSpaceType) String() string {
	switch t {
	case ActionSpaceContinuous:
		return "continuous"
	case ActionSpaceDiscrete:
		return "discrete"
	case ActionSpaceHybrid:
		return "hybrid"
	default:
		return "none"
	}
}

// ActionSpec describes the shape of the actions a policy produces: a number of
// continuous actions and zero or more discrete branches, each with its own
// number of choices.
type ActionSpec struct {
	NumContinuousActions int   `json:"num_continuous_actions" yaml:"num_continuous_actions" mapstructure:"num_continuous_actions"`
	BranchSizes          []int `json:"branch_sizes,omitempty" yaml:"branch_sizes,omitempty" mapstructure:"branch_sizes"`
}

// NewActionSpec builds a spec from a continuous count and discrete branch sizes.
func NewActionSpec(numContinuous int, branchSizes []int) ActionSpec {
	sizes := make([]int, len(branchSizes))
	copy(sizes, branchSizes)
	return ActionSpec{NumContinuousActions: numContinuous, BranchSizes: sizes}
}

// MakeContinuous returns a purely continuous spec.
func MakeContinuous(numActions int) ActionSpec {
	return ActionSpec{NumContinuousActions: numActions}
}

// MakeDiscrete returns a purely discrete spec with the given branch sizes.
func MakeDiscrete(branchSizes ...int) ActionSpec {
	return NewActionSpec(0, branchSizes)
}

// NumDiscreteActions is the number of discrete branches.
func (s ActionSpec) NumDiscreteActions() int {
	return len(s.BranchSizes)
}

// SumOfDiscreteBranchSizes is the width of a tensor holding one value per
// discrete choice across all branches.
func (s ActionSpec) SumOfDiscreteBranchSizes() int {
	total := 0
	for _, size := range s.BranchSizes {
		total += size
	}
	return total
}

// BranchOffset returns the index of the first choice of branch within the
// concatenation of all branches.
func (s ActionSpec) BranchOffset(branch int) int {
	offset := 0
	for i := 0; i < branch && i < len(s.BranchSizes); i++ {
		offset += s.BranchSizes[i]
	}
	return offset
}

// Type classifies the spec.
func (s ActionSpec) Type() ActionSpaceType {
	switch {
	case s.NumContinuousActions > 0 && s.NumDiscreteActions() > 0:
		return ActionSpaceHybrid
	case s.NumContinuousActions > 0:
		return ActionSpaceContinuous
	case s.NumDiscreteActions() > 0:
		return ActionSpaceDiscrete
	default:
		return ActionSpaceNone
	}
}

// Validate checks the spec is well formed and declares at least one action.
func (s ActionSpec) Validate() error {
	if s.NumContinuousActions < 0 {
		return fmt.Errorf("%w: num_continuous_actions must be non-negative, got %d", ErrInvalidActionSpec, s.NumContinuousActions)
	}
	for i, size := range s.BranchSizes {
		if size <= 0 {
			return fmt.Errorf("%w: branch %d size must be positive, got %d", ErrInvalidActionSpec, i, size)
		}
	}
	if s.Type() == ActionSpaceNone {
		return fmt.Errorf("%w: at least one continuous or discrete action is required", ErrInvalidActionSpec)
	}
	return nil
}

// CheckAllContinuousOrDiscrete fails when the spec mixes both kinds of action.
func (s ActionSpec) CheckAllContinuousOrDiscrete() error {
	if s.Type() == ActionSpaceHybrid {
		return fmt.Errorf("%w: spec has %d continuous actions and %d discrete branches",
			ErrMixedActionSpace, s.NumContinuousActions, s.NumDiscreteActions())
	}
	return nil
}
