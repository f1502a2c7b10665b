package actuators

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionSpec_Type(t *testing.T) {
	assert.Equal(t, ActionSpaceContinuous, MakeContinuous(2).Type())
	assert.Equal(t, ActionSpaceDiscrete, MakeDiscrete(3, 2).Type())
	assert.Equal(t, ActionSpaceHybrid, NewActionSpec(1, []int{2}).Type())
	assert.Equal(t, ActionSpaceNone, ActionSpec{}.Type())
}

func TestActionSpec_Validate(t *testing.T) {
	require.NoError(t, MakeContinuous(2).Validate())
	require.NoError(t, MakeDiscrete(3).Validate())

	err := ActionSpec{}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidActionSpec))

	err = ActionSpec{NumContinuousActions: -1}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidActionSpec))

	err = MakeDiscrete(3, 0).Validate()
	assert.True(t, errors.Is(err, ErrInvalidActionSpec))
}

func TestActionSpec_CheckAllContinuousOrDiscrete(t *testing.T) {
	require.NoError(t, MakeContinuous(2).CheckAllContinuousOrDiscrete())
	require.NoError(t, MakeDiscrete(2).CheckAllContinuousOrDiscrete())

	err := NewActionSpec(2, []int{3}).CheckAllContinuousOrDiscrete()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMixedActionSpace))
}

func TestActionSpec_BranchLayout(t *testing.T) {
	spec := MakeDiscrete(3, 2, 4)
	assert.Equal(t, 3, spec.NumDiscreteActions())
	assert.Equal(t, 9, spec.SumOfDiscreteBranchSizes())
	assert.Equal(t, 0, spec.BranchOffset(0))
	assert.Equal(t, 3, spec.BranchOffset(1))
	assert.Equal(t, 5, spec.BranchOffset(2))
}

func TestNewActionSpec_CopiesBranchSizes(t *testing.T) {
	sizes := []int{2, 2}
	spec := NewActionSpec(0, sizes)
	sizes[0] = 9
	assert.Equal(t, 2, spec.BranchSizes[0])
}

func TestActionMask(t *testing.T) {
	spec := MakeDiscrete(3, 2)
	var mask ActionMask
	mask = mask.SetMasked(spec, 0, 0, 2)
	mask = mask.SetMasked(spec, 1, 1)

	assert.Len(t, mask, 5)
	assert.True(t, mask.IsMasked(spec, 0, 0))
	assert.False(t, mask.IsMasked(spec, 0, 1))
	assert.True(t, mask.IsMasked(spec, 1, 1))
	assert.Equal(t, []int{1}, mask.Allowed(spec, 0))
	assert.Equal(t, []int{0}, mask.Allowed(spec, 1))

	var empty ActionMask
	assert.Equal(t, []int{0, 1, 2}, empty.Allowed(spec, 0))
}

func TestActionBuffers(t *testing.T) {
	spec := NewActionSpec(2, []int{3})
	buffers := NewActionBuffers(spec)
	assert.Len(t, buffers.ContinuousActions, 2)
	assert.Len(t, buffers.DiscreteActions, 1)
	assert.False(t, buffers.IsEmpty())

	buffers.ContinuousActions[0] = 0.5
	buffers.DiscreteActions[0] = 2
	clone := buffers.Clone()
	buffers.Clear()

	assert.Equal(t, []float32{0, 0}, buffers.ContinuousActions)
	assert.Equal(t, []int{0}, buffers.DiscreteActions)
	assert.Equal(t, []float32{0.5, 0}, clone.ContinuousActions)
	assert.Equal(t, []int{2}, clone.DiscreteActions)

	var empty *ActionBuffers
	assert.True(t, empty.IsEmpty())
	assert.True(t, (&ActionBuffers{}).IsEmpty())
}
