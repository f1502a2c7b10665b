package actuators

// ActionBuffers holds the actions decided for one agent on the current step.
type ActionBuffers struct {
	ContinuousActions []float32 `json:"continuous_actions"`
	DiscreteActions   []int     `json:"discrete_actions"`
}

// NewActionBuffers allocates zeroed buffers sized for spec.
func NewActionBuffers(spec ActionSpec) *ActionBuffers {
	return &ActionBuffers{
		ContinuousActions: make([]float32, spec.NumContinuousActions),
		DiscreteActions:   make([]int, spec.NumDiscreteActions()),
	}
}

// IsEmpty reports whether neither buffer holds any action.
func (b *ActionBuffers) IsEmpty() bool {
	return b == nil || (len(b.ContinuousActions) == 0 && len(b.DiscreteActions) == 0)
}

// Clear zeroes both buffers in place.
func (b *ActionBuffers) Clear() {
	for i := range b.ContinuousActions {
		b.ContinuousActions[i] = 0
	}
	for i := range b.DiscreteActions {
		b.DiscreteActions[i] = 0
	}
}

// Clone returns a deep copy.
func (b *ActionBuffers) Clone() *ActionBuffers {
	if b == nil {
		return nil
	}
	out := &ActionBuffers{
		ContinuousActions: make([]float32, len(b.ContinuousActions)),
		DiscreteActions:   make([]int, len(b.DiscreteActions)),
	}
	copy(out.ContinuousActions, b.ContinuousActions)
	copy(out.DiscreteActions, b.DiscreteActions)
	return out
}

// EnsureContinuous returns the continuous buffer resized to n, reallocating
// only when the current length differs.
func (b *ActionBuffers) EnsureContinuous(n int) []float32 {
	if len(b.ContinuousActions) != n {
		b.ContinuousActions = make([]float32, n)
	}
	return b.ContinuousActions
}

// EnsureDiscrete returns the discrete buffer resized to n.
func (b *ActionBuffers) EnsureDiscrete(n int) []int {
	if len(b.DiscreteActions) != n {
		b.DiscreteActions = make([]int, n)
	}
	return b.DiscreteActions
}

// ActionMask marks discrete choices that are unavailable to an agent. It is a
// flat slice over the concatenation of all branches; true means masked. A nil
// or short mask leaves the uncovered choices available.
type ActionMask []bool

// IsMasked reports whether action in branch is unavailable.
func (m ActionMask) IsMasked(spec ActionSpec, branch, action int) bool {
	idx := spec.BranchOffset(branch) + action
	return idx < len(m) && m[idx]
}

// Allowed returns the available action indices of branch in ascending order.
func (m ActionMask) Allowed(spec ActionSpec, branch int) []int {
	size := spec.BranchSizes[branch]
	allowed := make([]int, 0, size)
	for action := 0; action < size; action++ {
		if !m.IsMasked(spec, branch, action) {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

// SetMasked marks the given actions of branch as unavailable, growing the mask
// to cover every branch of spec if needed.
func (m ActionMask) SetMasked(spec ActionSpec, branch int, actions ...int) ActionMask {
	if len(m) < spec.SumOfDiscreteBranchSizes() {
		grown := make(ActionMask, spec.SumOfDiscreteBranchSizes())
		copy(grown, m)
		m = grown
	}
	offset := spec.BranchOffset(branch)
	for _, action := range actions {
		m[offset+action] = true
	}
	return m
}
