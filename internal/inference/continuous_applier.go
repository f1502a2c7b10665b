package inference

import (
	"fmt"

	"github.com/cartridge/inference/internal/actuators"
)

// continuousApplier copies the raw policy output into each agent's continuous
// actions. Values are not clipped.
type continuousApplier struct {
	spec actuators.ActionSpec
}

func (a *continuousApplier) Kind() ApplierKind { return ContinuousApplier }

func (a *continuousApplier) Validate(tensor *TensorProxy) error {
	if tensor.Width() != a.spec.NumContinuousActions {
		return fmt.Errorf("%w: %s has width %d, expected %d continuous actions",
			ErrShapeMismatch, tensor.Name, tensor.Width(), a.spec.NumContinuousActions)
	}
	return nil
}

func (a *continuousApplier) Apply(tensor *TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers) {
	n := a.spec.NumContinuousActions
	for i, agentID := range agentIDs {
		row := tensor.Row(i)
		dst := buffersFor(lastActions, agentID).EnsureContinuous(n)
		for j := 0; j < n; j++ {
			dst[j] = float32(row[j])
		}
	}
}
