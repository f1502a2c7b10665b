package inference

import (
	"fmt"

	"github.com/cartridge/inference/internal/actuators"
)

// memoryApplier replaces each agent's recurrent state with its tensor row.
type memoryApplier struct {
	memories map[int][]float32
}

func (a *memoryApplier) Kind() ApplierKind { return MemoryApplier }

func (a *memoryApplier) Validate(tensor *TensorProxy) error {
	if tensor.Width() == 0 {
		return fmt.Errorf("%w: %s has no memory values", ErrShapeMismatch, tensor.Name)
	}
	return nil
}

func (a *memoryApplier) Apply(tensor *TensorProxy, agentIDs []int, _ map[int]*actuators.ActionBuffers) {
	size := tensor.Width()
	for i, agentID := range agentIDs {
		row := tensor.Row(i)
		memory := a.memories[agentID]
		if len(memory) != size {
			memory = make([]float32, size)
		}
		for j := 0; j < size; j++ {
			memory[j] = float32(row[j])
		}
		a.memories[agentID] = memory
	}
}
