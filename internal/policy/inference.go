package policy

import (
	"context"
	"fmt"

	"github.com/cartridge/inference/internal/actuators"
	"github.com/cartridge/inference/internal/inference"
)

// TensorSource evaluates the model for a batch. Row i of every returned
// tensor belongs to agentIDs[i].
type TensorSource interface {
	Outputs(ctx context.Context, agentIDs []int) ([]*inference.TensorProxy, error)
}

// TensorApplier is satisfied by *inference.TensorApplier.
type TensorApplier interface {
	ApplyTensors(tensors []*inference.TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers) error
}

// InferencePolicy decides by running the model and applying its outputs.
// Masks and memories are read and written through the maps the applier was
// built with, so Batch.Masks is not consulted here.
type InferencePolicy struct {
	applier TensorApplier
	source  TensorSource
}

func NewInference(applier TensorApplier, source TensorSource) *InferencePolicy {
	return &InferencePolicy{applier: applier, source: source}
}

// Decide implements Policy interface
func (p *InferencePolicy) Decide(ctx context.Context, batch Batch) error {
	tensors, err := p.source.Outputs(ctx, batch.AgentIDs)
	if err != nil {
		return fmt.Errorf("failed to evaluate model: %w", err)
	}
	if err := p.applier.ApplyTensors(tensors, batch.AgentIDs, batch.Actions); err != nil {
		return fmt.Errorf("failed to apply model outputs: %w", err)
	}
	return nil
}
