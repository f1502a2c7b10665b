package policy

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/cartridge/inference/internal/actuators"
)

// RandomPolicy selects random valid actions. It is the heuristic used when no
// model is configured.
type RandomPolicy struct {
	rng  *rand.Rand
	spec actuators.ActionSpec

	// Continuous actions are drawn from [low, high].
	low  float32
	high float32
}

// NewRandom creates a new random policy for the given action space
func NewRandom(spec actuators.ActionSpec, seed int64) (*RandomPolicy, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("random policy: %w", err)
	}
	return &RandomPolicy{
		rng:  rand.New(rand.NewSource(uint64(seed))),
		spec: spec,
		low:  -1,
		high: 1,
	}, nil
}

// Decide implements Policy interface
func (p *RandomPolicy) Decide(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, agentID := range batch.AgentIDs {
		buffers := buffersFor(batch.Actions, agentID)
		p.selectContinuousActions(buffers)
		p.selectDiscreteActions(buffers, batch.Masks[agentID])
	}
	return nil
}

// selectContinuousActions draws each continuous action uniformly.
func (p *RandomPolicy) selectContinuousActions(buffers *actuators.ActionBuffers) {
	dst := buffers.EnsureContinuous(p.spec.NumContinuousActions)
	for i := range dst {
		dst[i] = p.low + p.rng.Float32()*(p.high-p.low)
	}
}

// selectDiscreteActions picks an allowed action per branch. A branch with
// every action masked falls back to the full branch.
func (p *RandomPolicy) selectDiscreteActions(buffers *actuators.ActionBuffers, mask actuators.ActionMask) {
	dst := buffers.EnsureDiscrete(p.spec.NumDiscreteActions())
	for branch := range dst {
		legal := mask.Allowed(p.spec, branch)
		if len(legal) == 0 {
			dst[branch] = p.rng.Intn(p.spec.BranchSizes[branch])
			continue
		}
		dst[branch] = legal[p.rng.Intn(len(legal))]
	}
}
