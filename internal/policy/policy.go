// Package policy provides action selection strategies for agents
package policy

import (
	"context"

	"github.com/cartridge/inference/internal/actuators"
)

// Batch is one decision step: the agents that requested a decision, in the
// order their rows appear in model outputs, and the maps the policy writes
// into.
type Batch struct {
	AgentIDs []int
	Actions  map[int]*actuators.ActionBuffers
	Masks    map[int]actuators.ActionMask
}

// Policy interface for action selection
type Policy interface {
	// Decide fills the action buffers of every agent in the batch.
	Decide(ctx context.Context, batch Batch) error
}

func buffersFor(actions map[int]*actuators.ActionBuffers, agentID int) *actuators.ActionBuffers {
	buffers := actions[agentID]
	if buffers == nil {
		buffers = &actuators.ActionBuffers{}
		actions[agentID] = buffers
	}
	return buffers
}
