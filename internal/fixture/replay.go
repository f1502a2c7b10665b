package fixture

import (
	"context"
	"fmt"
	"io"

	"github.com/cartridge/inference/internal/agent"
	"github.com/cartridge/inference/internal/inference"
)

// Replay plays recorded steps back. It is the environment of a run, asking
// for decisions on behalf of the recorded agents, and the tensor source of the
// inference policy, serving the recorded outputs of the current step.
type Replay struct {
	steps   []Step
	current int
}

func NewReplay(steps []Step) *Replay {
	return &Replay{steps: steps, current: -1}
}

// Len is the number of recorded steps.
func (r *Replay) Len() int {
	return len(r.steps)
}

// Next advances to the next step and returns its decision requests.
func (r *Replay) Next(ctx context.Context) ([]agent.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.current+1 >= len(r.steps) {
		return nil, io.EOF
	}
	r.current++
	step := &r.steps[r.current]
	requests := make([]agent.Request, len(step.Agents))
	for i, id := range step.Agents {
		requests[i] = agent.Request{AgentID: id, Mask: step.Mask(id)}
	}
	return requests, nil
}

// Outputs returns the tensors of the current step with rows reordered to
// match agentIDs. Recorded padding rows are dropped.
func (r *Replay) Outputs(ctx context.Context, agentIDs []int) ([]*inference.TensorProxy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.current < 0 || r.current >= len(r.steps) {
		return nil, fmt.Errorf("no current step")
	}
	step := &r.steps[r.current]

	rowOf := make(map[int]int, len(step.Agents))
	for i, id := range step.Agents {
		rowOf[id] = i
	}
	rows := make([]int, len(agentIDs))
	for i, id := range agentIDs {
		row, ok := rowOf[id]
		if !ok {
			return nil, fmt.Errorf("agent %d has no recorded output at step %d", id, r.current)
		}
		rows[i] = row
	}

	recorded, err := step.Proxies()
	if err != nil {
		return nil, err
	}
	tensors := make([]*inference.TensorProxy, len(recorded))
	for i, t := range recorded {
		tensors[i], err = reorder(t, rows)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", r.current, err)
		}
	}
	return tensors, nil
}

func reorder(t *inference.TensorProxy, rows []int) (*inference.TensorProxy, error) {
	width := t.Width()
	values := make([]float64, 0, len(rows)*width)
	for _, row := range rows {
		if row >= t.BatchSize() {
			return nil, fmt.Errorf("%w: %s has batch %d, row %d requested",
				inference.ErrBatchMismatch, t.Name, t.BatchSize(), row)
		}
		values = append(values, t.Row(row)...)
	}
	return inference.NewTensorProxy(t.Name, t.ValueType, len(rows), width, values)
}
