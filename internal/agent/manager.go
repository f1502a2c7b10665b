// Package agent tracks the agents of a run and batches their decision
// requests through a policy.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/inference/internal/actuators"
	"github.com/cartridge/inference/internal/policy"
	"github.com/cartridge/inference/internal/storage"
)

// State holds the per-agent maps shared by the manager and the tensor
// applier. None of them is safe for concurrent use.
type State struct {
	Actions  map[int]*actuators.ActionBuffers
	Memories map[int][]float32
	Masks    map[int]actuators.ActionMask
}

func NewState() *State {
	return &State{
		Actions:  make(map[int]*actuators.ActionBuffers),
		Memories: make(map[int][]float32),
		Masks:    make(map[int]actuators.ActionMask),
	}
}

// Request is one agent asking for a decision at the next step.
type Request struct {
	AgentID int
	Mask    actuators.ActionMask
}

// Environment produces the decision requests of each step. Next returns
// io.EOF when there are no more steps.
type Environment interface {
	Next(ctx context.Context) ([]Request, error)
}

// Recorder receives one call per decision batch.
type Recorder interface {
	DecisionBatch(agents int, duration time.Duration, err error)
}

type Options struct {
	Policy     policy.Policy
	PolicyName string
	// Store is optional; decisions are dropped when nil.
	Store storage.Backend
	// Recorder is optional.
	Recorder Recorder
	Logger   zerolog.Logger
	// BatchSize is the number of decisions buffered before a store write.
	BatchSize int
	// FlushInterval flushes partial batches during Run. 0 disables it.
	FlushInterval time.Duration
	// MaxSteps bounds Run. Values <= 0 mean unlimited.
	MaxSteps int
}

// Manager owns the decision loop of a set of agents. It is meant to be used
// from a single goroutine.
type Manager struct {
	opts   Options
	state  *State
	logger zerolog.Logger

	pending  []int
	step     uint64
	failures int
	buffer   []*storage.Decision
}

func NewManager(state *State, opts Options) (*Manager, error) {
	if opts.Policy == nil {
		return nil, errors.New("policy is required")
	}
	if state == nil {
		state = NewState()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	return &Manager{
		opts:   opts,
		state:  state,
		logger: opts.Logger.With().Str("component", "agent_manager").Logger(),
		buffer: make([]*storage.Decision, 0, opts.BatchSize),
	}, nil
}

// State returns the maps the manager mutates.
func (m *Manager) State() *State {
	return m.state
}

// Step is the number of decision batches completed.
func (m *Manager) Step() uint64 {
	return m.step
}

// Failures is the number of decision batches that returned an error.
func (m *Manager) Failures() int {
	return m.failures
}

// Pending returns the agents waiting for a decision, sorted.
func (m *Manager) Pending() []int {
	return slices.Clone(m.pending)
}

// RequestDecision queues agentID for the next batch. A nil mask clears any
// previous mask of the agent.
func (m *Manager) RequestDecision(agentID int, mask actuators.ActionMask) {
	if mask == nil {
		delete(m.state.Masks, agentID)
	} else {
		m.state.Masks[agentID] = mask
	}
	i, found := slices.BinarySearch(m.pending, agentID)
	if !found {
		m.pending = slices.Insert(m.pending, i, agentID)
	}
}

// DecideBatch runs the policy for every pending agent, in ascending id
// order. On error the pending agents stay queued.
func (m *Manager) DecideBatch(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}

	start := time.Now()
	batch := policy.Batch{
		AgentIDs: slices.Clone(m.pending),
		Actions:  m.state.Actions,
		Masks:    m.state.Masks,
	}
	err := m.opts.Policy.Decide(ctx, batch)
	if m.opts.Recorder != nil {
		m.opts.Recorder.DecisionBatch(len(m.pending), time.Since(start), err)
	}
	if err != nil {
		m.failures++
		return fmt.Errorf("step %d: %w", m.step+1, err)
	}

	m.step++
	m.record(ctx, start)
	m.pending = m.pending[:0]
	return nil
}

// Actions returns the last actions decided for agentID.
func (m *Manager) Actions(agentID int) (*actuators.ActionBuffers, bool) {
	buffers, ok := m.state.Actions[agentID]
	return buffers, ok
}

// Memory returns the recurrent state of agentID.
func (m *Manager) Memory(agentID int) ([]float32, bool) {
	memory, ok := m.state.Memories[agentID]
	return memory, ok
}

// RemoveAgent drops every piece of state held for agentID, including its
// stored decisions.
func (m *Manager) RemoveAgent(ctx context.Context, agentID int) error {
	delete(m.state.Actions, agentID)
	delete(m.state.Memories, agentID)
	delete(m.state.Masks, agentID)
	if i, found := slices.BinarySearch(m.pending, agentID); found {
		m.pending = slices.Delete(m.pending, i, i+1)
	}
	m.buffer = slices.DeleteFunc(m.buffer, func(d *storage.Decision) bool {
		return d.AgentID == agentID
	})
	if m.opts.Store == nil {
		return nil
	}
	if _, err := m.opts.Store.DeleteAgent(ctx, agentID); err != nil {
		return fmt.Errorf("failed to delete decisions of agent %d: %w", agentID, err)
	}
	return nil
}

// Run starts the decision loop. It stops when the environment is exhausted,
// MaxSteps is reached or ctx is cancelled. Failed steps are logged and
// skipped.
func (m *Manager) Run(ctx context.Context, env Environment) error {
	m.logger.Info().Int("max_steps", m.opts.MaxSteps).Msg("starting decision loop")
	defer func() {
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Error().Err(err).Msg("failed to flush decisions on exit")
		}
	}()

	// Setup flush timer for partial batches
	var flush <-chan time.Time
	if m.opts.FlushInterval > 0 {
		ticker := time.NewTicker(m.opts.FlushInterval)
		defer ticker.Stop()
		flush = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("context cancelled, stopping decision loop")
			return ctx.Err()

		case <-flush:
			if err := m.Flush(ctx); err != nil {
				m.logger.Error().Err(err).Msg("failed to flush decisions")
			}

		default:
			if m.opts.MaxSteps > 0 && m.step+uint64(m.failures) >= uint64(m.opts.MaxSteps) {
				m.logger.Info().Int("max_steps", m.opts.MaxSteps).Msg("reached maximum steps, stopping")
				return nil
			}

			requests, err := env.Next(ctx)
			if errors.Is(err, io.EOF) {
				m.logger.Info().Uint64("steps", m.step).Int("failures", m.failures).Msg("environment exhausted")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read next step: %w", err)
			}

			for _, r := range requests {
				m.RequestDecision(r.AgentID, r.Mask)
			}
			if err := m.DecideBatch(ctx); err != nil {
				m.logger.Error().Err(err).Ints("agents", m.pending).Msg("decision step failed")
				// The step is skipped rather than retried
				m.pending = m.pending[:0]
				continue
			}

			if m.step%100 == 0 {
				m.logger.Info().Uint64("steps", m.step).Msg("decision progress")
			}
		}
	}
}

// Flush writes buffered decisions to the store.
func (m *Manager) Flush(ctx context.Context) error {
	if len(m.buffer) == 0 || m.opts.Store == nil {
		return nil
	}

	m.logger.Debug().Int("decisions", len(m.buffer)).Msg("flushing decisions")
	if _, err := m.opts.Store.StoreBatch(ctx, m.buffer); err != nil {
		return fmt.Errorf("failed to store batch: %w", err)
	}

	m.buffer = m.buffer[:0]
	return nil
}

// record snapshots the decided actions into the store buffer.
func (m *Manager) record(ctx context.Context, at time.Time) {
	if m.opts.Store == nil {
		return
	}
	for _, agentID := range m.pending {
		decision := &storage.Decision{
			AgentID:   agentID,
			Step:      m.step,
			Policy:    m.opts.PolicyName,
			Timestamp: at,
		}
		if buffers := m.state.Actions[agentID]; buffers != nil {
			clone := buffers.Clone()
			decision.ContinuousActions = clone.ContinuousActions
			decision.DiscreteActions = clone.DiscreteActions
		}
		if memory := m.state.Memories[agentID]; memory != nil {
			decision.Memory = slices.Clone(memory)
		}
		m.buffer = append(m.buffer, decision)
	}
	if len(m.buffer) >= m.opts.BatchSize {
		if err := m.Flush(ctx); err != nil {
			m.logger.Error().Err(err).Msg("failed to flush decisions")
		}
	}
}
