// Package inference turns the output tensors of a policy model into per-agent
// actions and recurrent memories.
//
// A TensorApplier maps output tensor names to appliers. Each applier reads one
// tensor whose first dimension is the batch, with agents in the same order as
// the agent id list, and writes into the caller's action buffers or memories.
package inference

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/cartridge/inference/internal/actuators"
)

// ApplierKind enumerates the closed set of appliers.
type ApplierKind int

const (
	ContinuousApplier ApplierKind = iota
	LegacyDiscreteApplier
	DiscreteApplier
	MemoryApplier
)

func (k ApplierKind) String() string {
	switch k {
	case ContinuousApplier:
		return "continuous"
	case LegacyDiscreteApplier:
		return "legacy_discrete"
	case DiscreteApplier:
		return "discrete"
	case MemoryApplier:
		return "memory"
	default:
		return "unknown"
	}
}

// applier uses the data of one tensor to update the agents of a batch.
type applier interface {
	Kind() ApplierKind
	// Validate checks the tensor can be interpreted before anything is written.
	Validate(tensor *TensorProxy) error
	Apply(tensor *TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers)
}

// Options configures a TensorApplier.
type Options struct {
	ActionSpec actuators.ActionSpec
	// Seed initialises the random sources used for discrete sampling.
	Seed int64
	// Memories is the agent id to recurrent state map refreshed each step.
	Memories map[int][]float32
	// Masks holds the discrete action masks of agents that have one.
	Masks map[int]actuators.ActionMask
	// Model is nil when no inference runs (heuristic policies).
	Model *Model
	// Deterministic selects the most likely action instead of sampling.
	Deterministic bool
	Logger        zerolog.Logger
	Observer      Observer
}

// TensorApplier dispatches output tensors to their appliers. It is immutable
// after construction.
type TensorApplier struct {
	appliers map[string]applier
	memories map[int][]float32
	logger   zerolog.Logger
	observer Observer
}

// NewTensorApplier builds the applier table for opts.ActionSpec and the
// capabilities declared by opts.Model.
func NewTensorApplier(opts Options) (*TensorApplier, error) {
	ta := &TensorApplier{
		appliers: make(map[string]applier),
		memories: opts.Memories,
		logger:   opts.Logger.With().Str("component", "tensor_applier").Logger(),
		observer: opts.Observer,
	}
	if ta.observer == nil {
		ta.observer = nopObserver{}
	}
	if ta.memories == nil {
		ta.memories = make(map[int][]float32)
	}
	if opts.Model == nil {
		ta.logger.Debug().Msg("no model, tensor applier is empty")
		return ta, nil
	}

	info, err := NewModelInfo(opts.Model, opts.Deterministic)
	if err != nil {
		return nil, err
	}
	spec := opts.ActionSpec
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !info.SupportsContinuousAndDiscrete() {
		if err := spec.CheckAllContinuousOrDiscrete(); err != nil {
			return nil, err
		}
	}
	if err := info.CheckActionSpec(spec); err != nil {
		return nil, err
	}

	if spec.NumContinuousActions > 0 {
		ta.appliers[info.ContinuousOutputName()] = &continuousApplier{spec: spec}
	}
	if spec.NumDiscreteActions() > 0 {
		name := info.DiscreteOutputName()
		base := discreteBase{
			name:          name,
			spec:          spec,
			masks:         opts.Masks,
			deterministic: opts.Deterministic,
			src:           rand.NewSource(uint64(opts.Seed)),
			logger:        ta.logger,
			observer:      ta.observer,
		}
		switch info.Version() {
		case MLAgents1_0:
			ta.appliers[name] = &legacyDiscreteApplier{discreteBase: base}
		case MLAgents2_0:
			ta.appliers[name] = &discreteApplier{discreteBase: base}
		default:
			return nil, fmt.Errorf("%w: %d (supported %d..%d)",
				ErrUnsupportedModelVersion, info.Version(), MinSupportedVersion, MaxSupportedVersion)
		}
	}
	ta.appliers[TensorRecurrentOutput] = &memoryApplier{memories: ta.memories}

	ta.logger.Info().
		Str("model", opts.Model.Name).
		Stringer("version", info.Version()).
		Strs("outputs", ta.Outputs()).
		Bool("deterministic", opts.Deterministic).
		Msg("tensor applier ready")
	return ta, nil
}

// ApplyTensors updates the agents of the batch from tensors. Every tensor
// must have a registered applier; an unknown name fails the whole step before
// any agent is modified.
func (ta *TensorApplier) ApplyTensors(tensors []*TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers) error {
	resolved := make([]applier, len(tensors))
	for i, tensor := range tensors {
		a, ok := ta.appliers[tensor.Name]
		if !ok {
			ta.observer.UnknownOutput(tensor.Name)
			return fmt.Errorf("%w: %s", ErrUnknownOutput, tensor.Name)
		}
		if tensor.BatchSize() < len(agentIDs) {
			return fmt.Errorf("%w: %s has batch %d for %d agents",
				ErrBatchMismatch, tensor.Name, tensor.BatchSize(), len(agentIDs))
		}
		if err := tensor.checkStorage(); err != nil {
			return err
		}
		if len(agentIDs) > 0 {
			if err := a.Validate(tensor); err != nil {
				return err
			}
		}
		resolved[i] = a
	}

	for i, tensor := range tensors {
		resolved[i].Apply(tensor, agentIDs, lastActions)
		ta.observer.TensorApplied(tensor.Name, resolved[i].Kind(), len(agentIDs))
	}
	return nil
}

// Outputs lists the tensor names with a registered applier, sorted.
func (ta *TensorApplier) Outputs() []string {
	names := make([]string, 0, len(ta.appliers))
	for name := range ta.appliers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind returns the kind of applier registered for name.
func (ta *TensorApplier) Kind(name string) (ApplierKind, bool) {
	a, ok := ta.appliers[name]
	if !ok {
		return 0, false
	}
	return a.Kind(), true
}

// Len is the number of registered appliers.
func (ta *TensorApplier) Len() int {
	return len(ta.appliers)
}

// Memories is the memory map refreshed by the recurrent applier.
func (ta *TensorApplier) Memories() map[int][]float32 {
	return ta.memories
}

func buffersFor(lastActions map[int]*actuators.ActionBuffers, agentID int) *actuators.ActionBuffers {
	buffers := lastActions[agentID]
	if buffers == nil {
		buffers = &actuators.ActionBuffers{}
		lastActions[agentID] = buffers
	}
	return buffers
}
