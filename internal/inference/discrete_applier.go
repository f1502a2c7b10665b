package inference

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cartridge/inference/internal/actuators"
)

// discreteBase holds what both discrete encodings share: mask lookup, argmax
// and categorical sampling from a source owned by the applier.
type discreteBase struct {
	name          string
	spec          actuators.ActionSpec
	masks         map[int]actuators.ActionMask
	deterministic bool
	src           rand.Source
	logger        zerolog.Logger
	observer      Observer
}

// allowed returns the selectable actions of branch for agentID. When the mask
// leaves nothing, the mask is ignored for that branch.
func (d *discreteBase) allowed(agentID, branch int) []int {
	allowed := d.masks[agentID].Allowed(d.spec, branch)
	if len(allowed) > 0 {
		return allowed
	}
	d.logger.Warn().
		Str("tensor", d.name).
		Int("agent_id", agentID).
		Int("branch", branch).
		Msg("every action of branch is masked, ignoring mask")
	d.observer.MaskFallback(d.name, agentID, branch)
	return actuators.ActionMask(nil).Allowed(d.spec, branch)
}

// gather collects the values of the allowed actions of branch from row.
func (d *discreteBase) gather(row []float64, branch int, allowed []int) []float64 {
	offset := d.spec.BranchOffset(branch)
	values := make([]float64, len(allowed))
	for k, action := range allowed {
		values[k] = row[offset+action]
	}
	return values
}

// sample draws an index with probability proportional to weights. Negative
// and NaN weights count as zero; if nothing is left the draw is uniform.
func (d *discreteBase) sample(weights []float64) int {
	if len(weights) == 1 {
		return 0
	}
	total := 0.0
	for i, w := range weights {
		switch {
		case math.IsInf(w, 1):
			return i
		case math.IsNaN(w) || w < 0:
			weights[i] = 0
		default:
			total += w
		}
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	return int(distuv.NewCategorical(weights, d.src).Rand())
}

func (d *discreteBase) validateWidth(tensor *TensorProxy, want int, encoding string) error {
	if tensor.Width() != want {
		return fmt.Errorf("%w: %s has width %d, expected %d %s",
			ErrShapeMismatch, tensor.Name, tensor.Width(), want, encoding)
	}
	return nil
}

// legacyDiscreteApplier reads concatenated per-branch logits and picks one
// action per branch, sampling unless deterministic. Masked logits are treated
// as negative infinity.
type legacyDiscreteApplier struct {
	discreteBase
}

func (a *legacyDiscreteApplier) Kind() ApplierKind { return LegacyDiscreteApplier }

func (a *legacyDiscreteApplier) Validate(tensor *TensorProxy) error {
	return a.validateWidth(tensor, a.spec.SumOfDiscreteBranchSizes(), "logits")
}

func (a *legacyDiscreteApplier) Apply(tensor *TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers) {
	numBranches := a.spec.NumDiscreteActions()
	for i, agentID := range agentIDs {
		row := tensor.Row(i)
		dst := buffersFor(lastActions, agentID).EnsureDiscrete(numBranches)
		for branch := 0; branch < numBranches; branch++ {
			allowed := a.allowed(agentID, branch)
			logits := a.gather(row, branch, allowed)
			dst[branch] = allowed[a.choose(logits)]
		}
	}
}

func (a *legacyDiscreteApplier) choose(logits []float64) int {
	best := floats.MaxIdx(logits)
	if a.deterministic {
		return best
	}
	maxLogit := logits[best]
	weights := make([]float64, len(logits))
	for k, logit := range logits {
		if math.IsInf(maxLogit, 1) {
			// Only the infinite logits keep any probability.
			if math.IsInf(logit, 1) {
				weights[k] = 1
			}
			continue
		}
		weights[k] = math.Exp(logit - maxLogit)
	}
	return a.sample(weights)
}

// discreteApplier handles models that resolve actions in the graph. Integer
// tensors carry one chosen index per branch; floating point tensors carry
// per-branch probabilities, renormalised over the allowed actions.
type discreteApplier struct {
	discreteBase
}

func (a *discreteApplier) Kind() ApplierKind { return DiscreteApplier }

func (a *discreteApplier) Validate(tensor *TensorProxy) error {
	if tensor.ValueType == Integer {
		return a.validateWidth(tensor, a.spec.NumDiscreteActions(), "branch indices")
	}
	return a.validateWidth(tensor, a.spec.SumOfDiscreteBranchSizes(), "probabilities")
}

func (a *discreteApplier) Apply(tensor *TensorProxy, agentIDs []int, lastActions map[int]*actuators.ActionBuffers) {
	numBranches := a.spec.NumDiscreteActions()
	for i, agentID := range agentIDs {
		row := tensor.Row(i)
		dst := buffersFor(lastActions, agentID).EnsureDiscrete(numBranches)
		for branch := 0; branch < numBranches; branch++ {
			allowed := a.allowed(agentID, branch)
			if tensor.ValueType == Integer {
				dst[branch] = a.resolve(agentID, branch, row[branch], allowed)
				continue
			}
			probs := a.gather(row, branch, allowed)
			dst[branch] = allowed[a.choose(probs)]
		}
	}
}

// resolve accepts the index chosen by the model, or falls back to the first
// allowed action when that index is out of range or masked.
func (a *discreteApplier) resolve(agentID, branch int, raw float64, allowed []int) int {
	index := int(math.Round(raw))
	for _, action := range allowed {
		if action == index {
			return index
		}
	}
	a.logger.Debug().
		Str("tensor", a.name).
		Int("agent_id", agentID).
		Int("branch", branch).
		Float64("resolved", raw).
		Int("replacement", allowed[0]).
		Msg("resolved action not allowed")
	a.observer.ResolvedActionCorrected(a.name, agentID, branch)
	return allowed[0]
}

func (a *discreteApplier) choose(probs []float64) int {
	if a.deterministic {
		return floats.MaxIdx(probs)
	}
	return a.sample(probs)
}
