// Package metrics records tensor application and decision metrics, both as
// Prometheus series and as structured log lines.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cartridge/inference/internal/inference"
)

// Collector for inference operations. It satisfies inference.Observer.
type Collector struct {
	logger zerolog.Logger

	tensorsApplied    *prometheus.CounterVec
	agentsApplied     *prometheus.CounterVec
	unknownOutputs    *prometheus.CounterVec
	maskFallbacks     *prometheus.CounterVec
	actionCorrections *prometheus.CounterVec

	decisionBatches  prometheus.Counter
	decisionAgents   prometheus.Histogram
	decisionDuration prometheus.Histogram
	decisionErrors   prometheus.Counter

	registry *prometheus.Registry
}

var _ inference.Observer = (*Collector)(nil)

func NewCollector(logger zerolog.Logger) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		logger: logger.With().Str("component", "metrics").Logger(),

		tensorsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_tensors_applied_total",
				Help: "Output tensors applied to a batch, by tensor and applier kind",
			},
			[]string{"tensor", "kind"},
		),

		agentsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_agents_applied_total",
				Help: "Agent rows written from output tensors",
			},
			[]string{"tensor"},
		),

		unknownOutputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_unknown_outputs_total",
				Help: "Output tensors with no registered applier",
			},
			[]string{"tensor"},
		),

		maskFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_mask_fallbacks_total",
				Help: "Branches where every action was masked and the mask was ignored",
			},
			[]string{"tensor"},
		),

		actionCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inference_resolved_action_corrections_total",
				Help: "Model-resolved discrete actions replaced because they were masked or out of range",
			},
			[]string{"tensor"},
		),

		decisionBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inference_decision_batches_total",
				Help: "Decision batches run by the agent manager",
			},
		),

		decisionAgents: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inference_decision_batch_agents",
				Help:    "Agents per decision batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inference_decision_duration_seconds",
				Help:    "Time spent deciding one batch",
				Buckets: prometheus.DefBuckets,
			},
		),

		decisionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "inference_decision_errors_total",
				Help: "Decision batches that failed",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		c.tensorsApplied,
		c.agentsApplied,
		c.unknownOutputs,
		c.maskFallbacks,
		c.actionCorrections,
		c.decisionBatches,
		c.decisionAgents,
		c.decisionDuration,
		c.decisionErrors,
	)

	return c
}

// Registry exposes the private registry for scraping or inspection.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TensorApplied tracks one tensor written to a batch of agents.
func (c *Collector) TensorApplied(name string, kind inference.ApplierKind, agents int) {
	c.tensorsApplied.WithLabelValues(name, kind.String()).Inc()
	c.agentsApplied.WithLabelValues(name).Add(float64(agents))
	c.logger.Debug().
		Str("metric", "tensor_applied").
		Str("tensor", name).
		Stringer("kind", kind).
		Int("agents", agents).
		Msg("Tensor applied metric")
}

func (c *Collector) UnknownOutput(name string) {
	c.unknownOutputs.WithLabelValues(name).Inc()
	c.logger.Warn().
		Str("metric", "unknown_output").
		Str("tensor", name).
		Msg("Unknown output metric")
}

func (c *Collector) MaskFallback(name string, agentID, branch int) {
	c.maskFallbacks.WithLabelValues(name).Inc()
	c.logger.Debug().
		Str("metric", "mask_fallback").
		Str("tensor", name).
		Int("agent_id", agentID).
		Int("branch", branch).
		Msg("Mask fallback metric")
}

func (c *Collector) ResolvedActionCorrected(name string, agentID, branch int) {
	c.actionCorrections.WithLabelValues(name).Inc()
	c.logger.Debug().
		Str("metric", "resolved_action_corrected").
		Str("tensor", name).
		Int("agent_id", agentID).
		Int("branch", branch).
		Msg("Resolved action correction metric")
}

// DecisionBatch tracks one call of the policy for a batch of agents.
func (c *Collector) DecisionBatch(agents int, duration time.Duration, err error) {
	c.decisionBatches.Inc()
	c.decisionAgents.Observe(float64(agents))
	c.decisionDuration.Observe(duration.Seconds())
	if err != nil {
		c.decisionErrors.Inc()
		c.logger.Error().
			Err(err).
			Str("metric", "decision_batch").
			Int("agents", agents).
			Dur("duration", duration).
			Msg("Decision batch failed")
		return
	}
	c.logger.Debug().
		Str("metric", "decision_batch").
		Int("agents", agents).
		Dur("duration", duration).
		Msg("Decision batch metric")
}

// Snapshot flattens the counters into name{label=value,...} -> value, for
// reports. Histograms contribute their sample count.
func (c *Collector) Snapshot() (map[string]float64, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			key := family.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, 0, len(labels))
				for _, l := range labels {
					pairs = append(pairs, l.GetName()+"="+l.GetValue())
				}
				sort.Strings(pairs)
				key += "{" + strings.Join(pairs, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
