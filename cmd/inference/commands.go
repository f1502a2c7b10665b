package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartridge/inference/internal/agent"
	"github.com/cartridge/inference/internal/fixture"
	"github.com/cartridge/inference/internal/inference"
	"github.com/cartridge/inference/internal/metrics"
	"github.com/cartridge/inference/internal/policy"
	"github.com/cartridge/inference/internal/storage"
)

type inspectOutput struct {
	Model                         string            `json:"model"`
	Version                       int               `json:"version"`
	VersionName                   string            `json:"version_name"`
	SupportsContinuousAndDiscrete bool              `json:"supports_continuous_and_discrete"`
	ContinuousOutput              string            `json:"continuous_output,omitempty"`
	DiscreteOutput                string            `json:"discrete_output,omitempty"`
	MemorySize                    int               `json:"memory_size"`
	Appliers                      map[string]string `json:"appliers"`
}

type agentOutput struct {
	ContinuousActions []float32 `json:"continuous_actions,omitempty"`
	DiscreteActions   []int     `json:"discrete_actions,omitempty"`
	Memory            []float32 `json:"memory,omitempty"`
}

type applyOutput struct {
	Steps  int                 `json:"steps"`
	Agents map[int]agentOutput `json:"agents"`
}

type runOutput struct {
	Policy   string              `json:"policy"`
	Steps    uint64              `json:"steps"`
	Failures int                 `json:"failures"`
	Agents   map[int]agentOutput `json:"agents"`
	Store    *storage.Stats      `json:"store"`
	Metrics  map[string]float64  `json:"metrics"`
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Describe a model manifest and the appliers it would get",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireModel(); err != nil {
				return err
			}
			manifest, err := fixture.LoadManifest(a.cfg.ModelPath)
			if err != nil {
				return err
			}
			model := manifest.Model()
			deterministic := a.cfg.Deterministic || manifest.Deterministic

			info, err := inference.NewModelInfo(model, deterministic)
			if err != nil {
				return err
			}
			applier, err := inference.NewTensorApplier(inference.Options{
				ActionSpec:    manifest.ActionSpec,
				Seed:          a.cfg.Seed,
				Model:         model,
				Deterministic: deterministic,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			out := inspectOutput{
				Model:                         model.Name,
				Version:                       int(info.Version()),
				VersionName:                   info.Version().String(),
				SupportsContinuousAndDiscrete: info.SupportsContinuousAndDiscrete(),
				MemorySize:                    info.MemorySize(),
				Appliers:                      make(map[string]string, applier.Len()),
			}
			if manifest.ActionSpec.NumContinuousActions > 0 {
				out.ContinuousOutput = info.ContinuousOutputName()
			}
			if manifest.ActionSpec.NumDiscreteActions() > 0 {
				out.DiscreteOutput = info.DiscreteOutputName()
			}
			for _, name := range applier.Outputs() {
				kind, _ := applier.Kind(name)
				out.Appliers[name] = kind.String()
			}
			return writeJSON(cmd, out)
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply recorded output tensors to their agents and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireModel(); err != nil {
				return err
			}
			if err := a.cfg.RequireSteps(); err != nil {
				return err
			}
			manifest, err := fixture.LoadManifest(a.cfg.ModelPath)
			if err != nil {
				return err
			}
			steps, err := fixture.LoadSteps(a.cfg.StepsPath)
			if err != nil {
				return err
			}

			state := agent.NewState()
			collector := metrics.NewCollector(a.logger)
			applier, err := inference.NewTensorApplier(inference.Options{
				ActionSpec:    manifest.ActionSpec,
				Seed:          a.cfg.Seed,
				Memories:      state.Memories,
				Masks:         state.Masks,
				Model:         manifest.Model(),
				Deterministic: a.cfg.Deterministic || manifest.Deterministic,
				Logger:        a.logger,
				Observer:      collector,
			})
			if err != nil {
				return err
			}

			for i := range steps {
				step := &steps[i]
				tensors, err := step.Proxies()
				if err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				for _, id := range step.Agents {
					if mask := step.Mask(id); mask != nil {
						state.Masks[id] = mask
					} else {
						delete(state.Masks, id)
					}
				}
				if err := applier.ApplyTensors(tensors, step.Agents, state.Actions); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
			}

			return writeJSON(cmd, applyOutput{
				Steps:  len(steps),
				Agents: agentsOf(state),
			})
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var random bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop over recorded steps",
		Long: `Run drives the agent manager over recorded steps: each step the recorded
agents request a decision, the policy decides for the whole batch and the
decisions are kept in the decision store.

With --random the recorded tensors are ignored and the heuristic random
policy decides instead, using the action spec of the manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireModel(); err != nil {
				return err
			}
			if err := a.cfg.RequireSteps(); err != nil {
				return err
			}
			manifest, err := fixture.LoadManifest(a.cfg.ModelPath)
			if err != nil {
				return err
			}
			steps, err := fixture.LoadSteps(a.cfg.StepsPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()

			state := agent.NewState()
			collector := metrics.NewCollector(a.logger)
			replay := fixture.NewReplay(steps)

			var (
				p    policy.Policy
				name string
			)
			if random {
				p, err = policy.NewRandom(manifest.ActionSpec, a.cfg.Seed)
				name = "random"
			} else {
				p, err = newInferencePolicy(a, manifest, state, collector, replay)
				name = manifest.Name
			}
			if err != nil {
				return err
			}

			store := storage.NewMemoryBackend(a.cfg.StoreSize)
			defer store.Close()

			manager, err := agent.NewManager(state, agent.Options{
				Policy:        p,
				PolicyName:    name,
				Store:         store,
				Recorder:      collector,
				Logger:        a.logger,
				BatchSize:     a.cfg.BatchSize,
				FlushInterval: a.cfg.FlushInterval,
				MaxSteps:      a.cfg.MaxSteps,
			})
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("policy", name).
				Int("recorded_steps", replay.Len()).
				Msg("starting run")
			if err := manager.Run(ctx, replay); err != nil {
				return err
			}

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			snapshot, err := collector.Snapshot()
			if err != nil {
				return err
			}
			return writeJSON(cmd, runOutput{
				Policy:   name,
				Steps:    manager.Step(),
				Failures: manager.Failures(),
				Agents:   agentsOf(state),
				Store:    stats,
				Metrics:  snapshot,
			})
		},
	}

	cmd.Flags().BoolVar(&random, "random", false, "Decide with the random policy instead of the recorded outputs")
	return cmd
}

func newInferencePolicy(a *app, manifest *fixture.Manifest, state *agent.State, observer inference.Observer, source policy.TensorSource) (policy.Policy, error) {
	applier, err := inference.NewTensorApplier(inference.Options{
		ActionSpec:    manifest.ActionSpec,
		Seed:          a.cfg.Seed,
		Memories:      state.Memories,
		Masks:         state.Masks,
		Model:         manifest.Model(),
		Deterministic: a.cfg.Deterministic || manifest.Deterministic,
		Logger:        a.logger,
		Observer:      observer,
	})
	if err != nil {
		return nil, err
	}
	return policy.NewInference(applier, source), nil
}

func agentsOf(state *agent.State) map[int]agentOutput {
	out := make(map[int]agentOutput, len(state.Actions))
	for id, buffers := range state.Actions {
		out[id] = agentOutput{
			ContinuousActions: buffers.ContinuousActions,
			DiscreteActions:   buffers.DiscreteActions,
			Memory:            state.Memories[id],
		}
	}
	return out
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
