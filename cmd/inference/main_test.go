package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hybridModel = "../../internal/fixture/testdata/hybrid_model.yaml"
	legacyModel = "../../internal/fixture/testdata/legacy_model.yaml"
	stepsDir    = "../../internal/fixture/testdata/steps"
	firstStep   = "../../internal/fixture/testdata/steps/001.yaml"
	legacySteps = "../../internal/fixture/testdata/legacy_steps.yaml"
)

func execute(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return &stdout, err
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", "--model", hybridModel)
	require.NoError(t, err)

	var got inspectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "crawler-hybrid", got.Model)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "mlagents-2.0", got.VersionName)
	assert.True(t, got.SupportsContinuousAndDiscrete)
	assert.Equal(t, "continuous_actions", got.ContinuousOutput)
	assert.Equal(t, "discrete_actions", got.DiscreteOutput)
	assert.Equal(t, 2, got.MemorySize)
	assert.Equal(t, map[string]string{
		"continuous_actions": "continuous",
		"discrete_actions":   "discrete",
		"recurrent_out":      "memory",
	}, got.Appliers)
}

func TestInspect_DeterministicHeads(t *testing.T) {
	out, err := execute(t, "inspect", "--model", hybridModel, "--deterministic")
	require.NoError(t, err)

	var got inspectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "deterministic_continuous_actions", got.ContinuousOutput)
	assert.Equal(t, "deterministic_discrete_actions", got.DiscreteOutput)
}

func TestInspect_Legacy(t *testing.T) {
	out, err := execute(t, "inspect", "--model", legacyModel)
	require.NoError(t, err)

	var got inspectOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 2, got.Version)
	assert.False(t, got.SupportsContinuousAndDiscrete)
	assert.Equal(t, "action", got.DiscreteOutput)
	assert.Equal(t, "legacy_discrete", got.Appliers["action"])
}

func TestInspect_RequiresModel(t *testing.T) {
	_, err := execute(t, "inspect")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	out, err := execute(t, "apply", "--model", hybridModel, "--steps", firstStep)
	require.NoError(t, err)

	var got applyOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 1, got.Steps)
	require.Len(t, got.Agents, 2)

	assert.Equal(t, []float32{1, 0}, got.Agents[9].ContinuousActions)
	assert.Equal(t, []int{0, 1}, got.Agents[9].DiscreteActions)
	assert.Equal(t, []float32{0.9, 0.8}, got.Agents[9].Memory)

	// Index 2 of the first branch is masked for agent 7.
	assert.Equal(t, []float32{0.5, -0.3}, got.Agents[7].ContinuousActions)
	assert.Equal(t, []int{0, 0}, got.Agents[7].DiscreteActions)
	assert.Equal(t, []float32{0.1, 0.2}, got.Agents[7].Memory)
}

func TestApply_LegacyDeterministic(t *testing.T) {
	out, err := execute(t, "apply", "--model", legacyModel, "--steps", legacySteps, "--deterministic")
	require.NoError(t, err)

	var got applyOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []int{1, 0}, got.Agents[1].DiscreteActions)
	assert.Equal(t, []int{2, 1}, got.Agents[2].DiscreteActions)
	assert.Equal(t, []float32{1}, got.Agents[2].Memory)
}

func TestApply_UnknownOutput(t *testing.T) {
	// The deterministic heads are registered, the recorded steps carry the
	// sampled ones.
	_, err := execute(t, "apply", "--model", hybridModel, "--steps", firstStep, "--deterministic")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--model", hybridModel, "--steps", stepsDir, "--batch-size", "2")
	require.NoError(t, err)

	var got runOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "crawler-hybrid", got.Policy)
	assert.Equal(t, uint64(3), got.Steps)
	assert.Zero(t, got.Failures)

	// Last step of 002.yaml
	assert.Equal(t, []float32{-1, 1}, got.Agents[7].ContinuousActions)
	assert.Equal(t, []int{0, 0}, got.Agents[7].DiscreteActions)
	assert.Equal(t, []float32{0.5, 0.6}, got.Agents[7].Memory)
	assert.Equal(t, []float32{0, 0}, got.Agents[9].ContinuousActions)
	assert.Equal(t, []int{1, 1}, got.Agents[9].DiscreteActions)

	require.NotNil(t, got.Store)
	assert.Equal(t, uint64(5), got.Store.TotalDecisions)
	assert.Equal(t, uint64(2), got.Store.TotalAgents)
	assert.Equal(t, uint64(3), got.Store.DecisionsByAgent[7])

	assert.Equal(t, float64(3), got.Metrics["inference_decision_batches_total"])
	assert.Equal(t, float64(1), got.Metrics["inference_resolved_action_corrections_total{tensor=discrete_actions}"])
	assert.Equal(t, float64(5), got.Metrics["inference_agents_applied_total{tensor=recurrent_out}"])
}

func TestRun_MaxSteps(t *testing.T) {
	out, err := execute(t, "run", "--model", hybridModel, "--steps", stepsDir, "--max-steps", "1")
	require.NoError(t, err)

	var got runOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, uint64(1), got.Steps)
	assert.Len(t, got.Agents, 2)
}

func TestRun_Random(t *testing.T) {
	out, err := execute(t, "run", "--model", hybridModel, "--steps", stepsDir, "--random", "--seed", "7")
	require.NoError(t, err)

	var got runOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "random", got.Policy)
	assert.Equal(t, uint64(3), got.Steps)

	for id, agent := range got.Agents {
		require.Len(t, agent.ContinuousActions, 2, "agent %d", id)
		require.Len(t, agent.DiscreteActions, 2, "agent %d", id)
		assert.Less(t, agent.DiscreteActions[0], 3)
		assert.Less(t, agent.DiscreteActions[1], 2)
		assert.Nil(t, agent.Memory)
	}
	// No model ran, so nothing was applied.
	assert.NotContains(t, got.Metrics, "inference_agents_applied_total{tensor=recurrent_out}")
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("INFERENCE_MODEL", hybridModel)
	t.Setenv("INFERENCE_LOG_LEVEL", "error")

	out, err := execute(t, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "crawler-hybrid")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "inspect", "--model", hybridModel, "--batch-size", "0")
	assert.ErrorContains(t, err, "invalid configuration")
}
