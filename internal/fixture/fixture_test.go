package fixture

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/inference/internal/actuators"
	"github.com/cartridge/inference/internal/inference"
)

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(filepath.Join("testdata", "hybrid_model.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "crawler-hybrid", m.Name)
	assert.Equal(t, actuators.NewActionSpec(2, []int{3, 2}), m.ActionSpec)

	model := m.Model()
	assert.True(t, model.HasOutput(inference.TensorRecurrentOutput))
	assert.Equal(t, []float32{3}, model.Constants[inference.ConstVersionNumber])
	assert.Equal(t, []float32{2}, model.Constants[inference.ConstMemorySize])

	info, err := inference.NewModelInfo(model, false)
	require.NoError(t, err)
	assert.Equal(t, inference.MLAgents2_0, info.Version())
	assert.Equal(t, 2, info.MemorySize())
	assert.NoError(t, info.CheckActionSpec(m.ActionSpec))
}

func TestDecodeManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"no outputs", "name: m\napi_version: 3\naction_spec: {num_continuous_actions: 1}\n"},
		{"no version", "name: m\noutputs: [action]\naction_spec: {num_continuous_actions: 1}\n"},
		{"no actions", "name: m\napi_version: 3\noutputs: [action]\n"},
		{"unknown field", "name: m\napi_version: 3\noutputs: [action]\nactoin_spec: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeManifest(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidFixture)
		})
	}
}

func TestDecodeSteps(t *testing.T) {
	doc := `
steps:
  - agents: [3, 4]
    masks:
      4: [true, false]
    tensors:
      - name: discrete_actions
        type: float
        shape: [2, 2]
        data: [0.1, 0.9, 0.6, 0.4]
      - name: recurrent_out
        shape: [3, 1, 2]
        data: [1, 2, 3, 4, 5, 6]
`
	steps, err := DecodeSteps(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, steps, 1)

	step := steps[0]
	assert.Nil(t, step.Mask(3))
	assert.Equal(t, actuators.ActionMask{true, false}, step.Mask(4))

	proxies, err := step.Proxies()
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	assert.Equal(t, inference.FloatingPoint, proxies[0].ValueType)
	assert.Equal(t, 3, proxies[1].BatchSize())
	assert.Equal(t, 2, proxies[1].Width())
	assert.Equal(t, []float64{5, 6}, proxies[1].Row(2))
}

func TestDecodeSteps_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"shape data mismatch", "steps:\n  - agents: [1]\n    tensors:\n      - {name: action, shape: [1, 3], data: [1, 2]}\n"},
		{"no shape", "steps:\n  - agents: [1]\n    tensors:\n      - {name: action, data: [1]}\n"},
		{"unnamed tensor", "steps:\n  - agents: [1]\n    tensors:\n      - {shape: [1, 1], data: [1]}\n"},
		{"duplicate agent", "steps:\n  - agents: [1, 1]\n    tensors: []\n"},
		{"mask for unknown agent", "steps:\n  - agents: [1]\n    masks: {2: [true]}\n    tensors: []\n"},
		{"negative dimension", "steps:\n  - agents: [1]\n    tensors:\n      - {name: action, shape: [-1, 1], data: []}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSteps(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidFixture)
		})
	}
}

func TestTensorProxy_UnknownType(t *testing.T) {
	tensor := Tensor{Name: "action", Type: "bool", Shape: []int{1, 1}, Data: []float64{1}}
	_, err := tensor.Proxy()
	assert.ErrorIs(t, err, ErrInvalidFixture)
}

func TestLoadSteps_Directory(t *testing.T) {
	steps, err := LoadSteps(filepath.Join("testdata", "steps"))
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{9, 7}, steps[0].Agents)
	assert.Equal(t, []int{7}, steps[1].Agents)
	assert.Equal(t, []int{7, 9}, steps[2].Agents)

	_, err = LoadSteps(filepath.Join("testdata", "missing"))
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	steps, err := LoadSteps(filepath.Join("testdata", "steps", "001.yaml"))
	require.NoError(t, err)

	replay := NewReplay(steps)
	ctx := context.Background()

	_, err = replay.Outputs(ctx, []int{7})
	assert.Error(t, err, "no step before Next")

	requests, err := replay.Next(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, 9, requests[0].AgentID)
	assert.Nil(t, requests[0].Mask)
	assert.Equal(t, 7, requests[1].AgentID)
	assert.True(t, requests[1].Mask.IsMasked(actuators.MakeDiscrete(3, 2), 0, 2))

	// Rows follow the requested order, not the recorded one
	tensors, err := replay.Outputs(ctx, []int{7, 9})
	require.NoError(t, err)
	require.Len(t, tensors, 3)
	assert.Equal(t, inference.TensorContinuousActionOutput, tensors[0].Name)
	assert.Equal(t, []float64{0.5, -0.3}, tensors[0].Row(0))
	assert.Equal(t, []float64{1.0, 0.0}, tensors[0].Row(1))
	assert.Equal(t, inference.Integer, tensors[1].ValueType)

	_, err = replay.Outputs(ctx, []int{8})
	assert.Error(t, err)

	_, err = replay.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
