// Package fixture loads model manifests and recorded model outputs from YAML
// so the tensor applier can be driven without an inference backend.
package fixture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cartridge/inference/internal/actuators"
	"github.com/cartridge/inference/internal/inference"
)

// ErrInvalidFixture is wrapped by every decoding and validation error.
var ErrInvalidFixture = errors.New("invalid fixture")

// Manifest describes a model as it was exported: its API version, outputs
// and graph constants, plus the action spec it was trained for.
type Manifest struct {
	Name          string               `yaml:"name"`
	APIVersion    int                  `yaml:"api_version"`
	Outputs       []string             `yaml:"outputs"`
	MemorySize    int                  `yaml:"memory_size,omitempty"`
	Constants     map[string][]float32 `yaml:"constants,omitempty"`
	ActionSpec    actuators.ActionSpec `yaml:"action_spec"`
	Deterministic bool                 `yaml:"deterministic,omitempty"`
}

// Model returns the metadata view consumed by inference.NewModelInfo. The
// version and memory size fields become graph constants.
func (m *Manifest) Model() *inference.Model {
	constants := make(map[string][]float32, len(m.Constants)+2)
	for k, v := range m.Constants {
		constants[k] = append([]float32(nil), v...)
	}
	if m.APIVersion != 0 {
		constants[inference.ConstVersionNumber] = []float32{float32(m.APIVersion)}
	}
	if m.MemorySize > 0 {
		constants[inference.ConstMemorySize] = []float32{float32(m.MemorySize)}
	}
	return &inference.Model{
		Name:      m.Name,
		Outputs:   append([]string(nil), m.Outputs...),
		Constants: constants,
	}
}

func (m *Manifest) validate() error {
	if len(m.Outputs) == 0 {
		return fmt.Errorf("%w: model %q lists no outputs", ErrInvalidFixture, m.Name)
	}
	if _, ok := m.Constants[inference.ConstVersionNumber]; !ok && m.APIVersion == 0 {
		return fmt.Errorf("%w: model %q has no api_version", ErrInvalidFixture, m.Name)
	}
	if m.MemorySize < 0 {
		return fmt.Errorf("%w: model %q has negative memory_size", ErrInvalidFixture, m.Name)
	}
	if err := m.ActionSpec.Validate(); err != nil {
		return fmt.Errorf("%w: model %q: %v", ErrInvalidFixture, m.Name, err)
	}
	return nil
}

// Tensor is one recorded output. Shape starts with the batch dimension; Data
// is row-major.
type Tensor struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type,omitempty"`
	Shape []int     `yaml:"shape"`
	Data  []float64 `yaml:"data"`
}

// Proxy converts the recorded tensor.
func (t *Tensor) Proxy() (*inference.TensorProxy, error) {
	valueType, err := inference.ParseTensorType(t.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidFixture, t.Name, err)
	}
	batch, width, err := t.dims()
	if err != nil {
		return nil, err
	}
	proxy, err := inference.NewTensorProxy(t.Name, valueType, batch, width, t.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	proxy.Shape = append([]int(nil), t.Shape...)
	return proxy, nil
}

func (t *Tensor) dims() (batch, width int, err error) {
	if t.Name == "" {
		return 0, 0, fmt.Errorf("%w: tensor without a name", ErrInvalidFixture)
	}
	if len(t.Shape) == 0 {
		return 0, 0, fmt.Errorf("%w: tensor %s has no shape", ErrInvalidFixture, t.Name)
	}
	width = 1
	for _, d := range t.Shape {
		if d < 0 {
			return 0, 0, fmt.Errorf("%w: tensor %s has negative dimension in %v", ErrInvalidFixture, t.Name, t.Shape)
		}
	}
	for _, d := range t.Shape[1:] {
		width *= d
	}
	batch = t.Shape[0]
	if batch*width != len(t.Data) {
		return 0, 0, fmt.Errorf("%w: tensor %s has shape %v (%d values) but %d values recorded",
			ErrInvalidFixture, t.Name, t.Shape, batch*width, len(t.Data))
	}
	return batch, width, nil
}

// Step is one recorded inference step. Agents lists the agent of each tensor
// row; Masks is keyed by agent id.
type Step struct {
	Agents  []int          `yaml:"agents"`
	Masks   map[int][]bool `yaml:"masks,omitempty"`
	Tensors []Tensor       `yaml:"tensors"`
}

// Proxies converts every tensor of the step.
func (s *Step) Proxies() ([]*inference.TensorProxy, error) {
	proxies := make([]*inference.TensorProxy, len(s.Tensors))
	for i := range s.Tensors {
		p, err := s.Tensors[i].Proxy()
		if err != nil {
			return nil, err
		}
		proxies[i] = p
	}
	return proxies, nil
}

// Mask returns the recorded mask of agentID, nil when unmasked.
func (s *Step) Mask(agentID int) actuators.ActionMask {
	if bits, ok := s.Masks[agentID]; ok {
		return actuators.ActionMask(bits)
	}
	return nil
}

func (s *Step) validate() error {
	seen := make(map[int]bool, len(s.Agents))
	for _, id := range s.Agents {
		if seen[id] {
			return fmt.Errorf("%w: agent %d listed twice", ErrInvalidFixture, id)
		}
		seen[id] = true
	}
	for id := range s.Masks {
		if !seen[id] {
			return fmt.Errorf("%w: mask for agent %d which is not in the step", ErrInvalidFixture, id)
		}
	}
	for i := range s.Tensors {
		if _, _, err := s.Tensors[i].dims(); err != nil {
			return err
		}
	}
	return nil
}

type stepFile struct {
	Steps []Step `yaml:"steps"`
}

// DecodeManifest reads a model manifest.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := decodeStrict(r, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads a model manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := DecodeManifest(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// DecodeSteps reads a step file.
func DecodeSteps(r io.Reader) ([]Step, error) {
	var f stepFile
	if err := decodeStrict(r, &f); err != nil {
		return nil, err
	}
	for i := range f.Steps {
		if err := f.Steps[i].validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return f.Steps, nil
}

// LoadSteps reads a step file, or every *.yaml / *.yml file of a directory in
// lexical order.
func LoadSteps(path string) ([]Step, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files = files[:0]
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(path, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
		sort.Strings(files)
	}

	var steps []Step
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read steps: %w", err)
		}
		decoded, err := DecodeSteps(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		steps = append(steps, decoded...)
	}
	return steps, nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty document", ErrInvalidFixture)
		}
		return fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}
	return nil
}
