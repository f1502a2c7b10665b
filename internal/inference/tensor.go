package inference

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TensorType is the element type of a tensor.
type TensorType int

const (
	FloatingPoint TensorType = iota
	Integer
)

func (t TensorType) String() string {
	if t == Integer {
		return "int"
	}
	return "float"
}

// ParseTensorType maps "float"/"int" (and their long forms) to a TensorType.
func ParseTensorType(s string) (TensorType, error) {
	switch s {
	case "", "float", "float32", "floating_point":
		return FloatingPoint, nil
	case "int", "int32", "integer":
		return Integer, nil
	default:
		return FloatingPoint, fmt.Errorf("unknown tensor type %q", s)
	}
}

// TensorProxy is one model output for a whole batch. Rows are agents in the
// order of the agent id list passed to ApplyTensors; columns are the values
// for that agent. Integer tensors hold whole numbers in the same storage.
type TensorProxy struct {
	Name      string
	ValueType TensorType
	Shape     []int
	Data      *mat.Dense // nil when the tensor is empty
}

// NewTensorProxy builds a [batch, width] tensor from row-major values. The
// values are copied.
func NewTensorProxy(name string, valueType TensorType, batch, width int, values []float64) (*TensorProxy, error) {
	if batch < 0 || width < 0 {
		return nil, fmt.Errorf("%w: %s has negative shape [%d, %d]", ErrShapeMismatch, name, batch, width)
	}
	if len(values) != batch*width {
		return nil, fmt.Errorf("%w: %s has shape [%d, %d] but %d values", ErrShapeMismatch, name, batch, width, len(values))
	}
	t := &TensorProxy{
		Name:      name,
		ValueType: valueType,
		Shape:     []int{batch, width},
	}
	if batch > 0 && width > 0 {
		data := make([]float64, len(values))
		copy(data, values)
		t.Data = mat.NewDense(batch, width, data)
	}
	return t, nil
}

// MustTensorProxy is NewTensorProxy that panics on error, for fixtures and tests.
func MustTensorProxy(name string, valueType TensorType, batch, width int, values []float64) *TensorProxy {
	t, err := NewTensorProxy(name, valueType, batch, width, values)
	if err != nil {
		panic(err)
	}
	return t
}

// BatchSize is the first dimension.
func (t *TensorProxy) BatchSize() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Width is the product of the non-batch dimensions.
func (t *TensorProxy) Width() int {
	if len(t.Shape) < 2 {
		return 0
	}
	width := 1
	for _, d := range t.Shape[1:] {
		width *= d
	}
	return width
}

// Row returns the values of agent i. The slice aliases the tensor storage and
// must not be modified.
func (t *TensorProxy) Row(i int) []float64 {
	if t.Data == nil {
		return nil
	}
	return t.Data.RawRowView(i)
}

// checkStorage fails when the stored matrix does not hold Shape.
func (t *TensorProxy) checkStorage() error {
	batch, width := t.BatchSize(), t.Width()
	if batch == 0 || width == 0 {
		return nil
	}
	if t.Data == nil {
		return fmt.Errorf("%w: %s has shape %v but no data", ErrShapeMismatch, t.Name, t.Shape)
	}
	if r, c := t.Data.Dims(); r != batch || c != width {
		return fmt.Errorf("%w: %s has shape %v but holds %dx%d values",
			ErrShapeMismatch, t.Name, t.Shape, r, c)
	}
	return nil
}
