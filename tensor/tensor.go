package tensor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// A Tensor is a dense, row-major float64 array with an explicit shape. A
// zero-length shape is a scalar. Sampler state is represented as lists of
// these, with chain/replica batching expressed as extra leading axes.
type Tensor struct {
	Shape []int
	Data  []float64
}

// Size returns the element count implied by a shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) Tensor {
	return Tensor{
		Shape: append([]int{}, shape...),
		Data:  make([]float64, Size(shape)),
	}
}

// Scalar returns a rank-0 tensor holding v.
func Scalar(v float64) Tensor {
	return Tensor{Shape: []int{}, Data: []float64{v}}
}

// FromSlice returns a rank-1 tensor over a copy of vals.
func FromSlice(vals []float64) Tensor {
	d := make([]float64, len(vals))
	copy(d, vals)
	return Tensor{Shape: []int{len(vals)}, Data: d}
}

// FromData wraps data (no copy) in the given shape.
func FromData(shape []int, data []float64) (Tensor, error) {
	if Size(shape) != len(data) {
		return Tensor{}, errors.Errorf("Shape %v needs %d elements but %d given", shape, Size(shape), len(data))
	}
	return Tensor{Shape: append([]int{}, shape...), Data: data}, nil
}

// NDim returns the rank of the tensor.
func (t Tensor) NDim() int {
	return len(t.Shape)
}

// Size returns the total element count.
func (t Tensor) Size() int {
	return len(t.Data)
}

// IsScalar is true for rank-0 tensors.
func (t Tensor) IsScalar() bool {
	return len(t.Shape) == 0
}

// ScalarValue returns the single element of a rank-0 or single-element tensor.
func (t Tensor) ScalarValue() (float64, error) {
	if len(t.Data) != 1 {
		return 0, errors.Errorf("Tensor with shape %v is not a scalar", t.Shape)
	}
	return t.Data[0], nil
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	cp := Tensor{
		Shape: append([]int{}, t.Shape...),
		Data:  make([]float64, len(t.Data)),
	}
	copy(cp.Data, t.Data)
	return cp
}

// ShapeEq is true when the two shapes match exactly.
func ShapeEq(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i, d := range a {
		if b[i] != d {
			return false
		}
	}
	return true
}

// Equal is true when shape and every element match exactly.
func (t Tensor) Equal(o Tensor) bool {
	if !ShapeEq(t.Shape, o.Shape) {
		return false
	}
	for i, v := range t.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}

// Lead slices index i along the leading axis. The result shares the
// underlying data.
func (t Tensor) Lead(i int) (Tensor, error) {
	if len(t.Shape) < 1 {
		return Tensor{}, errors.Errorf("Can not slice a scalar tensor")
	}
	if i < 0 || i >= t.Shape[0] {
		return Tensor{}, errors.Errorf("Index %d out of range for leading axis of length %d", i, t.Shape[0])
	}
	stride := Size(t.Shape[1:])
	return Tensor{
		Shape: append([]int{}, t.Shape[1:]...),
		Data:  t.Data[i*stride : (i+1)*stride],
	}, nil
}

// Tile replicates t n times along a new leading axis, so every slice along
// that axis is an exact copy of t.
func Tile(t Tensor, n int) Tensor {
	out := Tensor{
		Shape: append([]int{n}, t.Shape...),
		Data:  make([]float64, n*len(t.Data)),
	}
	for i := 0; i < n; i++ {
		copy(out.Data[i*len(t.Data):(i+1)*len(t.Data)], t.Data)
	}
	return out
}

// Stack joins equal-shaped tensors along a new leading axis.
func Stack(ts []Tensor) (Tensor, error) {
	if len(ts) < 1 {
		return Tensor{}, errors.Errorf("Can not stack 0 tensors")
	}
	for _, t := range ts[1:] {
		if !ShapeEq(t.Shape, ts[0].Shape) {
			return Tensor{}, errors.Errorf("Can not stack shapes %v and %v", ts[0].Shape, t.Shape)
		}
	}
	out := Tensor{
		Shape: append([]int{len(ts)}, ts[0].Shape...),
		Data:  make([]float64, len(ts)*len(ts[0].Data)),
	}
	for i, t := range ts {
		copy(out.Data[i*len(t.Data):(i+1)*len(t.Data)], t.Data)
	}
	return out, nil
}

// Reshape returns a view of t with a new shape of the same total size.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	if Size(shape) != len(t.Data) {
		return Tensor{}, errors.Errorf("Can not reshape %v to %v", t.Shape, shape)
	}
	return Tensor{Shape: append([]int{}, shape...), Data: t.Data}, nil
}

// Transpose01 swaps the first two axes (a copy). Used to move trace storage
// from [draws, chains, ...] to [chains, draws, ...].
func (t Tensor) Transpose01() (Tensor, error) {
	if len(t.Shape) < 2 {
		return Tensor{}, errors.Errorf("Transpose01 needs rank >= 2, have shape %v", t.Shape)
	}
	d0, d1 := t.Shape[0], t.Shape[1]
	inner := Size(t.Shape[2:])
	out := Tensor{
		Shape: append([]int{d1, d0}, t.Shape[2:]...),
		Data:  make([]float64, len(t.Data)),
	}
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			src := (i*d1 + j) * inner
			dst := (j*d0 + i) * inner
			copy(out.Data[dst:dst+inner], t.Data[src:src+inner])
		}
	}
	return out, nil
}

// SumAll reduces every element to one float.
func (t Tensor) SumAll() float64 {
	return floats.Sum(t.Data)
}

// SumTrailing sums away every axis after the first keep axes. The result has
// shape t.Shape[:keep].
func (t Tensor) SumTrailing(keep int) (Tensor, error) {
	if keep < 0 || keep > len(t.Shape) {
		return Tensor{}, errors.Errorf("Can not keep %d axes of shape %v", keep, t.Shape)
	}
	outer := Size(t.Shape[:keep])
	inner := Size(t.Shape[keep:])
	out := New(t.Shape[:keep]...)
	for i := 0; i < outer; i++ {
		out.Data[i] = floats.Sum(t.Data[i*inner : (i+1)*inner])
	}
	return out, nil
}
