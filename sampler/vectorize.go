package sampler

import (
	"github.com/pkg/errors"

	"github.com/probkit/temper/tensor"
)

// AutoBatch lifts a per-draw log-probability function over an added
// leading batch axis by mapping each slice through the base function and
// stacking the results. Simple, but pays the base function's cost once per
// slice.
func AutoBatch(fn LogProbFn) LogProbFn {
	return func(parts []tensor.Tensor) (tensor.Tensor, error) {
		if len(parts) < 1 {
			return tensor.Tensor{}, errors.Errorf("No state parts to batch over")
		}
		n := parts[0].Shape[0]
		results := make([]tensor.Tensor, n)
		for b := 0; b < n; b++ {
			slice := make([]tensor.Tensor, len(parts))
			for i, p := range parts {
				s, err := p.Lead(b)
				if err != nil {
					return tensor.Tensor{}, err
				}
				slice[i] = s
			}
			r, err := fn(slice)
			if err != nil {
				return tensor.Tensor{}, err
			}
			results[b] = r
		}
		return tensor.Stack(results)
	}
}

// AutoBatchMulti is AutoBatch for functions returning several tensors
// (the deterministics callback).
func AutoBatchMulti(fn DeterministicsFn) DeterministicsFn {
	return func(parts []tensor.Tensor) ([]tensor.Tensor, error) {
		if len(parts) < 1 {
			return nil, errors.Errorf("No state parts to batch over")
		}
		n := parts[0].Shape[0]
		var cols [][]tensor.Tensor
		for b := 0; b < n; b++ {
			slice := make([]tensor.Tensor, len(parts))
			for i, p := range parts {
				s, err := p.Lead(b)
				if err != nil {
					return nil, err
				}
				slice[i] = s
			}
			vals, err := fn(slice)
			if err != nil {
				return nil, err
			}
			if cols == nil {
				cols = make([][]tensor.Tensor, len(vals))
			}
			for i, v := range vals {
				cols[i] = append(cols[i], v)
			}
		}
		out := make([]tensor.Tensor, len(cols))
		for i, col := range cols {
			stacked, err := tensor.Stack(col)
			if err != nil {
				return nil, err
			}
			out[i] = stacked
		}
		return out, nil
	}
}

// RankPolymorphic lifts a per-draw function over an arbitrary number of
// extra leading batch axes. coreNDims gives the non-batch rank of each
// input; every input must agree on the batch shape in front of its core
// shape. The SMC driver relies on this to vectorize across chains and
// replicas at once.
func RankPolymorphic(fn LogProbFn, coreNDims []int) LogProbFn {
	return func(parts []tensor.Tensor) (tensor.Tensor, error) {
		if len(parts) != len(coreNDims) {
			return tensor.Tensor{}, errors.Errorf("Have %d state parts but %d core ranks", len(parts), len(coreNDims))
		}
		if len(parts) < 1 {
			return tensor.Tensor{}, errors.Errorf("No state parts to batch over")
		}

		if parts[0].NDim() < coreNDims[0] {
			return tensor.Tensor{}, errors.Errorf("State part 0 with shape %v can not carry %d core axes", parts[0].Shape, coreNDims[0])
		}
		batchShape := parts[0].Shape[:parts[0].NDim()-coreNDims[0]]
		for i, p := range parts {
			nb := p.NDim() - coreNDims[i]
			if nb < 0 || !tensor.ShapeEq(p.Shape[:nb], batchShape) {
				return tensor.Tensor{}, errors.Errorf("State part %d with shape %v does not carry batch shape %v", i, p.Shape, batchShape)
			}
		}

		nBatch := tensor.Size(batchShape)
		flat := make([]tensor.Tensor, len(parts))
		for i, p := range parts {
			f, err := p.Reshape(append([]int{nBatch}, p.Shape[len(batchShape):]...)...)
			if err != nil {
				return tensor.Tensor{}, err
			}
			flat[i] = f
		}

		results := make([]tensor.Tensor, nBatch)
		for b := 0; b < nBatch; b++ {
			slice := make([]tensor.Tensor, len(flat))
			for i, p := range flat {
				s, err := p.Lead(b)
				if err != nil {
					return tensor.Tensor{}, err
				}
				slice[i] = s
			}
			r, err := fn(slice)
			if err != nil {
				return tensor.Tensor{}, err
			}
			results[b] = r
		}

		stacked, err := tensor.Stack(results)
		if err != nil {
			return tensor.Tensor{}, err
		}
		return stacked.Reshape(append(append([]int{}, batchShape...), stacked.Shape[1:]...)...)
	}
}

// SumTrailingTo reduces a lifted unreduced log probability down to its
// batch axes, summing the per-observation terms within each batch slice.
func SumTrailingTo(fn LogProbFn, batchNDims int) LogProbFn {
	return func(parts []tensor.Tensor) (tensor.Tensor, error) {
		r, err := fn(parts)
		if err != nil {
			return tensor.Tensor{}, err
		}
		return r.SumTrailing(batchNDims)
	}
}
