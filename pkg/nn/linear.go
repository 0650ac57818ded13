package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// Linear is a fully connected layer y = x·Wᵀ + b over (B, In) inputs.
type Linear struct {
	In  int
	Out int

	// Weight has shape (Out, In); Bias has shape (Out).
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
}

// NewLinear creates a fully connected layer with zero parameters.
func NewLinear(in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: tensor.Zeros(out, in),
		Bias:   tensor.Zeros(out),
	}
}

// Reset re-initializes weight and bias with U(-1/sqrt(In), 1/sqrt(In)).
func (l *Linear) Reset(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(l.In))
	uniform(l.Weight, bound, rng)
	uniform(l.Bias, bound, rng)
}

// Params lists the layer parameters under prefix.
func (l *Linear) Params(prefix string) []Param {
	return []Param{
		{Name: join(prefix, "weight"), Value: l.Weight},
		{Name: join(prefix, "bias"), Value: l.Bias},
	}
}

// Forward maps x of shape (B, In) to (B, Out).
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := x.CheckShape(-1, l.In); err != nil {
		return nil, fmt.Errorf("nn: linear input: %w", err)
	}
	batch := x.Shape[0]
	out := tensor.Zeros(batch, l.Out)
	for b := range batch {
		copy(out.Row(b), l.Bias.Data)
	}
	if batch == 0 {
		return out, nil
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: batch, Cols: l.In, Stride: l.In, Data: x.Data},
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: l.Weight.Data},
		1,
		blas32.General{Rows: batch, Cols: l.Out, Stride: l.Out, Data: out.Data},
	)
	return out, nil
}
