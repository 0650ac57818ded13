package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// DefaultEps is the variance epsilon used by batch normalization.
const DefaultEps = 1e-5

// BatchNorm normalizes per feature (channel). It accepts (B, F) inputs
// (1-D normalization) and (B, C, H, W) inputs (2-D normalization).
//
// When Affine is false the output is the pure standardization
// (x - mean) / sqrt(var + eps) with no learned scale or shift.
type BatchNorm struct {
	Features int
	Eps      float64
	Affine   bool

	// Weight and Bias have shape (Features); nil when Affine is false.
	Weight *tensor.Tensor
	Bias   *tensor.Tensor

	RunningMean *tensor.Tensor
	RunningVar  *tensor.Tensor
}

// NewBatchNorm creates a batch normalization layer with identity running
// statistics (mean 0, variance 1) and, if affine, unit scale and zero shift.
func NewBatchNorm(features int, affine bool) *BatchNorm {
	bn := &BatchNorm{
		Features:    features,
		Eps:         DefaultEps,
		Affine:      affine,
		RunningMean: tensor.Zeros(features),
		RunningVar:  tensor.Full(1, features),
	}
	if affine {
		bn.Weight = tensor.Full(1, features)
		bn.Bias = tensor.Zeros(features)
	}
	return bn
}

// Params lists the learnable parameters and running buffers under prefix,
// in the order weight, bias, running_mean, running_var.
func (bn *BatchNorm) Params(prefix string) []Param {
	var ps []Param
	if bn.Affine {
		ps = append(ps,
			Param{Name: join(prefix, "weight"), Value: bn.Weight},
			Param{Name: join(prefix, "bias"), Value: bn.Bias},
		)
	}
	return append(ps,
		Param{Name: join(prefix, "running_mean"), Value: bn.RunningMean},
		Param{Name: join(prefix, "running_var"), Value: bn.RunningVar},
	)
}

// Forward normalizes x and returns a new tensor.
func (bn *BatchNorm) Forward(x *tensor.Tensor, mode NormMode) (*tensor.Tensor, error) {
	var batch, plane int
	switch x.Rank() {
	case 2:
		if err := x.CheckShape(-1, bn.Features); err != nil {
			return nil, fmt.Errorf("nn: batchnorm input: %w", err)
		}
		batch, plane = x.Shape[0], 1
	case 4:
		if err := x.CheckShape(-1, bn.Features, -1, -1); err != nil {
			return nil, fmt.Errorf("nn: batchnorm input: %w", err)
		}
		batch, plane = x.Shape[0], x.Shape[2]*x.Shape[3]
	default:
		return nil, fmt.Errorf("nn: batchnorm expects rank 2 or 4, got %v: %w", x.Shape, tensor.ErrShape)
	}

	mean, variance := bn.RunningMean.Data, bn.RunningVar.Data
	if mode == NormBatch {
		if batch*plane < 2 {
			return nil, fmt.Errorf("%w: %d value(s) per feature", ErrBatchStats, batch*plane)
		}
		mean, variance = bn.batchStats(x, batch, plane)
	}

	out := tensor.Zeros(x.Shape...)
	for f := range bn.Features {
		scale := 1 / math.Sqrt(float64(variance[f])+bn.Eps)
		shift := -float64(mean[f]) * scale
		if bn.Affine {
			g := float64(bn.Weight.Data[f])
			scale *= g
			shift = shift*g + float64(bn.Bias.Data[f])
		}
		s, t := float32(scale), float32(shift)
		for b := range batch {
			off := (b*bn.Features + f) * plane
			src := x.Data[off : off+plane]
			dst := out.Data[off : off+plane]
			for i, v := range src {
				dst[i] = v*s + t
			}
		}
	}
	return out, nil
}

// batchStats returns per-feature mean and biased variance of x.
func (bn *BatchNorm) batchStats(x *tensor.Tensor, batch, plane int) ([]float32, []float32) {
	mean := make([]float32, bn.Features)
	variance := make([]float32, bn.Features)
	buf := make([]float64, batch*plane)
	for f := range bn.Features {
		for b := range batch {
			off := (b*bn.Features + f) * plane
			for i, v := range x.Data[off : off+plane] {
				buf[b*plane+i] = float64(v)
			}
		}
		m, v := stat.PopMeanVariance(buf, nil)
		mean[f], variance[f] = float32(m), float32(v)
	}
	return mean, variance
}
