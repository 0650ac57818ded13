package pooling

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// stdEps keeps the standard deviation differentiable at zero variance.
const stdEps = 1e-8

// TSTP is temporal statistics pooling: the per-row mean followed by the
// per-row standard deviation (unbiased estimator) over time.
type TSTP struct{}

// NewTSTP returns a temporal statistics aggregator.
func NewTSTP() *TSTP { return &TSTP{} }

func (*TSTP) NumStats() int    { return 2 }
func (*TSTP) HasPenalty() bool { return false }
func (*TSTP) MinFrames() int   { return 2 }

// Aggregate implements [Aggregator]. The output row is [means..., stds...].
func (p *TSTP) Aggregate(x *tensor.Tensor) (Result, error) {
	flat, err := flatten(x)
	if err != nil {
		return Result{}, err
	}
	if err := checkFrames(flat, p.MinFrames()); err != nil {
		return Result{}, err
	}
	batch, rows, frames := flat.Shape[0], flat.Shape[1], flat.Shape[2]
	out := tensor.Zeros(batch, 2*rows)
	buf := make([]float64, frames)
	for b := range batch {
		src := flat.Row(b)
		dst := out.Row(b)
		for r := range rows {
			for i, v := range src[r*frames : (r+1)*frames] {
				buf[i] = float64(v)
			}
			mean, variance := stat.MeanVariance(buf, nil)
			dst[r] = float32(mean)
			dst[rows+r] = float32(math.Sqrt(variance + stdEps))
		}
	}
	return Result{Stats: out}, nil
}

// TAP is temporal average pooling.
type TAP struct{}

// NewTAP returns a temporal average aggregator.
func NewTAP() *TAP { return &TAP{} }

func (*TAP) NumStats() int    { return 1 }
func (*TAP) HasPenalty() bool { return false }
func (*TAP) MinFrames() int   { return 1 }

// Aggregate implements [Aggregator].
func (p *TAP) Aggregate(x *tensor.Tensor) (Result, error) {
	flat, err := flatten(x)
	if err != nil {
		return Result{}, err
	}
	if err := checkFrames(flat, p.MinFrames()); err != nil {
		return Result{}, err
	}
	batch, rows, frames := flat.Shape[0], flat.Shape[1], flat.Shape[2]
	out := tensor.Zeros(batch, rows)
	for b := range batch {
		src := flat.Row(b)
		dst := out.Row(b)
		for r := range rows {
			var sum float64
			for _, v := range src[r*frames : (r+1)*frames] {
				sum += float64(v)
			}
			dst[r] = float32(sum / float64(frames))
		}
	}
	return Result{Stats: out}, nil
}
