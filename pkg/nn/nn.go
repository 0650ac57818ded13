// Package nn implements the inference-time layers used by the speaker
// network: 2-D convolution, batch normalization, fully connected layers
// and element-wise activations over [tensor.Tensor] values.
//
// Layers own their parameters as exported tensors so that an external
// loader can overwrite them. Forward never mutates a layer; running
// statistics are only read.
package nn

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// ErrBatchStats is returned when batch statistics are requested for a
// batch that cannot produce them (e.g. a single item for a 1-D norm).
var ErrBatchStats = errors.New("nn: not enough values for batch statistics")

// NormMode selects which statistics batch normalization uses.
type NormMode int

const (
	// NormEval normalizes with the stored running mean and variance.
	NormEval NormMode = iota

	// NormBatch normalizes with statistics of the current batch. Running
	// statistics are left untouched.
	NormBatch
)

func (m NormMode) String() string {
	switch m {
	case NormEval:
		return "eval"
	case NormBatch:
		return "batch"
	default:
		return "NormMode(?)"
	}
}

// Param is a named parameter or buffer of a layer.
type Param struct {
	Name  string
	Value *tensor.Tensor
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// heNormal fills t with N(0, 2/fanIn) samples.
func heNormal(t *tensor.Tensor, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2.0 / float64(fanIn))
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64() * std)
	}
}

// uniform fills t with U(-bound, bound) samples.
func uniform(t *tensor.Tensor, bound float64, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}
