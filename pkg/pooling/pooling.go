// Package pooling reduces a variable-length (B, C, F, T) feature map to a
// fixed-length statistics vector per batch item.
//
// # Contract
//
// Every [Aggregator] declares its shape contract up front:
//
//   - NumStats: how many statistics it emits per (channel, frequency) row,
//     so the output width is C·F·NumStats.
//   - HasPenalty: whether [Result.Penalty] is populated (one scalar per
//     batch item). This is a static capability; callers never inspect the
//     concrete type.
//   - MinFrames: the smallest time extent it can summarize.
//
// # Variants
//
//	tstp  temporal statistics pooling: mean ‖ std      NumStats 2
//	tap   temporal average pooling: mean               NumStats 1
//	sap   self-attentive pooling + redundancy penalty  NumStats = heads
package pooling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// ErrUnknownKind is returned by [ParseKind] and [New] for unsupported names.
var ErrUnknownKind = errors.New("pooling: unknown aggregator kind")

// Result is the output of [Aggregator.Aggregate].
type Result struct {
	// Stats has shape (B, C·F·NumStats).
	Stats *tensor.Tensor

	// Penalty holds one value per batch item when the aggregator declares
	// HasPenalty, and is nil otherwise.
	Penalty []float32
}

// Aggregator collapses the time axis of a (B, C, F, T) feature map.
//
// Implementations must be safe for concurrent use; Aggregate must not
// modify the receiver or its input.
type Aggregator interface {
	Aggregate(x *tensor.Tensor) (Result, error)
	NumStats() int
	HasPenalty() bool
	MinFrames() int
}

// Parameterized is implemented by aggregators with learned parameters.
type Parameterized interface {
	Params(prefix string) []nn.Param
}

// Kind names a built-in aggregator.
type Kind string

const (
	KindTSTP Kind = "tstp"
	KindTAP  Kind = "tap"
	KindSAP  Kind = "sap"
)

// ParseKind parses a case-insensitive aggregator name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTSTP, KindTAP, KindSAP:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

type options struct {
	heads int
	seed  uint64
}

// Option configures aggregators built by [New].
type Option func(*options)

// WithHeads sets the number of attention heads for SAP (default 1).
func WithHeads(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.heads = n
		}
	}
}

// WithSeed sets the seed used to initialize learned parameters.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// New builds the aggregator of the given kind for inputs whose flattened
// (channel·frequency) width is inDim. TSTP and TAP ignore inDim.
func New(kind Kind, inDim int, opts ...Option) (Aggregator, error) {
	o := options{heads: 1}
	for _, opt := range opts {
		opt(&o)
	}
	switch kind {
	case KindTSTP:
		return NewTSTP(), nil
	case KindTAP:
		return NewTAP(), nil
	case KindSAP:
		return NewSAP(inDim, o.heads, o.seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// flatten views x (B, C, F, T) as (B, C·F, T).
func flatten(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 4 {
		return nil, fmt.Errorf("pooling: want (B, C, F, T), got %v: %w", x.Shape, tensor.ErrShape)
	}
	return x.Reshape(x.Shape[0], x.Shape[1]*x.Shape[2], x.Shape[3])
}

func checkFrames(x *tensor.Tensor, min int) error {
	if t := x.Dim(-1); t < min {
		return fmt.Errorf("pooling: %d frame(s), need at least %d: %w", t, min, tensor.ErrShape)
	}
	return nil
}
