package pooling

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// SAP is self-attentive pooling. For each batch item with frames X (T×D):
//
//	H = tanh(X·W1ᵀ + b1)          T×D
//	A = softmax_T(H·W2ᵀ + b2)     T×heads
//	stats = Aᵀ·X                  heads×D, flattened
//	penalty = ‖AᵀA − I‖²_F
//
// The penalty discourages heads from attending to the same frames.
type SAP struct {
	inDim int
	heads int

	Linear    *nn.Linear // D → D
	Attention *nn.Linear // D → heads
}

// NewSAP creates a self-attentive aggregator for inDim-wide rows with the
// given number of heads, initialized from seed.
func NewSAP(inDim, heads int, seed uint64) (*SAP, error) {
	if inDim <= 0 || heads <= 0 {
		return nil, fmt.Errorf("pooling: sap needs positive dims, got inDim=%d heads=%d", inDim, heads)
	}
	p := &SAP{
		inDim:     inDim,
		heads:     heads,
		Linear:    nn.NewLinear(inDim, inDim),
		Attention: nn.NewLinear(inDim, heads),
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x5a9))
	p.Linear.Reset(rng)
	p.Attention.Reset(rng)
	return p, nil
}

func (p *SAP) NumStats() int    { return p.heads }
func (p *SAP) HasPenalty() bool { return true }
func (p *SAP) MinFrames() int   { return 1 }

// InDim returns the row width the aggregator was built for.
func (p *SAP) InDim() int { return p.inDim }

// Params implements [Parameterized].
func (p *SAP) Params(prefix string) []nn.Param {
	ps := p.Linear.Params(prefix + ".linear")
	return append(ps, p.Attention.Params(prefix+".attention")...)
}

// Aggregate implements [Aggregator].
func (p *SAP) Aggregate(x *tensor.Tensor) (Result, error) {
	flat, err := flatten(x)
	if err != nil {
		return Result{}, err
	}
	if flat.Shape[1] != p.inDim {
		return Result{}, fmt.Errorf("pooling: sap built for width %d, got %d: %w", p.inDim, flat.Shape[1], tensor.ErrShape)
	}
	if err := checkFrames(flat, p.MinFrames()); err != nil {
		return Result{}, err
	}

	batch, frames := flat.Shape[0], flat.Shape[2]
	out := tensor.Zeros(batch, p.heads*p.inDim)
	penalty := make([]float32, batch)
	for b := range batch {
		xt := transpose(flat.Row(b), p.inDim, frames)

		h, err := p.Linear.Forward(xt)
		if err != nil {
			return Result{}, err
		}
		for i, v := range h.Data {
			h.Data[i] = float32(math.Tanh(float64(v)))
		}
		a, err := p.Attention.Forward(h)
		if err != nil {
			return Result{}, err
		}
		softmaxColumns(a.Data, frames, p.heads)

		attn := blas32.General{Rows: frames, Cols: p.heads, Stride: p.heads, Data: a.Data}
		blas32.Gemm(blas.Trans, blas.NoTrans, 1,
			attn,
			blas32.General{Rows: frames, Cols: p.inDim, Stride: p.inDim, Data: xt.Data},
			0,
			blas32.General{Rows: p.heads, Cols: p.inDim, Stride: p.inDim, Data: out.Row(b)},
		)

		gram := make([]float32, p.heads*p.heads)
		blas32.Gemm(blas.Trans, blas.NoTrans, 1, attn, attn, 0,
			blas32.General{Rows: p.heads, Cols: p.heads, Stride: p.heads, Data: gram})
		var sq float64
		for i := range p.heads {
			for j := range p.heads {
				d := float64(gram[i*p.heads+j])
				if i == j {
					d--
				}
				sq += d * d
			}
		}
		penalty[b] = float32(sq)
	}
	return Result{Stats: out, Penalty: penalty}, nil
}

// transpose turns a rows×cols block into a (cols, rows) tensor.
func transpose(src []float32, rows, cols int) *tensor.Tensor {
	t := tensor.Zeros(cols, rows)
	for r := range rows {
		for c := range cols {
			t.Data[c*rows+r] = src[r*cols+c]
		}
	}
	return t
}

// softmaxColumns normalizes each column of a rows×cols matrix in place.
func softmaxColumns(m []float32, rows, cols int) {
	for c := range cols {
		maxV := float32(math.Inf(-1))
		for r := range rows {
			maxV = max(maxV, m[r*cols+c])
		}
		var sum float64
		for r := range rows {
			e := math.Exp(float64(m[r*cols+c] - maxV))
			m[r*cols+c] = float32(e)
			sum += e
		}
		for r := range rows {
			m[r*cols+c] = float32(float64(m[r*cols+c]) / sum)
		}
	}
}
