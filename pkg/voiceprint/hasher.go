package voiceprint

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"
)

const hexDigits = "0123456789ABCDEF"

// Hasher maps embeddings to short hex labels with random-hyperplane LSH.
// Each of the bits hyperplanes contributes one bit: 1 when the embedding
// lies on its positive side. Nearby embeddings share most bits, so labels
// can be compared at coarser precision by prefix:
//
//	"A3F8" 16 bit, "A3F" 12 bit, "A3" 8 bit, "A" 4 bit
type Hasher struct {
	dim    int
	bits   int
	planes blas32.General // bits × dim, unit rows
}

// NewHasher draws bits unit hyperplanes of length dim from seed. bits must
// be a positive multiple of 4. The same seed gives the same labels across
// restarts.
func NewHasher(dim, bits int, seed uint64) (*Hasher, error) {
	if bits <= 0 || bits%4 != 0 {
		return nil, fmt.Errorf("voiceprint: hash bits must be a positive multiple of 4, got %d", bits)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("voiceprint: hash dim must be positive, got %d", dim)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xdeadbeef))
	planes := blas32.General{Rows: bits, Cols: dim, Stride: dim, Data: make([]float32, bits*dim)}
	for i := range bits {
		row := planes.Data[i*dim : (i+1)*dim]
		var norm float64
		for j := range row {
			v := rng.NormFloat64()
			row[j] = float32(v)
			norm += v * v
		}
		if norm > 0 {
			blas32.Scal(float32(1/math.Sqrt(norm)), vec(row))
		}
	}
	return &Hasher{dim: dim, bits: bits, planes: planes}, nil
}

// Hash returns the uppercase hex label of embedding, bits/4 characters long.
func (h *Hasher) Hash(embedding []float32) (string, error) {
	if len(embedding) != h.dim {
		return "", fmt.Errorf("%w: hasher wants %d, got %d", ErrDimension, h.dim, len(embedding))
	}
	proj := make([]float32, h.bits)
	blas32.Gemv(blas32.NoTrans, 1, h.planes, vec(embedding), 0, vec(proj))

	var sb strings.Builder
	for i := 0; i < h.bits; i += 4 {
		var nibble byte
		for _, p := range proj[i : i+4] {
			nibble <<= 1
			if p > 0 {
				nibble |= 1
			}
		}
		sb.WriteByte(hexDigits[nibble])
	}
	return sb.String(), nil
}

// Bits returns the number of hash bits.
func (h *Hasher) Bits() int { return h.bits }

// Dim returns the expected embedding length.
func (h *Hasher) Dim() int { return h.dim }
