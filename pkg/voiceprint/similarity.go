package voiceprint

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

func vec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimension, len(a), len(b))
	}
	na, nb := blas32.Nrm2(vec(a)), blas32.Nrm2(vec(b))
	if na == 0 || nb == 0 {
		return 0, ErrZeroVector
	}
	s := blas32.Dot(vec(a), vec(b)) / (na * nb)
	return min(max(s, -1), 1), nil
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) ([]float32, error) {
	n := blas32.Nrm2(vec(v))
	if n == 0 {
		return v, ErrZeroVector
	}
	blas32.Scal(1/n, vec(v))
	return v, nil
}

// Centroid returns the mean of the unit-normalized vectors, itself
// normalized. It is the usual speaker model built from several enrollment
// utterances.
func Centroid(vs ...[]float32) ([]float32, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no vectors", ErrDimension)
	}
	sum := make([]float32, len(vs[0]))
	for _, v := range vs {
		if len(v) != len(sum) {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimension, len(v), len(sum))
		}
		u, err := Normalize(append([]float32(nil), v...))
		if err != nil {
			return nil, err
		}
		blas32.Axpy(1, vec(u), vec(sum))
	}
	return Normalize(sum)
}
