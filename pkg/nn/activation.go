package nn

import (
	"fmt"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// ReLU clamps negative values of x to zero in place and returns x.
// Callers only pass tensors they own (fresh layer outputs).
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = 0
		}
	}
	return x
}

// AddInPlace adds src to dst element-wise.
func AddInPlace(dst, src *tensor.Tensor) error {
	if !tensor.SameShape(dst, src) {
		return fmt.Errorf("nn: add %v and %v: %w", dst.Shape, src.Shape, tensor.ErrShape)
	}
	for i, v := range src.Data {
		dst.Data[i] += v
	}
	return nil
}
