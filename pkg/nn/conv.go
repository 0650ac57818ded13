package nn

import (
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// Conv2d is a square-kernel 2-D convolution over (B, C, H, W) inputs.
//
// The forward pass lowers each batch item with im2col and runs a single
// GEMM against the (out, in·k·k) weight matrix. Batch items are
// independent and are computed concurrently; the result does not depend on
// scheduling.
type Conv2d struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int

	// Weight has shape (OutChannels, InChannels, Kernel, Kernel).
	Weight *tensor.Tensor
	// Bias has shape (OutChannels), nil for bias-free convolutions.
	Bias *tensor.Tensor

	// Workers bounds the number of batch items processed concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// Conv2dOption configures a Conv2d.
type Conv2dOption func(*Conv2d)

// WithStride sets the stride for both spatial axes (default 1).
func WithStride(s int) Conv2dOption {
	return func(c *Conv2d) {
		if s > 0 {
			c.Stride = s
		}
	}
}

// WithPadding sets symmetric zero padding (default 0).
func WithPadding(p int) Conv2dOption {
	return func(c *Conv2d) {
		if p >= 0 {
			c.Padding = p
		}
	}
}

// WithBias adds a learnable bias (default none).
func WithBias() Conv2dOption {
	return func(c *Conv2d) {
		c.Bias = tensor.Zeros(c.OutChannels)
	}
}

// NewConv2d creates a convolution with zero-initialized weights.
func NewConv2d(in, out, kernel int, opts ...Conv2dOption) *Conv2d {
	c := &Conv2d{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      1,
		Weight:      tensor.Zeros(out, in, kernel, kernel),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset re-initializes the weights with He-normal samples from rng.
func (c *Conv2d) Reset(rng *rand.Rand) {
	heNormal(c.Weight, c.InChannels*c.Kernel*c.Kernel, rng)
	if c.Bias != nil {
		for i := range c.Bias.Data {
			c.Bias.Data[i] = 0
		}
	}
}

// OutSize returns the spatial output size for an h×w input.
func (c *Conv2d) OutSize(h, w int) (int, int) {
	oh := (h+2*c.Padding-c.Kernel)/c.Stride + 1
	ow := (w+2*c.Padding-c.Kernel)/c.Stride + 1
	return oh, ow
}

// Params lists the layer parameters under prefix.
func (c *Conv2d) Params(prefix string) []Param {
	ps := []Param{{Name: join(prefix, "weight"), Value: c.Weight}}
	if c.Bias != nil {
		ps = append(ps, Param{Name: join(prefix, "bias"), Value: c.Bias})
	}
	return ps
}

// Forward convolves x of shape (B, InChannels, H, W).
func (c *Conv2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if err := x.CheckShape(-1, c.InChannels, -1, -1); err != nil {
		return nil, fmt.Errorf("nn: conv2d input: %w", err)
	}
	batch, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	oh, ow := c.OutSize(h, w)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("nn: conv2d input %v too small for kernel %d: %w", x.Shape, c.Kernel, tensor.ErrShape)
	}

	out := tensor.Zeros(batch, c.OutChannels, oh, ow)
	k := c.InChannels * c.Kernel * c.Kernel
	weight := blas32.General{Rows: c.OutChannels, Cols: k, Stride: k, Data: c.Weight.Data}
	direct := c.Kernel == 1 && c.Stride == 1 && c.Padding == 0

	var g errgroup.Group
	g.SetLimit(c.workers())
	for b := range batch {
		g.Go(func() error {
			var cols []float32
			if direct {
				cols = x.Row(b)
			} else {
				cols = make([]float32, k*oh*ow)
				c.im2col(x.Row(b), h, w, oh, ow, cols)
			}
			dst := out.Row(b)
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
				weight,
				blas32.General{Rows: k, Cols: oh * ow, Stride: oh * ow, Data: cols},
				0,
				blas32.General{Rows: c.OutChannels, Cols: oh * ow, Stride: oh * ow, Data: dst},
			)
			if c.Bias != nil {
				plane := oh * ow
				for o, bv := range c.Bias.Data {
					row := dst[o*plane : (o+1)*plane]
					for i := range row {
						row[i] += bv
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Conv2d) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// im2col writes the (C·k·k, oh·ow) patch matrix of one (C, h, w) image.
func (c *Conv2d) im2col(img []float32, h, w, oh, ow int, cols []float32) {
	ks, s, p := c.Kernel, c.Stride, c.Padding
	plane := oh * ow
	for ch := range c.InChannels {
		src := img[ch*h*w : (ch+1)*h*w]
		for ki := range ks {
			for kj := range ks {
				row := cols[((ch*ks+ki)*ks+kj)*plane:]
				for y := range oh {
					iy := y*s - p + ki
					if iy < 0 || iy >= h {
						for xo := range ow {
							row[y*ow+xo] = 0
						}
						continue
					}
					for xo := range ow {
						ix := xo*s - p + kj
						if ix < 0 || ix >= w {
							row[y*ow+xo] = 0
						} else {
							row[y*ow+xo] = src[iy*w+ix]
						}
					}
				}
			}
		}
	}
}
