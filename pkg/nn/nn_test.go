package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/haivivi/speakernet/pkg/tensor"
)

// naiveConv is a direct-loop reference for Conv2d.Forward.
func naiveConv(c *Conv2d, x *tensor.Tensor) *tensor.Tensor {
	batch, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	oh, ow := c.OutSize(h, w)
	out := tensor.Zeros(batch, c.OutChannels, oh, ow)
	ks := c.Kernel
	for b := range batch {
		for o := range c.OutChannels {
			for y := range oh {
				for xo := range ow {
					var sum float64
					for ch := range c.InChannels {
						for ki := range ks {
							for kj := range ks {
								iy := y*c.Stride - c.Padding + ki
								ix := xo*c.Stride - c.Padding + kj
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								wv := c.Weight.Data[((o*c.InChannels+ch)*ks+ki)*ks+kj]
								xv := x.Data[((b*c.InChannels+ch)*h+iy)*w+ix]
								sum += float64(wv) * float64(xv)
							}
						}
					}
					if c.Bias != nil {
						sum += float64(c.Bias.Data[o])
					}
					out.Data[((b*c.OutChannels+o)*oh+y)*ow+xo] = float32(sum)
				}
			}
		}
	}
	return out
}

func randTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	t := tensor.Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}

func assertClose(t *testing.T, got, want *tensor.Tensor, tol float64) {
	t.Helper()
	if !tensor.SameShape(got, want) {
		t.Fatalf("shape = %v, want %v", got.Shape, want.Shape)
	}
	for i := range got.Data {
		if d := math.Abs(float64(got.Data[i] - want.Data[i])); d > tol {
			t.Fatalf("element %d = %f, want %f (diff %g)", i, got.Data[i], want.Data[i], d)
		}
	}
}

func TestConv2dMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tests := []struct {
		name                   string
		in, out, k, stride, pd int
		bias                   bool
		h, w                   int
	}{
		{"3x3 same", 2, 4, 3, 1, 1, false, 6, 7},
		{"3x3 stride2", 3, 5, 3, 2, 1, false, 8, 9},
		{"1x1", 4, 3, 1, 1, 0, true, 5, 5},
		{"1x1 stride2", 4, 6, 1, 2, 0, false, 7, 6},
		{"odd size stride2", 1, 2, 3, 2, 1, true, 5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Conv2dOption{WithStride(tt.stride), WithPadding(tt.pd)}
			if tt.bias {
				opts = append(opts, WithBias())
			}
			c := NewConv2d(tt.in, tt.out, tt.k, opts...)
			c.Reset(rng)
			if c.Bias != nil {
				for i := range c.Bias.Data {
					c.Bias.Data[i] = float32(i) * 0.1
				}
			}
			x := randTensor(rng, 3, tt.in, tt.h, tt.w)
			got, err := c.Forward(x)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			assertClose(t, got, naiveConv(c, x), 1e-4)
		})
	}
}

func TestConv2dOutSizeHalves(t *testing.T) {
	c := NewConv2d(1, 1, 3, WithStride(2), WithPadding(1))
	for _, tc := range []struct{ in, want int }{{40, 20}, {20, 10}, {5, 3}, {1, 1}, {200, 100}, {25, 13}} {
		if got, _ := c.OutSize(tc.in, tc.in); got != tc.want {
			t.Errorf("OutSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestConv2dRejectsChannelMismatch(t *testing.T) {
	c := NewConv2d(3, 4, 3, WithPadding(1))
	_, err := c.Forward(tensor.Zeros(1, 2, 4, 4))
	if !errors.Is(err, tensor.ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
}

func TestConv2dSerialEqualsParallel(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	c := NewConv2d(3, 8, 3, WithPadding(1), WithStride(2))
	c.Reset(rng)
	x := randTensor(rng, 6, 3, 10, 12)

	c.Workers = 1
	serial, err := c.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	c.Workers = 4
	parallel, err := c.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.Equal(serial, parallel) {
		t.Error("parallel forward differs from serial forward")
	}
}

func TestBatchNormEvalIdentityStats(t *testing.T) {
	bn := NewBatchNorm(2, true)
	x, _ := tensor.New([]float32{1, -2, 3, 4}, 2, 2)
	got, err := bn.Forward(x, NormEval)
	if err != nil {
		t.Fatal(err)
	}
	scale := float32(1 / math.Sqrt(1+DefaultEps))
	want, _ := tensor.New([]float32{1 * scale, -2 * scale, 3 * scale, 4 * scale}, 2, 2)
	assertClose(t, got, want, 1e-6)
}

func TestBatchNormEvalAffine(t *testing.T) {
	bn := NewBatchNorm(1, true)
	bn.RunningMean.Data[0] = 2
	bn.RunningVar.Data[0] = 4
	bn.Eps = 0
	bn.Weight.Data[0] = 3
	bn.Bias.Data[0] = 1
	x, _ := tensor.New([]float32{2, 4, 6, 0}, 1, 1, 2, 2)
	got, err := bn.Forward(x, NormEval)
	if err != nil {
		t.Fatal(err)
	}
	// (x-2)/2*3+1
	want, _ := tensor.New([]float32{1, 4, 7, -2}, 1, 1, 2, 2)
	assertClose(t, got, want, 1e-6)
}

func TestBatchNormBatchModeStandardizes(t *testing.T) {
	bn := NewBatchNorm(3, false)
	rng := rand.New(rand.NewPCG(5, 6))
	x := randTensor(rng, 8, 3)
	for i := range x.Data {
		x.Data[i] = x.Data[i]*5 + 10
	}
	got, err := bn.Forward(x, NormBatch)
	if err != nil {
		t.Fatal(err)
	}
	for f := range 3 {
		var sum, sq float64
		for b := range 8 {
			v := float64(got.Data[b*3+f])
			sum += v
			sq += v * v
		}
		mean := sum / 8
		variance := sq/8 - mean*mean
		if math.Abs(mean) > 1e-4 || math.Abs(variance-1) > 1e-3 {
			t.Errorf("feature %d: mean=%f var=%f, want 0 and 1", f, mean, variance)
		}
	}
	if bn.RunningMean.Data[0] != 0 || bn.RunningVar.Data[0] != 1 {
		t.Error("batch mode must not update running statistics")
	}
}

func TestBatchNormBatchModeSingleItem(t *testing.T) {
	bn := NewBatchNorm(4, false)
	_, err := bn.Forward(tensor.Zeros(1, 4), NormBatch)
	if !errors.Is(err, ErrBatchStats) {
		t.Fatalf("err = %v, want ErrBatchStats", err)
	}
	if _, err := bn.Forward(tensor.Zeros(1, 4), NormEval); err != nil {
		t.Fatalf("eval mode with one item: %v", err)
	}
}

func TestBatchNormParamsNonAffine(t *testing.T) {
	ps := NewBatchNorm(4, false).Params("seg_bn_1")
	if len(ps) != 2 || ps[0].Name != "seg_bn_1.running_mean" || ps[1].Name != "seg_bn_1.running_var" {
		t.Errorf("Params = %+v", ps)
	}
}

func TestLinearForward(t *testing.T) {
	l := NewLinear(3, 2)
	copy(l.Weight.Data, []float32{1, 0, -1, 2, 1, 0})
	copy(l.Bias.Data, []float32{0.5, -1})
	x, _ := tensor.New([]float32{1, 2, 3, -1, 0, 1}, 2, 3)
	got, err := l.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := tensor.New([]float32{-1.5, 3, -1.5, -3}, 2, 2)
	assertClose(t, got, want, 1e-6)

	if _, err := l.Forward(tensor.Zeros(2, 4)); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}

func TestReLUAndAdd(t *testing.T) {
	x, _ := tensor.New([]float32{-1, 0, 2}, 3)
	ReLU(x)
	if x.Data[0] != 0 || x.Data[2] != 2 {
		t.Errorf("ReLU = %v", x.Data)
	}
	y, _ := tensor.New([]float32{1, 1, 1}, 3)
	if err := AddInPlace(x, y); err != nil {
		t.Fatal(err)
	}
	if x.Data[0] != 1 || x.Data[2] != 3 {
		t.Errorf("Add = %v", x.Data)
	}
	if err := AddInPlace(x, tensor.Zeros(2)); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
}
