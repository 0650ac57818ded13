package resnet

import (
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// Shortcut is the residual path of a block. It is either an
// [IdentityShortcut] or a [ProjectionShortcut], fixed at construction.
type Shortcut interface {
	// Apply maps the block input onto the block output shape. The identity
	// shortcut returns x itself; callers must not modify the result.
	Apply(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error)

	// IsIdentity reports whether the shortcut passes its input through.
	IsIdentity() bool
}

// IdentityShortcut passes the block input through unchanged.
type IdentityShortcut struct{}

func (IdentityShortcut) Apply(x *tensor.Tensor, _ nn.NormMode) (*tensor.Tensor, error) {
	return x, nil
}

func (IdentityShortcut) IsIdentity() bool { return true }

// ProjectionShortcut is a strided 1×1 convolution followed by batch
// normalization.
type ProjectionShortcut struct {
	Conv *nn.Conv2d
	BN   *nn.BatchNorm
}

func (p *ProjectionShortcut) Apply(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error) {
	out, err := p.Conv.Forward(x)
	if err != nil {
		return nil, err
	}
	return p.BN.Forward(out, mode)
}

func (*ProjectionShortcut) IsIdentity() bool { return false }

// newShortcut picks the identity path iff the block keeps both resolution
// and channel count.
func newShortcut(inPlanes, outPlanes, stride int) Shortcut {
	if stride == 1 && inPlanes == outPlanes {
		return IdentityShortcut{}
	}
	return &ProjectionShortcut{
		Conv: nn.NewConv2d(inPlanes, outPlanes, 1, nn.WithStride(stride)),
		BN:   nn.NewBatchNorm(outPlanes, true),
	}
}

func shortcutParams(s Shortcut, prefix string) []nn.Param {
	p, ok := s.(*ProjectionShortcut)
	if !ok {
		return nil
	}
	ps := p.Conv.Params(prefix + ".0")
	return append(ps, p.BN.Params(prefix+".1")...)
}

func shortcutConvs(s Shortcut) []*nn.Conv2d {
	if p, ok := s.(*ProjectionShortcut); ok {
		return []*nn.Conv2d{p.Conv}
	}
	return nil
}

func resetShortcut(s Shortcut, rng *rand.Rand) {
	if p, ok := s.(*ProjectionShortcut); ok {
		p.Conv.Reset(rng)
	}
}
