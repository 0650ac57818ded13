package resnet

import (
	"fmt"
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// Block is a residual unit computing relu(F(x) + shortcut(x)).
type Block interface {
	// Forward maps (B, InPlanes, H, W) to (B, OutPlanes, H', W') where
	// H' = ceil(H/Stride) and W' = ceil(W/Stride).
	Forward(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error)

	InPlanes() int
	OutPlanes() int
	Stride() int
	Shortcut() Shortcut

	params(prefix string) []nn.Param
	convs() []*nn.Conv2d
	reset(rng *rand.Rand)
}

// newBlock builds a block of the given kind.
func newBlock(kind BlockKind, inPlanes, planes, stride int) (Block, error) {
	switch kind {
	case Basic:
		return NewBasicBlock(inPlanes, planes, stride), nil
	case Bottleneck:
		return NewBottleneckBlock(inPlanes, planes, stride), nil
	default:
		return nil, fmt.Errorf("%w: unknown block %q", ErrInvalidConfig, kind)
	}
}

// convBN is a convolution followed by batch normalization, optionally
// followed by ReLU.
type convBN struct {
	conv *nn.Conv2d
	bn   *nn.BatchNorm
}

func newConvBN(in, out, kernel, stride int) convBN {
	return convBN{
		conv: nn.NewConv2d(in, out, kernel, nn.WithStride(stride), nn.WithPadding(kernel/2)),
		bn:   nn.NewBatchNorm(out, true),
	}
}

func (c convBN) forward(x *tensor.Tensor, mode nn.NormMode, relu bool) (*tensor.Tensor, error) {
	out, err := c.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	out, err = c.bn.Forward(out, mode)
	if err != nil {
		return nil, err
	}
	if relu {
		nn.ReLU(out)
	}
	return out, nil
}

// residual runs the main path layers in order, adds the shortcut and
// applies the final ReLU. Every layer except the last is followed by ReLU.
func residual(x *tensor.Tensor, mode nn.NormMode, path []convBN, sc Shortcut) (*tensor.Tensor, error) {
	out := x
	for i, l := range path {
		var err error
		out, err = l.forward(out, mode, i < len(path)-1)
		if err != nil {
			return nil, err
		}
	}
	skip, err := sc.Apply(x, mode)
	if err != nil {
		return nil, err
	}
	if err := nn.AddInPlace(out, skip); err != nil {
		return nil, err
	}
	return nn.ReLU(out), nil
}

// BasicBlock is conv3×3(stride) → BN → ReLU → conv3×3 → BN, plus shortcut.
type BasicBlock struct {
	inPlanes int
	planes   int
	stride   int

	conv1, conv2 convBN
	shortcut     Shortcut
}

// NewBasicBlock creates a basic block with zero-initialized convolutions.
func NewBasicBlock(inPlanes, planes, stride int) *BasicBlock {
	return &BasicBlock{
		inPlanes: inPlanes,
		planes:   planes,
		stride:   stride,
		conv1:    newConvBN(inPlanes, planes, 3, stride),
		conv2:    newConvBN(planes, planes, 3, 1),
		shortcut: newShortcut(inPlanes, planes*Basic.Expansion(), stride),
	}
}

func (b *BasicBlock) Forward(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error) {
	return residual(x, mode, []convBN{b.conv1, b.conv2}, b.shortcut)
}

func (b *BasicBlock) InPlanes() int      { return b.inPlanes }
func (b *BasicBlock) OutPlanes() int     { return b.planes * Basic.Expansion() }
func (b *BasicBlock) Stride() int        { return b.stride }
func (b *BasicBlock) Shortcut() Shortcut { return b.shortcut }

func (b *BasicBlock) params(prefix string) []nn.Param {
	var ps []nn.Param
	ps = append(ps, b.conv1.conv.Params(prefix+".conv1")...)
	ps = append(ps, b.conv1.bn.Params(prefix+".bn1")...)
	ps = append(ps, b.conv2.conv.Params(prefix+".conv2")...)
	ps = append(ps, b.conv2.bn.Params(prefix+".bn2")...)
	return append(ps, shortcutParams(b.shortcut, prefix+".shortcut")...)
}

func (b *BasicBlock) convs() []*nn.Conv2d {
	return append([]*nn.Conv2d{b.conv1.conv, b.conv2.conv}, shortcutConvs(b.shortcut)...)
}

func (b *BasicBlock) reset(rng *rand.Rand) {
	b.conv1.conv.Reset(rng)
	b.conv2.conv.Reset(rng)
	resetShortcut(b.shortcut, rng)
}

// BottleneckBlock is conv1×1 → BN → ReLU → conv3×3(stride) → BN → ReLU →
// conv1×1 (4× planes) → BN, plus shortcut.
type BottleneckBlock struct {
	inPlanes int
	planes   int
	stride   int

	conv1, conv2, conv3 convBN
	shortcut            Shortcut
}

// NewBottleneckBlock creates a bottleneck block with zero-initialized
// convolutions.
func NewBottleneckBlock(inPlanes, planes, stride int) *BottleneckBlock {
	out := planes * Bottleneck.Expansion()
	return &BottleneckBlock{
		inPlanes: inPlanes,
		planes:   planes,
		stride:   stride,
		conv1:    newConvBN(inPlanes, planes, 1, 1),
		conv2:    newConvBN(planes, planes, 3, stride),
		conv3:    newConvBN(planes, out, 1, 1),
		shortcut: newShortcut(inPlanes, out, stride),
	}
}

func (b *BottleneckBlock) Forward(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error) {
	return residual(x, mode, []convBN{b.conv1, b.conv2, b.conv3}, b.shortcut)
}

func (b *BottleneckBlock) InPlanes() int      { return b.inPlanes }
func (b *BottleneckBlock) OutPlanes() int     { return b.planes * Bottleneck.Expansion() }
func (b *BottleneckBlock) Stride() int        { return b.stride }
func (b *BottleneckBlock) Shortcut() Shortcut { return b.shortcut }

func (b *BottleneckBlock) params(prefix string) []nn.Param {
	var ps []nn.Param
	ps = append(ps, b.conv1.conv.Params(prefix+".conv1")...)
	ps = append(ps, b.conv1.bn.Params(prefix+".bn1")...)
	ps = append(ps, b.conv2.conv.Params(prefix+".conv2")...)
	ps = append(ps, b.conv2.bn.Params(prefix+".bn2")...)
	ps = append(ps, b.conv3.conv.Params(prefix+".conv3")...)
	ps = append(ps, b.conv3.bn.Params(prefix+".bn3")...)
	return append(ps, shortcutParams(b.shortcut, prefix+".shortcut")...)
}

func (b *BottleneckBlock) convs() []*nn.Conv2d {
	cs := []*nn.Conv2d{b.conv1.conv, b.conv2.conv, b.conv3.conv}
	return append(cs, shortcutConvs(b.shortcut)...)
}

func (b *BottleneckBlock) reset(rng *rand.Rand) {
	b.conv1.conv.Reset(rng)
	b.conv2.conv.Reset(rng)
	b.conv3.conv.Reset(rng)
	resetShortcut(b.shortcut, rng)
}
