package resnet

import (
	"fmt"
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// stageStrides is the downsampling schedule of layer1..layer4.
var stageStrides = [4]int{1, 2, 2, 2}

// Backbone is the stem followed by four stages.
type Backbone struct {
	Conv1  *nn.Conv2d
	BN1    *nn.BatchNorm
	Stages [4]*Stage

	kind      BlockKind
	mChannels int
}

// newBackbone builds the stem and stages. The channel count is folded
// through the stage builders; each stage boundary is checked.
func newBackbone(cfg Config) (*Backbone, error) {
	b := &Backbone{
		Conv1:     nn.NewConv2d(1, cfg.MChannels, 3, nn.WithPadding(1)),
		BN1:       nn.NewBatchNorm(cfg.MChannels, true),
		kind:      cfg.Block,
		mChannels: cfg.MChannels,
	}
	inPlanes := cfg.MChannels
	for i := range b.Stages {
		planes := cfg.MChannels << i
		stage, next, err := buildStage(cfg.Block, inPlanes, planes, cfg.NumBlocks[i], stageStrides[i])
		if err != nil {
			return nil, fmt.Errorf("layer%d: %w", i+1, err)
		}
		if err := stage.checkChain(inPlanes); err != nil {
			return nil, fmt.Errorf("layer%d: %w", i+1, err)
		}
		b.Stages[i] = stage
		inPlanes = next
	}
	return b, nil
}

// OutPlanes returns the channel count of the final feature map.
func (b *Backbone) OutPlanes() int { return b.Stages[3].OutPlanes() }

// OutShape returns the (channels, frequency, time) extent of the final
// feature map for an input of freq×frames.
func (b *Backbone) OutShape(freq, frames int) (int, int, int) {
	for _, s := range b.Stages {
		freq = downsample(freq, s.Stride())
		frames = downsample(frames, s.Stride())
	}
	return b.OutPlanes(), freq, frames
}

// downsample is the output extent of a 3×3, padding 1 convolution.
func downsample(n, stride int) int {
	return (n-1)/stride + 1
}

// Forward maps (B, 1, F, T) to (B, C, F', T').
func (b *Backbone) Forward(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error) {
	out, err := b.Conv1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	if out, err = b.BN1.Forward(out, mode); err != nil {
		return nil, fmt.Errorf("stem: %w", err)
	}
	nn.ReLU(out)
	for i, s := range b.Stages {
		if out, err = s.Forward(out, mode); err != nil {
			return nil, fmt.Errorf("layer%d: %w", i+1, err)
		}
	}
	return out, nil
}

func (b *Backbone) params() []nn.Param {
	ps := b.Conv1.Params("conv1")
	ps = append(ps, b.BN1.Params("bn1")...)
	for i, s := range b.Stages {
		for j, blk := range s.Blocks {
			ps = append(ps, blk.params(fmt.Sprintf("layer%d.%d", i+1, j))...)
		}
	}
	return ps
}

func (b *Backbone) convs() []*nn.Conv2d {
	cs := []*nn.Conv2d{b.Conv1}
	for _, s := range b.Stages {
		for _, blk := range s.Blocks {
			cs = append(cs, blk.convs()...)
		}
	}
	return cs
}

func (b *Backbone) reset(rng *rand.Rand) {
	b.Conv1.Reset(rng)
	for _, s := range b.Stages {
		for _, blk := range s.Blocks {
			blk.reset(rng)
		}
	}
}
