package resnet

import (
	"fmt"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// Stage is a sequence of residual blocks sharing one output width. Only
// the first block may downsample or change the channel count.
type Stage struct {
	Blocks []Block
}

// buildStage creates count blocks of kind, the first with the given stride
// and all others with stride 1. It returns the stage and the channel count
// the next stage must accept.
func buildStage(kind BlockKind, inPlanes, planes, count, stride int) (*Stage, int, error) {
	if count < 1 {
		return nil, 0, fmt.Errorf("%w: stage needs at least one block, got %d", ErrInvalidConfig, count)
	}
	s := &Stage{Blocks: make([]Block, 0, count)}
	for i := range count {
		st := 1
		if i == 0 {
			st = stride
		}
		b, err := newBlock(kind, inPlanes, planes, st)
		if err != nil {
			return nil, 0, err
		}
		s.Blocks = append(s.Blocks, b)
		inPlanes = b.OutPlanes()
	}
	return s, inPlanes, nil
}

// InPlanes returns the channel count the stage accepts.
func (s *Stage) InPlanes() int { return s.Blocks[0].InPlanes() }

// OutPlanes returns the channel count the stage produces.
func (s *Stage) OutPlanes() int { return s.Blocks[len(s.Blocks)-1].OutPlanes() }

// Stride returns the downsampling factor of the stage.
func (s *Stage) Stride() int { return s.Blocks[0].Stride() }

// Forward runs the blocks in order.
func (s *Stage) Forward(x *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, error) {
	out := x
	for _, b := range s.Blocks {
		var err error
		if out, err = b.Forward(out, mode); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// checkChain verifies that every block accepts what its predecessor emits.
func (s *Stage) checkChain(inPlanes int) error {
	for i, b := range s.Blocks {
		if b.InPlanes() != inPlanes {
			return fmt.Errorf("%w: block %d expects %d channels, previous emits %d", ErrChannelChain, i, b.InPlanes(), inPlanes)
		}
		inPlanes = b.OutPlanes()
	}
	return nil
}
