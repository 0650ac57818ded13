package resnet

import (
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// Head projects pooled statistics to the two embeddings.
//
//	embed_a = seg_1(stats)
//	embed_b = seg_2(bn(relu(embed_a)))
//
// The normalization has no learned scale or shift.
type Head struct {
	Seg1  *nn.Linear
	SegBN *nn.BatchNorm
	Seg2  *nn.Linear
}

func newHead(inDim, embedDim int) *Head {
	return &Head{
		Seg1:  nn.NewLinear(inDim, embedDim),
		SegBN: nn.NewBatchNorm(embedDim, false),
		Seg2:  nn.NewLinear(embedDim, embedDim),
	}
}

// Forward returns embed_a and embed_b, both (B, embedDim).
func (h *Head) Forward(stats *tensor.Tensor, mode nn.NormMode) (*tensor.Tensor, *tensor.Tensor, error) {
	embedA, err := h.Seg1.Forward(stats)
	if err != nil {
		return nil, nil, err
	}
	hidden, err := h.SegBN.Forward(nn.ReLU(embedA.Clone()), mode)
	if err != nil {
		return nil, nil, err
	}
	embedB, err := h.Seg2.Forward(hidden)
	if err != nil {
		return nil, nil, err
	}
	return embedA, embedB, nil
}

func (h *Head) params() []nn.Param {
	ps := h.Seg1.Params("seg_1")
	ps = append(ps, h.SegBN.Params("seg_bn_1")...)
	return append(ps, h.Seg2.Params("seg_2")...)
}

func (h *Head) reset(rng *rand.Rand) {
	h.Seg1.Reset(rng)
	h.Seg2.Reset(rng)
}
