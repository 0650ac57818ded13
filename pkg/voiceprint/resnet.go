package voiceprint

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/speakernet/pkg/audio/fbank"
	"github.com/haivivi/speakernet/pkg/audio/pcm"
	"github.com/haivivi/speakernet/pkg/audio/resampler"
	"github.com/haivivi/speakernet/pkg/resnet"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// Embedding selects which head output a ResNetModel returns.
type Embedding string

const (
	// EmbedA is the first projection, the usual speaker embedding.
	EmbedA Embedding = "a"
	// EmbedB is the second projection after ReLU and normalization.
	EmbedB Embedding = "b"
)

// ResNetModel implements [Model] with the fbank front-end and a
// [resnet.Model].
//
// # Thread Safety
//
// ResNetModel is safe for concurrent use; the network is read-only during
// Extract.
type ResNetModel struct {
	mu     sync.RWMutex
	net    *resnet.Model
	front  *fbank.Extractor
	output Embedding
	closed bool
	logger *slog.Logger

	fbankCfg fbank.Config
	segment  int // frames; 0 disables segmentation
	hop      int
}

// ResNetOption configures a ResNetModel.
type ResNetOption func(*ResNetModel)

// WithFbankConfig sets the front-end configuration. NumMels is forced to
// the network's feature dimension.
func WithFbankConfig(cfg fbank.Config) ResNetOption {
	return func(m *ResNetModel) {
		m.fbankCfg = cfg
	}
}

// WithEmbedding selects embed_a (default) or embed_b as the output.
func WithEmbedding(e Embedding) ResNetOption {
	return func(m *ResNetModel) {
		m.output = e
	}
}

// WithSegments splits utterances longer than segment frames into windows
// advancing by hop frames, runs them as one batch and returns the
// normalized mean of the per-window embeddings. The final window is
// aligned to the end of the utterance.
func WithSegments(segment, hop int) ResNetOption {
	return func(m *ResNetModel) {
		m.segment, m.hop = segment, hop
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ResNetOption {
	return func(m *ResNetModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewResNetModel wraps net with a filterbank front-end matching its
// feature dimension.
func NewResNetModel(net *resnet.Model, opts ...ResNetOption) (*ResNetModel, error) {
	m := &ResNetModel{
		net:      net,
		output:   EmbedA,
		logger:   slog.Default(),
		fbankCfg: fbank.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.output != EmbedA && m.output != EmbedB {
		return nil, fmt.Errorf("voiceprint: unknown embedding %q", m.output)
	}
	if m.segment > 0 && (m.hop <= 0 || m.segment < net.MinFrames()) {
		return nil, fmt.Errorf("voiceprint: segment %d / hop %d frames, minimum segment is %d", m.segment, m.hop, net.MinFrames())
	}
	m.fbankCfg.NumMels = net.Config().FeatDim
	m.fbankCfg.SampleRate = pcm.Mono16K.SampleRate
	front, err := fbank.New(m.fbankCfg)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: %w", err)
	}
	m.front = front
	return m, nil
}

// Network returns the wrapped network.
func (m *ResNetModel) Network() *resnet.Model { return m.net }

// MinSamples returns the shortest input, in 16 kHz samples, Extract accepts.
func (m *ResNetModel) MinSamples() int {
	return (m.net.MinFrames()-1)*m.fbankCfg.FrameShift + m.fbankCfg.FrameLength
}

// Extract implements [Model].
func (m *ResNetModel) Extract(audio []byte) ([]float32, error) {
	return m.ExtractSamples(fbank.BytesToInt16(audio))
}

// ExtractClip resamples c to 16 kHz mono if needed and extracts its
// embedding.
func (m *ResNetModel) ExtractClip(c *pcm.Clip) ([]float32, error) {
	c, err := resampler.ToMono16K(c)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: %w", err)
	}
	return m.ExtractSamples(c.Samples)
}

// ExtractSamples is Extract for decoded 16 kHz mono samples.
func (m *ResNetModel) ExtractSamples(samples []int16) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if need := m.MinSamples(); len(samples) < need {
		return nil, fmt.Errorf("voiceprint: %d samples, need at least %d: %w", len(samples), need, resnet.ErrTooShort)
	}

	x, err := m.front.FeaturesInt16(samples)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: features: %w", err)
	}
	starts := m.windows(x.Dim(2))
	if len(starts) > 1 {
		x = stackWindows(x, starts, m.segment)
	}
	out, err := m.net.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("voiceprint: forward: %w", err)
	}
	emb := out.EmbedA
	if m.output == EmbedB {
		emb = out.EmbedB
	}
	m.logger.Debug("voiceprint: extracted", "samples", len(samples), "frames", x.Dim(2), "windows", len(starts), "dim", emb.Dim(1))
	if len(starts) == 1 {
		return append([]float32(nil), emb.Row(0)...), nil
	}
	rows := make([][]float32, len(starts))
	for i := range rows {
		rows[i] = emb.Row(i)
	}
	return Centroid(rows...)
}

// windows returns the start frames of the analysis windows for an
// utterance of n frames: a single window at 0 unless segmentation applies.
func (m *ResNetModel) windows(n int) []int {
	if m.segment <= 0 || n <= m.segment {
		return []int{0}
	}
	var starts []int
	for s := 0; s+m.segment <= n; s += m.hop {
		starts = append(starts, s)
	}
	if last := n - m.segment; last > starts[len(starts)-1] {
		starts = append(starts, last)
	}
	return starts
}

// stackWindows cuts (1, mels, frames) into a (len(starts), mels, size) batch.
func stackWindows(x *tensor.Tensor, starts []int, size int) *tensor.Tensor {
	mels, frames := x.Dim(1), x.Dim(2)
	out := tensor.Zeros(len(starts), mels, size)
	for b, s := range starts {
		dst := out.Row(b)
		for m := range mels {
			copy(dst[m*size:(m+1)*size], x.Data[m*frames+s:m*frames+s+size])
		}
	}
	return out
}

// Dimension implements [Model].
func (m *ResNetModel) Dimension() int {
	return m.net.Config().EmbedDim
}

// Close implements [Model].
func (m *ResNetModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Model = (*ResNetModel)(nil)
