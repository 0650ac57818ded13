// Package config loads the speakernet model file.
//
// The model file is YAML, by default ~/.speakernet/model.yaml:
//
//	name: office-r34
//	depth: 34              # fills network.block and network.num_blocks
//	network:
//	  m_channels: 32
//	  feat_dim: 80
//	  n_stats: 2
//	  embed_dim: 256
//	  pooling: tstp
//	fbank:
//	  frame_length: 400
//	  frame_shift: 160
//	  window: hamming
//	  normalize: cmn
//	embedding: a
//	seed: 1
//	segment_frames: 300
//	hop_frames: 150
//	threshold: 0.6
//	hash_bits: 16
//
// Missing keys keep their defaults. A missing file means all defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-yaml"

	"github.com/haivivi/speakernet/pkg/audio/fbank"
	"github.com/haivivi/speakernet/pkg/pooling"
	"github.com/haivivi/speakernet/pkg/resnet"
	"github.com/haivivi/speakernet/pkg/voiceprint"
)

// Model is the on-disk description of the embedding pipeline.
type Model struct {
	// Name tags enrollment records. Empty derives a tag from the network.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Depth selects a preset layout; zero keeps network.block and
	// network.num_blocks as written.
	Depth int `yaml:"depth,omitempty" json:"depth,omitempty"`

	Network resnet.Config `yaml:"network" json:"network"`
	Fbank   fbank.Config  `yaml:"fbank" json:"fbank"`

	// Embedding is "a" or "b".
	Embedding string `yaml:"embedding" json:"embedding"`

	// Seed drives weight initialization. Runs with the same seed and
	// network produce the same embeddings.
	Seed uint64 `yaml:"seed" json:"seed"`

	// Workers bounds per-item convolution parallelism; 0 is GOMAXPROCS.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`

	// SegmentFrames and HopFrames window long utterances; negative
	// segment_frames turns windowing off.
	SegmentFrames int `yaml:"segment_frames" json:"segment_frames"`
	HopFrames     int `yaml:"hop_frames" json:"hop_frames"`

	Threshold float32 `yaml:"threshold" json:"threshold"`

	// HashBits is the voice hash width; negative disables hashing.
	HashBits int `yaml:"hash_bits" json:"hash_bits"`
}

// Default returns the ResNet34 pipeline over 80-bin features.
func Default() Model {
	net := resnet.DefaultConfig()
	net.FeatDim = 80
	net.EmbedDim = 256
	return Model{
		Depth:         int(resnet.Depth34),
		Network:       net,
		Fbank:         fbank.DefaultConfig(),
		Embedding:     string(voiceprint.EmbedA),
		Seed:          1,
		SegmentFrames: 300,
		HopFrames:     150,
		Threshold:     0.6,
		HashBits:      16,
	}
}

// Load reads path over Default. A missing file is not an error.
func Load(path string) (*Model, error) {
	m := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &m, m.resolve()
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file Model
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m.merge(file)
	if err := m.resolve(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Save writes m to path, creating parent directories.
func Save(path string, m *Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// merge copies the non-zero fields of f onto m.
func (m *Model) merge(f Model) {
	if f.Name != "" {
		m.Name = f.Name
	}
	if f.Depth != 0 {
		m.Depth = f.Depth
	}
	if f.Network.Block != "" || len(f.Network.NumBlocks) > 0 {
		// An explicit layout wins over the default preset.
		m.Depth = f.Depth
		m.Network.Block = f.Network.Block
		m.Network.NumBlocks = f.Network.NumBlocks
	}
	n, fn := &m.Network, f.Network
	setInt(&n.MChannels, fn.MChannels)
	setInt(&n.FeatDim, fn.FeatDim)
	setInt(&n.NStats, fn.NStats)
	setInt(&n.EmbedDim, fn.EmbedDim)
	setInt(&n.SAPHeads, fn.SAPHeads)
	if fn.Pooling != "" {
		n.Pooling = fn.Pooling
	}

	b, fb := &m.Fbank, f.Fbank
	setInt(&b.FrameLength, fb.FrameLength)
	setInt(&b.FrameShift, fb.FrameShift)
	setInt(&b.FFTSize, fb.FFTSize)
	if fb.LowFreq != 0 {
		b.LowFreq = fb.LowFreq
	}
	if fb.HighFreq != 0 {
		b.HighFreq = fb.HighFreq
	}
	if fb.PreEmphasis != 0 {
		b.PreEmphasis = fb.PreEmphasis
	}
	if fb.Window != "" {
		b.Window = fb.Window
	}
	if fb.Normalize != "" {
		b.Normalize = fb.Normalize
	}

	if f.Embedding != "" {
		m.Embedding = f.Embedding
	}
	if f.Seed != 0 {
		m.Seed = f.Seed
	}
	setInt(&m.Workers, f.Workers)
	setInt(&m.SegmentFrames, f.SegmentFrames)
	setInt(&m.HopFrames, f.HopFrames)
	if f.Threshold != 0 {
		m.Threshold = f.Threshold
	}
	setInt(&m.HashBits, f.HashBits)
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// resolve applies the depth preset and validates the network.
func (m *Model) resolve() error {
	if m.Depth != 0 {
		d, err := resnet.ParseDepth(fmt.Sprint(m.Depth))
		if err != nil {
			return err
		}
		preset, err := d.Config(m.Network.FeatDim, m.Network.EmbedDim, m.Network.NStats)
		if err != nil {
			return err
		}
		m.Network.Block = preset.Block
		m.Network.NumBlocks = preset.NumBlocks
	}
	if m.Network.Pooling == "" {
		m.Network.Pooling = resnet.DefaultConfig().Pooling
	}
	m.Fbank.NumMels = m.Network.FeatDim
	return m.Network.Validate()
}

// Tag identifies the embedding space this config produces. Records
// enrolled under one tag are never scored against another, so every
// setting that changes the vectors is part of it: layout, widths,
// aggregator, embedding choice, seed and a digest of the front-end.
func (m *Model) Tag() string {
	if m.Name != "" {
		return m.Name
	}
	n := m.Network
	blocks := make([]string, len(n.NumBlocks))
	for i, b := range n.NumBlocks {
		blocks[i] = fmt.Sprint(b)
	}
	pool := fmt.Sprintf("%s%d", n.Pooling, n.NStats)
	if n.Pooling == pooling.KindSAP {
		pool += fmt.Sprintf("h%d", max(n.SAPHeads, 1))
	}
	return fmt.Sprintf("%s-%s-m%d-f%d-e%d-%s-%s-seed%d-fb%s",
		n.Block, strings.Join(blocks, "."), n.MChannels,
		n.FeatDim, n.EmbedDim, pool, m.Embedding, m.Seed, m.fbankDigest())
}

// fbankDigest is a short hash of the front-end settings.
func (m *Model) fbankDigest() string {
	b, err := yaml.Marshal(m.Fbank)
	if err != nil {
		b = fmt.Appendf(nil, "%+v", m.Fbank)
	}
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64(b)))
}

// Build constructs the network and wraps it with the front-end.
func (m *Model) Build(logger *slog.Logger) (*voiceprint.ResNetModel, error) {
	net, err := resnet.New(m.Network,
		resnet.WithSeed(m.Seed),
		resnet.WithParallelism(m.Workers),
		resnet.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	opts := []voiceprint.ResNetOption{
		voiceprint.WithFbankConfig(m.Fbank),
		voiceprint.WithEmbedding(voiceprint.Embedding(m.Embedding)),
		voiceprint.WithLogger(logger),
	}
	if m.SegmentFrames > 0 {
		opts = append(opts, voiceprint.WithSegments(m.SegmentFrames, m.HopFrames))
	}
	return voiceprint.NewResNetModel(net, opts...)
}

// Hasher returns the voice hasher for this model, or nil when hash_bits
// is negative.
func (m *Model) Hasher() (*voiceprint.Hasher, error) {
	if m.HashBits < 0 {
		return nil, nil
	}
	return voiceprint.NewHasher(m.Network.EmbedDim, m.HashBits, m.Seed)
}
