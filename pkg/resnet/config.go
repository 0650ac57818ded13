package resnet

import (
	"fmt"

	"github.com/haivivi/speakernet/pkg/pooling"
)

// BlockKind selects the residual block variant.
type BlockKind string

const (
	// Basic is two 3×3 convolutions, expansion 1.
	Basic BlockKind = "basic"
	// Bottleneck is 1×1 → 3×3 → 1×1 convolutions, expansion 4.
	Bottleneck BlockKind = "bottleneck"
)

// IsValid reports whether k names a known block variant.
func (k BlockKind) IsValid() bool {
	return k == Basic || k == Bottleneck
}

// Expansion returns the ratio of a block's output channels to its planes.
func (k BlockKind) Expansion() int {
	if k == Bottleneck {
		return 4
	}
	return 1
}

// Config holds the construction parameters of a [Model].
type Config struct {
	// Block is the residual block variant.
	Block BlockKind `yaml:"block" json:"block"`

	// NumBlocks is the number of blocks in each of the four stages.
	NumBlocks []int `yaml:"num_blocks" json:"num_blocks"`

	// MChannels is the stem width; stages use 1×, 2×, 4×, 8× of it.
	MChannels int `yaml:"m_channels" json:"m_channels"`

	// FeatDim is the number of frequency bins per input frame.
	FeatDim int `yaml:"feat_dim" json:"feat_dim"`

	// NStats is the number of statistics the aggregator emits per row.
	NStats int `yaml:"n_stats" json:"n_stats"`

	// EmbedDim is the length of embed_a and embed_b.
	EmbedDim int `yaml:"embed_dim" json:"embed_dim"`

	// Pooling selects the built-in aggregator used when none is injected.
	Pooling pooling.Kind `yaml:"pooling" json:"pooling"`

	// SAPHeads is the number of attention heads for Pooling "sap".
	SAPHeads int `yaml:"sap_heads,omitempty" json:"sap_heads,omitempty"`
}

// DefaultConfig returns the ResNet34 layout with 40-bin features,
// 32 base channels, statistics pooling and 128-dim embeddings.
func DefaultConfig() Config {
	return Config{
		Block:     Basic,
		NumBlocks: []int{3, 4, 6, 3},
		MChannels: 32,
		FeatDim:   40,
		NStats:    2,
		EmbedDim:  128,
		Pooling:   pooling.KindTSTP,
	}
}

// Validate checks the config for values the network cannot be built from.
func (c Config) Validate() error {
	if !c.Block.IsValid() {
		return fmt.Errorf("%w: unknown block %q", ErrInvalidConfig, c.Block)
	}
	if len(c.NumBlocks) != 4 {
		return fmt.Errorf("%w: num_blocks needs 4 entries, got %d", ErrInvalidConfig, len(c.NumBlocks))
	}
	for i, n := range c.NumBlocks {
		if n < 1 {
			return fmt.Errorf("%w: stage %d has %d blocks", ErrInvalidConfig, i+1, n)
		}
	}
	switch {
	case c.MChannels <= 0:
		return fmt.Errorf("%w: m_channels must be positive, got %d", ErrInvalidConfig, c.MChannels)
	case c.EmbedDim <= 0:
		return fmt.Errorf("%w: embed_dim must be positive, got %d", ErrInvalidConfig, c.EmbedDim)
	case c.NStats <= 0:
		return fmt.Errorf("%w: n_stats must be positive, got %d", ErrInvalidConfig, c.NStats)
	case c.FeatDim <= 0 || c.FeatDim%8 != 0:
		// Three stride-2 reductions round up, so only multiples of 8 land
		// exactly on feat_dim/8 frequency rows.
		return fmt.Errorf("%w: feat_dim must be a positive multiple of 8, got %d", ErrInvalidConfig, c.FeatDim)
	case c.SAPHeads < 0:
		return fmt.Errorf("%w: sap_heads must not be negative, got %d", ErrInvalidConfig, c.SAPHeads)
	}
	if c.Pooling != "" {
		if _, err := pooling.ParseKind(string(c.Pooling)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// StatsDim returns floor(feat_dim/8) · m_channels · 8, the width of one
// aggregator statistic for Basic blocks.
func (c Config) StatsDim() int {
	return (c.FeatDim / 8) * c.MChannels * 8
}

// PoolInDim returns the flattened channel·frequency width of the final
// feature map, i.e. the row count the aggregator sees.
func (c Config) PoolInDim() int {
	return c.StatsDim() * c.Block.Expansion()
}

// HeadInDim returns the input width of the first embedding layer.
func (c Config) HeadInDim() int {
	return c.StatsDim() * c.NStats * c.Block.Expansion()
}

// withDefaults fills zero-valued optional fields.
func (c Config) withDefaults() Config {
	if c.Pooling == "" {
		c.Pooling = pooling.KindTSTP
	}
	if c.SAPHeads == 0 {
		c.SAPHeads = 1
	}
	return c
}
