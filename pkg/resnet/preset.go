package resnet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/haivivi/speakernet/pkg/pooling"
)

// Depth names a conventional ResNet depth preset.
type Depth int

const (
	Depth18  Depth = 18
	Depth34  Depth = 34
	Depth50  Depth = 50
	Depth101 Depth = 101
	Depth152 Depth = 152
)

type layout struct {
	block  BlockKind
	blocks [4]int
}

var layouts = map[Depth]layout{
	Depth18:  {Basic, [4]int{2, 2, 2, 2}},
	Depth34:  {Basic, [4]int{3, 4, 6, 3}},
	Depth50:  {Bottleneck, [4]int{3, 4, 6, 3}},
	Depth101: {Bottleneck, [4]int{3, 4, 23, 3}},
	Depth152: {Bottleneck, [4]int{3, 8, 36, 3}},
}

// Depths returns all presets in ascending order.
func Depths() []Depth {
	return []Depth{Depth18, Depth34, Depth50, Depth101, Depth152}
}

func (d Depth) String() string {
	return "resnet" + strconv.Itoa(int(d))
}

// ParseDepth accepts "34", "resnet34" or "ResNet34".
func ParseDepth(s string) (Depth, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "resnet")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown depth %q", ErrInvalidConfig, s)
	}
	d := Depth(n)
	if _, ok := layouts[d]; !ok {
		return 0, fmt.Errorf("%w: unknown depth %d", ErrInvalidConfig, n)
	}
	return d, nil
}

// Config returns the preset's configuration for the given dimensions.
// Base width is 32 channels. The aggregator follows nStats: temporal
// average for 1, statistics pooling for 2 and self-attentive pooling with
// nStats heads above that. [WithAggregator] still overrides it.
func (d Depth) Config(featDim, embedDim, nStats int) (Config, error) {
	l, ok := layouts[d]
	if !ok {
		return Config{}, fmt.Errorf("%w: unknown depth %d", ErrInvalidConfig, int(d))
	}
	cfg := DefaultConfig()
	cfg.Block = l.block
	cfg.NumBlocks = append([]int(nil), l.blocks[:]...)
	cfg.FeatDim = featDim
	cfg.EmbedDim = embedDim
	cfg.NStats = nStats
	switch {
	case nStats == 1:
		cfg.Pooling = pooling.KindTAP
	case nStats > 2:
		cfg.Pooling = pooling.KindSAP
		cfg.SAPHeads = nStats
	}
	return cfg, cfg.Validate()
}

// Build constructs the preset model.
func (d Depth) Build(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	cfg, err := d.Config(featDim, embedDim, nStats)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// ResNet18 builds the 18-layer preset (Basic, [2, 2, 2, 2]).
func ResNet18(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	return Depth18.Build(featDim, embedDim, nStats, opts...)
}

// ResNet34 builds the 34-layer preset (Basic, [3, 4, 6, 3]).
func ResNet34(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	return Depth34.Build(featDim, embedDim, nStats, opts...)
}

// ResNet50 builds the 50-layer preset (Bottleneck, [3, 4, 6, 3]).
func ResNet50(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	return Depth50.Build(featDim, embedDim, nStats, opts...)
}

// ResNet101 builds the 101-layer preset (Bottleneck, [3, 4, 23, 3]).
func ResNet101(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	return Depth101.Build(featDim, embedDim, nStats, opts...)
}

// ResNet152 builds the 152-layer preset (Bottleneck, [3, 8, 36, 3]).
func ResNet152(featDim, embedDim, nStats int, opts ...Option) (*Model, error) {
	return Depth152.Build(featDim, embedDim, nStats, opts...)
}
