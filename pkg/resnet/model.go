package resnet

import (
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/pooling"
	"github.com/haivivi/speakernet/pkg/tensor"
)

// DefaultSeed seeds parameter initialization when no seed is given.
const DefaultSeed uint64 = 1

// Output is the result of [Model.Forward].
type Output struct {
	// EmbedA is the first projection of the pooled statistics, (B, EmbedDim).
	EmbedA *tensor.Tensor

	// EmbedB is the second projection, (B, EmbedDim).
	EmbedB *tensor.Tensor

	// Penalty has one value per batch item when the aggregator produces a
	// penalty term, and is nil otherwise.
	Penalty []float32
}

// Arity returns 3 when the output carries a penalty term and 2 otherwise.
func (o *Output) Arity() int {
	if o.Penalty != nil {
		return 3
	}
	return 2
}

// Model is the complete speaker-embedding network.
type Model struct {
	cfg      Config
	backbone *Backbone
	pool     pooling.Aggregator
	head     *Head
	mode     nn.NormMode
	logger   *slog.Logger

	hasPenalty bool
	headIn     int
}

type modelOptions struct {
	pool    pooling.Aggregator
	mode    nn.NormMode
	seed    uint64
	workers int
	logger  *slog.Logger
}

// Option configures a Model.
type Option func(*modelOptions)

// WithAggregator injects the pooling stage. Its NumStats must equal the
// config's NStats. By default the aggregator named by Config.Pooling is
// built.
func WithAggregator(a pooling.Aggregator) Option {
	return func(o *modelOptions) {
		o.pool = a
	}
}

// WithNormMode selects running (default) or batch statistics for every
// normalization layer.
func WithNormMode(m nn.NormMode) Option {
	return func(o *modelOptions) {
		o.mode = m
	}
}

// WithSeed sets the seed for the deterministic parameter initialization.
func WithSeed(seed uint64) Option {
	return func(o *modelOptions) {
		o.seed = seed
	}
}

// WithParallelism bounds how many batch items a convolution processes at
// once. Zero means GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *modelOptions) {
		if n >= 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *modelOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// New builds a model from cfg. All architecture and contract checks
// happen here; Forward only validates its input.
func New(cfg Config, opts ...Option) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := modelOptions{seed: DefaultSeed, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	backbone, err := newBackbone(cfg)
	if err != nil {
		return nil, fmt.Errorf("resnet: %w", err)
	}
	c, f, _ := backbone.OutShape(cfg.FeatDim, 1)
	if c*f != cfg.PoolInDim() {
		return nil, fmt.Errorf("%w: backbone emits %d×%d rows, stats layout expects %d", ErrChannelChain, c, f, cfg.PoolInDim())
	}

	pool := o.pool
	if pool == nil {
		pool, err = pooling.New(cfg.Pooling, cfg.PoolInDim(), pooling.WithHeads(cfg.SAPHeads), pooling.WithSeed(o.seed))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if pool.NumStats() != cfg.NStats {
		return nil, fmt.Errorf("%w: aggregator emits %d stats per row, config wants %d", ErrAggregatorContract, pool.NumStats(), cfg.NStats)
	}
	if sized, ok := pool.(interface{ InDim() int }); ok && sized.InDim() != cfg.PoolInDim() {
		return nil, fmt.Errorf("%w: aggregator built for width %d, backbone emits %d", ErrAggregatorContract, sized.InDim(), cfg.PoolInDim())
	}

	m := &Model{
		cfg:        cfg,
		backbone:   backbone,
		pool:       pool,
		head:       newHead(cfg.HeadInDim(), cfg.EmbedDim),
		mode:       o.mode,
		logger:     o.logger,
		hasPenalty: pool.HasPenalty(),
		headIn:     cfg.HeadInDim(),
	}
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	m.backbone.reset(rng)
	m.head.reset(rng)
	for _, conv := range m.backbone.convs() {
		conv.Workers = o.workers
	}

	m.logger.Debug("resnet: model built",
		"block", cfg.Block,
		"num_blocks", cfg.NumBlocks,
		"m_channels", cfg.MChannels,
		"feat_dim", cfg.FeatDim,
		"stats_dim", cfg.StatsDim(),
		"head_in", m.headIn,
		"embed_dim", cfg.EmbedDim,
		"penalty", m.hasPenalty,
		"params", m.NumParams(),
	)
	return m, nil
}

// Config returns the configuration the model was built from.
func (m *Model) Config() Config { return m.cfg }

// Backbone returns the convolutional trunk.
func (m *Model) Backbone() *Backbone { return m.backbone }

// Head returns the embedding head.
func (m *Model) Head() *Head { return m.head }

// Aggregator returns the pooling stage.
func (m *Model) Aggregator() pooling.Aggregator { return m.pool }

// HasPenalty reports whether Forward outputs carry a penalty term.
func (m *Model) HasPenalty() bool { return m.hasPenalty }

// NormMode returns the normalization mode fixed at construction.
func (m *Model) NormMode() nn.NormMode { return m.mode }

// MinFrames returns the smallest input frame count Forward accepts.
func (m *Model) MinFrames() int {
	need := m.pool.MinFrames()
	for frames := 1; ; frames++ {
		if _, _, t := m.backbone.OutShape(m.cfg.FeatDim, frames); t >= need {
			return frames
		}
	}
}

// Forward computes the embeddings for x of shape (B, FeatDim, T).
func (m *Model) Forward(x *tensor.Tensor) (*Output, error) {
	if x == nil || x.Rank() != 3 {
		var shape []int
		if x != nil {
			shape = x.Shape
		}
		return nil, fmt.Errorf("%w: want (batch, %d, frames), got %v", ErrShapeMismatch, m.cfg.FeatDim, shape)
	}
	batch, feat, frames := x.Shape[0], x.Shape[1], x.Shape[2]
	if feat != m.cfg.FeatDim {
		return nil, fmt.Errorf("%w: feat_dim %d, model built for %d", ErrShapeMismatch, feat, m.cfg.FeatDim)
	}
	if batch == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	if n := batch * feat * frames; x.Len() != n {
		return nil, fmt.Errorf("%w: shape %v holds %d values, data has %d", ErrShapeMismatch, x.Shape, n, x.Len())
	}
	if _, _, t := m.backbone.OutShape(feat, frames); frames == 0 || t < m.pool.MinFrames() {
		return nil, fmt.Errorf("%w: %d frame(s) reduce to %d, aggregator needs %d", ErrTooShort, frames, t, m.pool.MinFrames())
	}

	in, err := x.Unsqueeze(1)
	if err != nil {
		return nil, fmt.Errorf("resnet: %w", err)
	}
	fmap, err := m.backbone.Forward(in, m.mode)
	if err != nil {
		return nil, fmt.Errorf("resnet: %w", err)
	}
	res, err := m.pool.Aggregate(fmap)
	if err != nil {
		return nil, fmt.Errorf("resnet: pool: %w", err)
	}
	if err := m.checkResult(res, batch); err != nil {
		return nil, err
	}
	embedA, embedB, err := m.head.Forward(res.Stats, m.mode)
	if err != nil {
		return nil, fmt.Errorf("resnet: head: %w", err)
	}

	out := &Output{EmbedA: embedA, EmbedB: embedB}
	if m.hasPenalty {
		out.Penalty = res.Penalty
	}
	return out, nil
}

func (m *Model) checkResult(res Result, batch int) error {
	if res.Stats == nil || res.Stats.CheckShape(batch, m.headIn) != nil {
		var shape []int
		if res.Stats != nil {
			shape = res.Stats.Shape
		}
		return fmt.Errorf("%w: stats shape %v, want (%d, %d)", ErrAggregatorContract, shape, batch, m.headIn)
	}
	switch {
	case m.hasPenalty && len(res.Penalty) != batch:
		return fmt.Errorf("%w: %d penalty values for batch %d", ErrAggregatorContract, len(res.Penalty), batch)
	case !m.hasPenalty && res.Penalty != nil:
		return fmt.Errorf("%w: undeclared penalty term", ErrAggregatorContract)
	}
	return nil
}

// Result is the aggregator result type, re-exported for callers that only
// import this package.
type Result = pooling.Result

// Params yields every parameter and running buffer by its qualified name,
// in a stable order. The yielded tensors are the live parameters.
func (m *Model) Params() iter.Seq2[string, *tensor.Tensor] {
	return func(yield func(string, *tensor.Tensor) bool) {
		for _, p := range m.params() {
			if !yield(p.Name, p.Value) {
				return
			}
		}
	}
}

func (m *Model) params() []nn.Param {
	ps := m.backbone.params()
	if pp, ok := m.pool.(pooling.Parameterized); ok {
		ps = append(ps, pp.Params("pool")...)
	}
	return append(ps, m.head.params()...)
}

// NumParams returns the total number of scalar values across Params.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.params() {
		n += p.Value.Len()
	}
	return n
}

// SetParam copies value into the named parameter. The shapes must match.
func (m *Model) SetParam(name string, value *tensor.Tensor) error {
	for _, p := range m.params() {
		if p.Name != name {
			continue
		}
		if value == nil {
			return fmt.Errorf("resnet: param %s: nil value: %w", name, tensor.ErrShape)
		}
		if !tensor.SameShape(p.Value, value) || value.Len() != p.Value.Len() {
			return fmt.Errorf("resnet: param %s has shape %v, got %v: %w", name, p.Value.Shape, value.Shape, tensor.ErrShape)
		}
		copy(p.Value.Data, value.Data)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownParam, name)
}
