package resnet

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/haivivi/speakernet/pkg/nn"
	"github.com/haivivi/speakernet/pkg/pooling"
	"github.com/haivivi/speakernet/pkg/tensor"
)

func features(seed uint64, batch, feat, frames int) *tensor.Tensor {
	rng := rand.New(rand.NewPCG(seed, 7))
	x := tensor.Zeros(batch, feat, frames)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

// smallConfig is a cheap configuration for exercising the full pipeline.
func smallConfig(d Depth, featDim, embedDim, nStats int) Config {
	cfg, err := d.Config(featDim, embedDim, nStats)
	if err != nil {
		panic(err)
	}
	cfg.MChannels = 4
	return cfg
}

func TestPresetOutputShapes(t *testing.T) {
	for _, d := range Depths() {
		t.Run(d.String(), func(t *testing.T) {
			cfg := smallConfig(d, 16, 24, 2)
			m, err := New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			out, err := m.Forward(features(1, 3, 16, 20))
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			if err := out.EmbedA.CheckShape(3, 24); err != nil {
				t.Errorf("embed_a: %v", err)
			}
			if err := out.EmbedB.CheckShape(3, 24); err != nil {
				t.Errorf("embed_b: %v", err)
			}
			if out.Arity() != 2 || out.Penalty != nil {
				t.Errorf("arity = %d, want 2", out.Arity())
			}
		})
	}
}

func TestPresetPoolingFollowsNStats(t *testing.T) {
	for _, nStats := range []int{1, 2, 3} {
		m, err := New(smallConfig(Depth18, 16, 8, nStats))
		if err != nil {
			t.Fatalf("n_stats %d: New: %v", nStats, err)
		}
		out, err := m.Forward(features(4, 2, 16, 20))
		if err != nil {
			t.Fatalf("n_stats %d: Forward: %v", nStats, err)
		}
		if err := out.EmbedB.CheckShape(2, 8); err != nil {
			t.Errorf("n_stats %d: %v", nStats, err)
		}
		wantArity := 2
		if nStats > 2 {
			wantArity = 3
		}
		if out.Arity() != wantArity {
			t.Errorf("n_stats %d: arity = %d, want %d", nStats, out.Arity(), wantArity)
		}
	}
}

func TestStatsDimMatchesHeadInput(t *testing.T) {
	for _, d := range Depths() {
		for _, featDim := range []int{16, 40, 80} {
			cfg := smallConfig(d, featDim, 8, 2)
			m, err := New(cfg)
			if err != nil {
				t.Fatal(err)
			}
			want := (featDim / 8) * cfg.MChannels * 8
			if cfg.StatsDim() != want {
				t.Errorf("%s feat=%d: StatsDim = %d, want %d", d, featDim, cfg.StatsDim(), want)
			}
			c, f, _ := m.Backbone().OutShape(featDim, 100)
			if c*f*cfg.NStats != m.Head().Seg1.In {
				t.Errorf("%s feat=%d: flattened %d×%d×%d != head input %d", d, featDim, c, f, cfg.NStats, m.Head().Seg1.In)
			}
			if m.Head().Seg1.In != cfg.StatsDim()*cfg.NStats*cfg.Block.Expansion() {
				t.Errorf("%s: head input %d", d, m.Head().Seg1.In)
			}
		}
	}
}

func TestResNet34Scenario(t *testing.T) {
	if testing.Short() {
		t.Skip("full-width ResNet34 forward is slow")
	}
	m, err := ResNet34(40, 256, 1, WithAggregator(pooling.NewTAP()))
	if err != nil {
		t.Fatalf("ResNet34: %v", err)
	}
	out, err := m.Forward(features(3, 10, 40, 200))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := out.EmbedA.CheckShape(10, 256); err != nil {
		t.Error(err)
	}
	if err := out.EmbedB.CheckShape(10, 256); err != nil {
		t.Error(err)
	}
	t.Logf("params = %d", m.NumParams())
}

func TestResNet34ScenarioNarrow(t *testing.T) {
	cfg := smallConfig(Depth34, 40, 256, 1)
	m, err := New(cfg, WithAggregator(pooling.NewTAP()))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(features(3, 10, 40, 200))
	if err != nil {
		t.Fatal(err)
	}
	if err := out.EmbedA.CheckShape(10, 256); err != nil {
		t.Error(err)
	}
	if err := out.EmbedB.CheckShape(10, 256); err != nil {
		t.Error(err)
	}
}

func TestAttentionAggregatorAddsPenalty(t *testing.T) {
	cfg := smallConfig(Depth18, 16, 12, 1)
	cfg.Pooling = pooling.KindSAP
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !m.HasPenalty() {
		t.Fatal("SAP model should declare a penalty")
	}
	out, err := m.Forward(features(4, 5, 16, 30))
	if err != nil {
		t.Fatal(err)
	}
	if out.Arity() != 3 {
		t.Errorf("arity = %d, want 3", out.Arity())
	}
	if len(out.Penalty) != 5 {
		t.Errorf("penalty len = %d, want 5", len(out.Penalty))
	}

	cfg.Pooling = pooling.KindTAP
	plain, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	out, err = plain.Forward(features(4, 5, 16, 30))
	if err != nil {
		t.Fatal(err)
	}
	if out.Arity() != 2 {
		t.Errorf("tap arity = %d, want 2", out.Arity())
	}
}

func TestInjectedSAPWithTwoHeads(t *testing.T) {
	cfg := smallConfig(Depth18, 16, 12, 2)
	sap, err := pooling.NewSAP(cfg.PoolInDim(), 2, 9)
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(cfg, WithAggregator(sap))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(features(5, 2, 16, 12))
	if err != nil {
		t.Fatal(err)
	}
	if out.Arity() != 3 || len(out.Penalty) != 2 {
		t.Errorf("arity = %d, penalty = %v", out.Arity(), out.Penalty)
	}
}

func TestForwardIsDeterministic(t *testing.T) {
	for _, mode := range []nn.NormMode{nn.NormEval, nn.NormBatch} {
		m, err := New(smallConfig(Depth18, 16, 8, 2), WithNormMode(mode), WithSeed(11))
		if err != nil {
			t.Fatal(err)
		}
		x := features(6, 4, 16, 24)
		first, err := m.Forward(x)
		if err != nil {
			t.Fatal(err)
		}
		second, err := m.Forward(x)
		if err != nil {
			t.Fatal(err)
		}
		if !tensor.Equal(first.EmbedA, second.EmbedA) || !tensor.Equal(first.EmbedB, second.EmbedB) {
			t.Errorf("mode %s: repeated forward differs", mode)
		}
	}
}

func TestSameSeedSameModel(t *testing.T) {
	x := features(8, 2, 16, 18)
	a, _ := New(smallConfig(Depth18, 16, 8, 2), WithSeed(3), WithParallelism(1))
	b, _ := New(smallConfig(Depth18, 16, 8, 2), WithSeed(3), WithParallelism(4))
	oa, err := a.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	ob, err := b.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.Equal(oa.EmbedB, ob.EmbedB) {
		t.Error("same seed with different parallelism should give identical output")
	}
}

func TestFrameCountDoesNotChangeShape(t *testing.T) {
	m, err := New(smallConfig(Depth34, 40, 32, 2))
	if err != nil {
		t.Fatal(err)
	}
	for _, frames := range []int{200, 150} {
		out, err := m.Forward(features(9, 2, 40, frames))
		if err != nil {
			t.Fatalf("frames=%d: %v", frames, err)
		}
		if err := out.EmbedA.CheckShape(2, 32); err != nil {
			t.Errorf("frames=%d: %v", frames, err)
		}
		if err := out.EmbedB.CheckShape(2, 32); err != nil {
			t.Errorf("frames=%d: %v", frames, err)
		}
	}
}

func TestEmbedAIsNotRectified(t *testing.T) {
	m, err := New(smallConfig(Depth18, 16, 64, 2), WithSeed(5))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.Forward(features(10, 3, 16, 20))
	if err != nil {
		t.Fatal(err)
	}
	negative := false
	for _, v := range out.EmbedA.Data {
		if v < 0 {
			negative = true
			break
		}
	}
	if !negative {
		t.Error("embed_a should be taken before the ReLU; expected some negative values")
	}
}

func TestForwardInputErrors(t *testing.T) {
	m, err := New(smallConfig(Depth18, 16, 8, 2))
	if err != nil {
		t.Fatal(err)
	}
	if got := m.MinFrames(); got != 9 {
		t.Errorf("MinFrames = %d, want 9", got)
	}
	tests := []struct {
		name string
		x    *tensor.Tensor
		want error
	}{
		{"nil", nil, ErrShapeMismatch},
		{"rank 2", tensor.Zeros(16, 20), ErrShapeMismatch},
		{"feat_dim", tensor.Zeros(2, 24, 20), ErrShapeMismatch},
		{"empty batch", tensor.Zeros(0, 16, 20), ErrShapeMismatch},
		{"zero frames", tensor.Zeros(2, 16, 0), ErrTooShort},
		{"8 frames", tensor.Zeros(2, 16, 8), ErrTooShort},
		{"short data", &tensor.Tensor{Shape: []int{2, 16, 20}, Data: make([]float32, 16*20)}, ErrShapeMismatch},
	}
	for _, tt := range tests {
		if _, err := m.Forward(tt.x); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := m.Forward(tensor.Zeros(2, 16, 9)); err != nil {
		t.Errorf("9 frames: %v", err)
	}
}

func TestBatchModeSingleItemFails(t *testing.T) {
	m, err := New(smallConfig(Depth18, 16, 8, 2), WithNormMode(nn.NormBatch))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Forward(features(1, 1, 16, 20)); !errors.Is(err, nn.ErrBatchStats) {
		t.Errorf("err = %v, want ErrBatchStats", err)
	}
}

// fakeAggregator returns a configurable, possibly contract-breaking result.
type fakeAggregator struct {
	stats       int
	width       int
	declare     bool
	emitPenalty int
}

func (f fakeAggregator) NumStats() int    { return f.stats }
func (f fakeAggregator) HasPenalty() bool { return f.declare }
func (f fakeAggregator) MinFrames() int   { return 1 }

func (f fakeAggregator) Aggregate(x *tensor.Tensor) (pooling.Result, error) {
	res := pooling.Result{Stats: tensor.Zeros(x.Shape[0], f.width)}
	if f.emitPenalty > 0 {
		res.Penalty = make([]float32, f.emitPenalty)
	}
	return res, nil
}

func TestAggregatorContract(t *testing.T) {
	cfg := smallConfig(Depth18, 16, 8, 2)
	head := cfg.HeadInDim()

	if _, err := New(cfg, WithAggregator(pooling.NewTAP())); !errors.Is(err, ErrAggregatorContract) {
		t.Errorf("n_stats mismatch err = %v, want ErrAggregatorContract", err)
	}
	sap, _ := pooling.NewSAP(7, 2, 1)
	if _, err := New(cfg, WithAggregator(sap)); !errors.Is(err, ErrAggregatorContract) {
		t.Errorf("sap width mismatch err = %v, want ErrAggregatorContract", err)
	}

	tests := []struct {
		name string
		agg  fakeAggregator
		ok   bool
	}{
		{"conforming", fakeAggregator{stats: 2, width: head}, true},
		{"wrong width", fakeAggregator{stats: 2, width: head + 1}, false},
		{"undeclared penalty", fakeAggregator{stats: 2, width: head, emitPenalty: 2}, false},
		{"missing penalty", fakeAggregator{stats: 2, width: head, declare: true}, false},
		{"declared penalty", fakeAggregator{stats: 2, width: head, declare: true, emitPenalty: 2}, true},
	}
	for _, tt := range tests {
		m, err := New(cfg, WithAggregator(tt.agg))
		if err != nil {
			t.Fatalf("%s: New: %v", tt.name, err)
		}
		_, err = m.Forward(features(2, 2, 16, 12))
		if tt.ok && err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrAggregatorContract) {
			t.Errorf("%s: err = %v, want ErrAggregatorContract", tt.name, err)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"feat not multiple of 8", func(c *Config) { c.FeatDim = 41 }},
		{"zero feat", func(c *Config) { c.FeatDim = 0 }},
		{"three stages", func(c *Config) { c.NumBlocks = []int{1, 1, 1} }},
		{"empty stage", func(c *Config) { c.NumBlocks = []int{1, 0, 1, 1} }},
		{"block", func(c *Config) { c.Block = "dense" }},
		{"channels", func(c *Config) { c.MChannels = 0 }},
		{"embed", func(c *Config) { c.EmbedDim = -1 }},
		{"n_stats", func(c *Config) { c.NStats = 0 }},
		{"pooling", func(c *Config) { c.Pooling = "max" }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tt.name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
}

func TestPresetLayouts(t *testing.T) {
	tests := []struct {
		depth  Depth
		block  BlockKind
		blocks []int
	}{
		{Depth18, Basic, []int{2, 2, 2, 2}},
		{Depth34, Basic, []int{3, 4, 6, 3}},
		{Depth50, Bottleneck, []int{3, 4, 6, 3}},
		{Depth101, Bottleneck, []int{3, 4, 23, 3}},
		{Depth152, Bottleneck, []int{3, 8, 36, 3}},
	}
	for _, tt := range tests {
		cfg, err := tt.depth.Config(80, 192, 2)
		if err != nil {
			t.Fatalf("%s: %v", tt.depth, err)
		}
		if cfg.Block != tt.block || cfg.FeatDim != 80 || cfg.EmbedDim != 192 || cfg.NStats != 2 {
			t.Errorf("%s: %+v", tt.depth, cfg)
		}
		for i, n := range tt.blocks {
			if cfg.NumBlocks[i] != n {
				t.Errorf("%s: num_blocks = %v, want %v", tt.depth, cfg.NumBlocks, tt.blocks)
				break
			}
		}
	}

	poolings := []struct {
		nStats int
		kind   pooling.Kind
		heads  int
	}{
		{1, pooling.KindTAP, 0},
		{2, pooling.KindTSTP, 0},
		{3, pooling.KindSAP, 3},
	}
	for _, tt := range poolings {
		cfg, err := Depth34.Config(40, 128, tt.nStats)
		if err != nil {
			t.Fatalf("n_stats %d: %v", tt.nStats, err)
		}
		if cfg.Pooling != tt.kind || cfg.SAPHeads != tt.heads {
			t.Errorf("n_stats %d: pooling %s heads %d, want %s heads %d", tt.nStats, cfg.Pooling, cfg.SAPHeads, tt.kind, tt.heads)
		}
	}

	for _, s := range []string{"34", "resnet152", " ResNet50 "} {
		if _, err := ParseDepth(s); err != nil {
			t.Errorf("ParseDepth(%q): %v", s, err)
		}
	}
	if _, err := ParseDepth("resnet20"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ParseDepth(resnet20) err = %v", err)
	}
}

func TestParamsNaming(t *testing.T) {
	m, err := New(smallConfig(Depth18, 16, 8, 2))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]*tensor.Tensor{}
	total := 0
	for name, p := range m.Params() {
		if _, dup := names[name]; dup {
			t.Errorf("duplicate param %s", name)
		}
		names[name] = p
		total += p.Len()
	}
	if total != m.NumParams() {
		t.Errorf("NumParams = %d, sum = %d", m.NumParams(), total)
	}
	for _, want := range []string{
		"conv1.weight", "bn1.running_var",
		"layer1.0.conv1.weight", "layer1.1.bn2.bias",
		"layer2.0.shortcut.0.weight", "layer2.0.shortcut.1.running_mean",
		"seg_1.weight", "seg_bn_1.running_mean", "seg_2.bias",
	} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing param %s", want)
		}
	}
	for name := range names {
		if strings.HasPrefix(name, "layer1.") && strings.Contains(name, "shortcut") {
			t.Errorf("layer1 blocks keep width and stride, unexpected %s", name)
		}
		if name == "seg_bn_1.weight" {
			t.Error("seg_bn_1 must not have learned scale")
		}
	}
	if got := names["layer2.0.shortcut.0.weight"]; got.CheckShape(8, 4, 1, 1) != nil {
		t.Errorf("layer2 projection shape = %v", got.Shape)
	}
}

func TestSetParam(t *testing.T) {
	m, err := New(smallConfig(Depth18, 16, 8, 2))
	if err != nil {
		t.Fatal(err)
	}
	x := features(12, 2, 16, 16)
	before, err := m.Forward(x)
	if err != nil {
		t.Fatal(err)
	}

	bias := tensor.Full(0.5, 8)
	if err := m.SetParam("seg_2.bias", bias); err != nil {
		t.Fatal(err)
	}
	after, err := m.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if !tensor.Equal(before.EmbedA, after.EmbedA) {
		t.Error("changing seg_2 must not affect embed_a")
	}
	if tensor.Equal(before.EmbedB, after.EmbedB) {
		t.Error("changing seg_2.bias should change embed_b")
	}
	bias.Data[0] = 9
	for name, p := range m.Params() {
		if name == "seg_2.bias" && p.Data[0] != 0.5 {
			t.Error("SetParam must copy, not alias")
		}
	}

	if err := m.SetParam("seg_2.bias", tensor.Zeros(7)); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("shape err = %v, want ErrShape", err)
	}
	if err := m.SetParam("seg_2.bias", nil); !errors.Is(err, tensor.ErrShape) {
		t.Errorf("nil err = %v, want ErrShape", err)
	}
	if err := m.SetParam("fc.weight", tensor.Zeros(1)); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("unknown err = %v, want ErrUnknownParam", err)
	}
}
