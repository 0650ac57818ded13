package voiceprint

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/haivivi/speakernet/pkg/audio/pcm"
	"github.com/haivivi/speakernet/pkg/resnet"
)

func testNet(t *testing.T) *resnet.Model {
	t.Helper()
	cfg, err := resnet.Depth18.Config(24, 16, 2)
	if err != nil {
		t.Fatal(err)
	}
	cfg.MChannels = 4
	net, err := resnet.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func speech(seed uint64, n int) []int16 {
	rng := rand.New(rand.NewPCG(seed, 2))
	out := make([]int16, n)
	for i := range out {
		v := 3000*math.Sin(2*math.Pi*float64(150+seed*40)*float64(i)/16000) + 500*rng.NormFloat64()
		out[i] = int16(v)
	}
	return out
}

func TestResNetModelExtract(t *testing.T) {
	m, err := NewResNetModel(testNet(t))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if m.Dimension() != 16 {
		t.Errorf("Dimension = %d", m.Dimension())
	}

	clip := &pcm.Clip{Format: pcm.Mono16K, Samples: speech(1, 8000)}
	a, err := m.Extract(clip.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 16 {
		t.Fatalf("embedding len = %d", len(a))
	}
	b, err := m.ExtractSamples(clip.Samples)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Extract and ExtractSamples differ at %d", i)
		}
	}
}

func TestResNetModelEmbeddingChoice(t *testing.T) {
	net := testNet(t)
	ma, _ := NewResNetModel(net)
	mb, err := NewResNetModel(net, WithEmbedding(EmbedB))
	if err != nil {
		t.Fatal(err)
	}
	samples := speech(2, 6000)
	a, _ := ma.ExtractSamples(samples)
	b, _ := mb.ExtractSamples(samples)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Error("embed_a and embed_b should differ")
	}
	if _, err := NewResNetModel(net, WithEmbedding("c")); err == nil {
		t.Error("expected error for unknown embedding")
	}
}

func TestResNetModelClipResamples(t *testing.T) {
	m, _ := NewResNetModel(testNet(t))
	clip := &pcm.Clip{Format: pcm.Format{SampleRate: 16000, Channels: 2}, Samples: make([]int16, 2*6000)}
	mono := speech(3, 6000)
	for i, v := range mono {
		clip.Samples[2*i], clip.Samples[2*i+1] = v, v
	}
	a, err := m.ExtractClip(clip)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.ExtractSamples(mono)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("stereo duplicate differs from mono at %d", i)
		}
	}
}

func TestResNetModelTooShortAndClosed(t *testing.T) {
	m, _ := NewResNetModel(testNet(t))
	need := m.MinSamples()
	if need != (m.Network().MinFrames()-1)*160+400 {
		t.Errorf("MinSamples = %d", need)
	}
	if _, err := m.ExtractSamples(speech(4, need-1)); !errors.Is(err, resnet.ErrTooShort) {
		t.Errorf("short err = %v", err)
	}
	if _, err := m.ExtractSamples(speech(4, need)); err != nil {
		t.Errorf("minimum length: %v", err)
	}
	m.Close()
	if _, err := m.ExtractSamples(speech(4, need)); !errors.Is(err, ErrClosed) {
		t.Errorf("closed err = %v", err)
	}
}

func TestResNetModelConcurrent(t *testing.T) {
	m, _ := NewResNetModel(testNet(t))
	samples := speech(5, 4000)
	want, err := m.ExtractSamples(samples)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.ExtractSamples(samples)
			if err != nil {
				errs <- err
				return
			}
			for i := range want {
				if got[i] != want[i] {
					errs <- errors.New("concurrent extraction differs")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float32
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 2}, 0},
		{[]float32{1, 1}, []float32{-3, -3}, -1},
		{[]float32{3, 4}, []float32{4, 3}, 24.0 / 25},
	}
	for _, tt := range tests {
		got, err := Cosine(tt.a, tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("Cosine(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
	if _, err := Cosine([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimension) {
		t.Errorf("err = %v", err)
	}
	if _, err := Cosine([]float32{0, 0}, []float32{1, 2}); !errors.Is(err, ErrZeroVector) {
		t.Errorf("err = %v", err)
	}
}

func TestCentroid(t *testing.T) {
	c, err := Centroid([]float32{2, 0}, []float32{0, 5})
	if err != nil {
		t.Fatal(err)
	}
	want := float32(math.Sqrt(0.5))
	if math.Abs(float64(c[0]-want)) > 1e-6 || math.Abs(float64(c[1]-want)) > 1e-6 {
		t.Errorf("centroid = %v", c)
	}
	if _, err := Centroid(); !errors.Is(err, ErrDimension) {
		t.Errorf("empty err = %v", err)
	}
	if _, err := Centroid([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrDimension) {
		t.Errorf("ragged err = %v", err)
	}
	v := []float32{3, 4}
	if _, err := Normalize(v); err != nil || math.Abs(float64(v[0])-0.6) > 1e-6 {
		t.Errorf("Normalize = %v, %v", v, err)
	}
}

func TestResNetModelSegments(t *testing.T) {
	net := testNet(t)
	m, err := NewResNetModel(net, WithSegments(20, 10))
	if err != nil {
		t.Fatal(err)
	}
	// 8000 samples give 48 frames: windows at 0, 10, 20 and one aligned to the end.
	if got := m.windows(48); len(got) != 4 || got[3] != 28 {
		t.Errorf("windows(48) = %v", got)
	}
	if got := m.windows(20); len(got) != 1 {
		t.Errorf("windows(20) = %v", got)
	}
	if got := m.windows(40); len(got) != 3 || got[2] != 20 {
		t.Errorf("windows(40) = %v", got)
	}

	emb, err := m.ExtractSamples(speech(6, 8000))
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, v := range emb {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("segmented embedding norm^2 = %f, want 1", norm)
	}

	if _, err := NewResNetModel(net, WithSegments(net.MinFrames()-1, 4)); err == nil {
		t.Error("expected error for segment below MinFrames")
	}
	if _, err := NewResNetModel(net, WithSegments(20, 0)); err == nil {
		t.Error("expected error for zero hop")
	}
}
