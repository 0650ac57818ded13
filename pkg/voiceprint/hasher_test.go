package voiceprint

import (
	"strings"
	"testing"
)

func ramp(n int, scale float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i)*scale - 0.5
	}
	return v
}

func mustHasher(t *testing.T, dim, bits int, seed uint64) *Hasher {
	t.Helper()
	h, err := NewHasher(dim, bits, seed)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestHasherDeterministic(t *testing.T) {
	emb := ramp(128, 0.01)
	h1 := mustHasher(t, 128, 16, 42)
	h2 := mustHasher(t, 128, 16, 42)
	a, err := h1.Hash(emb)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := h2.Hash(emb)
	if a != b {
		t.Errorf("same seed gave %q and %q", a, b)
	}
	if len(a) != 4 {
		t.Errorf("hash %q, want 4 hex chars", a)
	}
	t.Logf("hash = %s", a)
}

func TestHasherScaleInvariant(t *testing.T) {
	h := mustHasher(t, 64, 32, 7)
	emb := ramp(64, 0.02)
	scaled := make([]float32, len(emb))
	for i, v := range emb {
		scaled[i] = 3 * v
	}
	a, _ := h.Hash(emb)
	b, _ := h.Hash(scaled)
	if a != b {
		t.Errorf("positive scaling changed the hash: %q vs %q", a, b)
	}
}

func TestHasherOppositeVector(t *testing.T) {
	h := mustHasher(t, 64, 16, 3)
	emb := ramp(64, 0.02)
	neg := make([]float32, len(emb))
	for i, v := range emb {
		neg[i] = -v
	}
	a, _ := h.Hash(emb)
	b, _ := h.Hash(neg)
	// Every projection flips sign, so every nibble is complemented.
	for i := range a {
		x := strings.IndexByte(hexDigits, a[i])
		y := strings.IndexByte(hexDigits, b[i])
		if x+y != 15 {
			t.Fatalf("hash %q and negated %q are not complements", a, b)
		}
	}
}

func TestHasherHexFormat(t *testing.T) {
	h := mustHasher(t, 8, 24, 99)
	hash, err := h.Hash([]float32{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 6 {
		t.Fatalf("hash %q, want 6 chars", hash)
	}
	for _, c := range hash {
		if !strings.ContainsRune(hexDigits, c) {
			t.Errorf("non-hex char %c in %q", c, hash)
		}
	}
	if VoiceLabel(hash) != "voice:"+hash {
		t.Error("VoiceLabel")
	}
}

func TestHasherErrors(t *testing.T) {
	if _, err := NewHasher(16, 3, 0); err == nil {
		t.Error("expected error for bits=3")
	}
	if _, err := NewHasher(0, 16, 0); err == nil {
		t.Error("expected error for dim=0")
	}
	h := mustHasher(t, 16, 16, 0)
	if _, err := h.Hash([]float32{1, 2, 3}); err == nil {
		t.Error("expected error for wrong dim")
	}
	if h.Bits() != 16 || h.Dim() != 16 {
		t.Errorf("Bits=%d Dim=%d", h.Bits(), h.Dim())
	}
}
