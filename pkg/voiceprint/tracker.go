package voiceprint

import (
	"cmp"
	"slices"
)

// Status classifies the recent speaker activity seen by a Tracker.
type Status string

const (
	// StatusSingle means one voice dominates the window.
	StatusSingle Status = "single"
	// StatusOverlap means two voices together dominate the window.
	StatusOverlap Status = "overlap"
	// StatusUnknown means no voice or pair is stable enough.
	StatusUnknown Status = "unknown"
)

// Observation is the Tracker's verdict after a Push.
type Observation struct {
	Status Status `json:"status" yaml:"status" msgpack:"status"`

	// Speaker is the dominant voice label; empty for StatusUnknown.
	Speaker string `json:"speaker,omitempty" yaml:"speaker,omitempty" msgpack:"speaker,omitempty"`

	// Candidates lists the dominant voice labels, strongest first.
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty" msgpack:"candidates,omitempty"`

	// Confidence is the share of the window held by Candidates, or by the
	// top voice for StatusUnknown.
	Confidence float32 `json:"confidence" yaml:"confidence" msgpack:"confidence"`
}

// Tracker follows who is speaking from a stream of voice hashes, one per
// chunk of audio. It keeps the last N hashes and reports a voice as
// dominant when it holds at least minShare of them.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	ring     []string
	next     int
	filled   int
	minShare float32
}

// NewTracker creates a tracker over the last size hashes. size defaults to
// 5 and minShare, which must lie in (0, 1], to 0.6.
func NewTracker(size int, minShare float32) *Tracker {
	if size <= 0 {
		size = 5
	}
	if minShare <= 0 || minShare > 1 {
		minShare = 0.6
	}
	return &Tracker{ring: make([]string, size), minShare: minShare}
}

// Push records hash and classifies the window. ok is false until the
// window holds two hashes.
func (t *Tracker) Push(hash string) (obs Observation, ok bool) {
	t.ring[t.next] = hash
	t.next = (t.next + 1) % len(t.ring)
	t.filled = min(t.filled+1, len(t.ring))
	if t.filled < 2 {
		return Observation{}, false
	}

	counts := make(map[string]int, t.filled)
	for i := range t.filled {
		counts[t.ring[(t.next-1-i+len(t.ring))%len(t.ring)]]++
	}
	type tally struct {
		hash string
		n    int
	}
	ranked := make([]tally, 0, len(counts))
	for h, n := range counts {
		ranked = append(ranked, tally{h, n})
	}
	// Ties go to the lexically smaller hash so results do not depend on
	// map order.
	slices.SortFunc(ranked, func(a, b tally) int {
		if c := cmp.Compare(b.n, a.n); c != 0 {
			return c
		}
		return cmp.Compare(a.hash, b.hash)
	})

	total := float32(t.filled)
	top := ranked[0]
	if share := float32(top.n) / total; share >= t.minShare {
		label := VoiceLabel(top.hash)
		return Observation{Status: StatusSingle, Speaker: label, Candidates: []string{label}, Confidence: share}, true
	}
	if len(ranked) > 1 {
		second := ranked[1]
		if share := float32(top.n+second.n) / total; share >= t.minShare {
			return Observation{
				Status:     StatusOverlap,
				Speaker:    VoiceLabel(top.hash),
				Candidates: []string{VoiceLabel(top.hash), VoiceLabel(second.hash)},
				Confidence: share,
			}, true
		}
	}
	return Observation{Status: StatusUnknown, Confidence: float32(top.n) / total}, true
}

// Reset forgets all pushed hashes.
func (t *Tracker) Reset() {
	clear(t.ring)
	t.next, t.filled = 0, 0
}
