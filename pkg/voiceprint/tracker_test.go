package voiceprint

import (
	"slices"
	"testing"
)

func TestTracker(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		hashes []string
		want   Observation
	}{
		{
			name:   "single",
			size:   5,
			hashes: []string{"A3F8", "A3F8", "A3F8", "A3F8", "A3F8"},
			want:   Observation{Status: StatusSingle, Speaker: "voice:A3F8", Candidates: []string{"voice:A3F8"}, Confidence: 1},
		},
		{
			name:   "overlap",
			size:   4,
			hashes: []string{"BBBB", "AAAA", "BBBB", "AAAA"},
			want:   Observation{Status: StatusOverlap, Speaker: "voice:AAAA", Candidates: []string{"voice:AAAA", "voice:BBBB"}, Confidence: 1},
		},
		{
			name:   "unknown",
			size:   5,
			hashes: []string{"AAAA", "BBBB", "CCCC", "DDDD", "EEEE"},
			want:   Observation{Status: StatusUnknown, Confidence: 0.2},
		},
		{
			name:   "old hashes fall out",
			size:   3,
			hashes: []string{"AAAA", "AAAA", "AAAA", "BBBB", "BBBB", "BBBB"},
			want:   Observation{Status: StatusSingle, Speaker: "voice:BBBB", Candidates: []string{"voice:BBBB"}, Confidence: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.size, 0.6)
			var got Observation
			var ok bool
			for _, h := range tt.hashes {
				got, ok = tr.Push(h)
			}
			if !ok {
				t.Fatal("no observation")
			}
			if got.Status != tt.want.Status || got.Speaker != tt.want.Speaker ||
				!slices.Equal(got.Candidates, tt.want.Candidates) || got.Confidence != tt.want.Confidence {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTrackerWarmupAndReset(t *testing.T) {
	tr := NewTracker(0, 0)
	if len(tr.ring) != 5 || tr.minShare != 0.6 {
		t.Errorf("defaults = %d, %f", len(tr.ring), tr.minShare)
	}
	if _, ok := tr.Push("AAAA"); ok {
		t.Error("first push should not classify")
	}
	if obs, ok := tr.Push("AAAA"); !ok || obs.Status != StatusSingle {
		t.Errorf("second push = %+v, %v", obs, ok)
	}
	tr.Reset()
	if _, ok := tr.Push("BBBB"); ok {
		t.Error("push after reset should not classify")
	}
}
