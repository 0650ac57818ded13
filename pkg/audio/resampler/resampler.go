package resampler

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/speakernet/pkg/audio/pcm"
)

// tail is the silence appended so the filter's delay line drains into the
// output before it is cut back to the expected length.
const tail = 0.05 // seconds

// Resample converts a clip to dst. Channels are averaged before rate
// conversion, so dst.Channels must be 1. A clip already in dst is returned
// unchanged.
func Resample(c *pcm.Clip, dst pcm.Format) (*pcm.Clip, error) {
	if err := dst.Validate(); err != nil {
		return nil, err
	}
	if err := c.Format.Validate(); err != nil {
		return nil, err
	}
	if dst.Channels != 1 {
		return nil, fmt.Errorf("resampler: only mono output is supported, got %d channels", dst.Channels)
	}
	mono := c.Mono()
	if mono.Format.SampleRate == dst.SampleRate {
		return mono, nil
	}
	out, err := Float(mono.Samples, mono.Format.SampleRate, dst.SampleRate)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(out))
	for i, s := range out {
		samples[i] = toInt16(s)
	}
	return &pcm.Clip{Format: dst, Samples: samples}, nil
}

// ToMono16K prepares any clip for the speaker front-end.
func ToMono16K(c *pcm.Clip) (*pcm.Clip, error) {
	return Resample(c, pcm.Mono16K)
}

// Float resamples mono 16-bit samples and returns normalized float64
// samples of length round(len(in) * dstRate / srcRate).
func Float(in []int16, srcRate, dstRate int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create: %w", err)
	}
	pad := int(math.Ceil(tail * float64(srcRate)))
	input := make([]float64, len(in)+pad)
	for i, s := range in {
		input[i] = float64(s) / 32768
	}
	out, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	want := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	if len(out) > want {
		out = out[:want]
	}
	return out, nil
}

func toInt16(s float64) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(s * 32767)
}
