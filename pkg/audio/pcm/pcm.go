// Package pcm holds 16-bit PCM clips and reads them from WAV or raw files.
package pcm

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrFormat is returned for malformed or unsupported audio data.
	ErrFormat = errors.New("pcm: unsupported format")
)

// Format describes interleaved signed 16-bit audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono16K is the format the speaker front-end consumes.
var Mono16K = Format{SampleRate: 16000, Channels: 1}

// Validate reports whether f can describe audio.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("%w: rate %d, channels %d", ErrFormat, f.SampleRate, f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("L16/%dHz/%dch", f.SampleRate, f.Channels)
}

// Clip is a block of interleaved samples in a known format.
type Clip struct {
	Format  Format
	Samples []int16
}

// FromBytes interprets little-endian 16-bit PCM. A trailing partial frame is
// dropped.
func FromBytes(b []byte, f Format) (*Clip, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	n := len(b) / 2
	n -= n % f.Channels
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return &Clip{Format: f, Samples: samples}, nil
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	return len(c.Samples) / c.Format.Channels
}

// Duration returns the clip length.
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.Format.SampleRate)
}

// Mono averages channels into a single-channel clip. A mono clip is returned
// as is.
func (c *Clip) Mono() *Clip {
	ch := c.Format.Channels
	if ch == 1 {
		return c
	}
	out := make([]int16, c.Frames())
	for i := range out {
		var sum int32
		for _, s := range c.Samples[i*ch : (i+1)*ch] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(ch))
	}
	return &Clip{Format: Format{SampleRate: c.Format.SampleRate, Channels: 1}, Samples: out}
}

// Bytes encodes the samples as little-endian 16-bit PCM.
func (c *Clip) Bytes() []byte {
	b := make([]byte, 2*len(c.Samples))
	for i, s := range c.Samples {
		b[2*i] = byte(s)
		b[2*i+1] = byte(s >> 8)
	}
	return b
}

// TrimSilence drops leading and trailing frames of a mono clip whose RMS
// is at or below threshold, keeping one frame of margin on each side.
// frame is the analysis window; clips shorter than three windows are
// returned as is, as are clips with no frame above threshold.
func (c *Clip) TrimSilence(threshold int16, frame time.Duration) *Clip {
	size := int(frame * time.Duration(c.Format.SampleRate) / time.Second)
	if c.Format.Channels != 1 || size <= 0 {
		return c
	}
	frames := len(c.Samples) / size
	if frames < 3 {
		return c
	}
	loud := func(f int) bool {
		var sum float64
		for _, s := range c.Samples[f*size : (f+1)*size] {
			sum += float64(s) * float64(s)
		}
		return math.Sqrt(sum/float64(size)) > float64(threshold)
	}

	first := -1
	for f := range frames {
		if loud(f) {
			first = f
			break
		}
	}
	if first < 0 {
		return c
	}
	last := first
	for f := frames - 1; f > first; f-- {
		if loud(f) {
			last = f
			break
		}
	}
	first = max(first-1, 0)
	end := min((last+2)*size, len(c.Samples))
	return &Clip{Format: c.Format, Samples: c.Samples[first*size : end]}
}
