// Package fbank computes log mel filterbank features from PCM audio.
//
// It is the front-end for the ResNet speaker model: [Extractor.Features]
// returns a (1, NumMels, frames) tensor that can be passed straight to
// resnet.Model.Forward once NumMels equals the model's feature dimension.
//
// Defaults follow the Kaldi fbank convention used by speaker-verification
// recipes:
//
//	SampleRate:  16000
//	FrameLength: 400 (25 ms)
//	FrameShift:  160 (10 ms)
//	FFTSize:     512
//	NumMels:     80
//	LowFreq:     20
//	HighFreq:    0 (Nyquist)
//	PreEmphasis: 0.97
//	Window:      hamming
package fbank

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/haivivi/speakernet/pkg/tensor"
)

var (
	// ErrTooShort is returned when the input does not fill one frame.
	ErrTooShort = errors.New("fbank: audio shorter than one frame")

	// ErrUnknownWindow is returned for an unrecognized Window.
	ErrUnknownWindow = errors.New("fbank: unknown window")

	// ErrInvalidConfig is returned by New for unusable parameters.
	ErrInvalidConfig = errors.New("fbank: invalid config")
)

// energyFloor is the float32 machine epsilon Kaldi clamps mel energies to
// before taking the log.
const energyFloor = 1.1920929e-07

// Normalization selects per-utterance feature normalization.
type Normalization string

const (
	NormNone Normalization = "none"
	// NormCMN subtracts the per-bin mean over time.
	NormCMN Normalization = "cmn"
	// NormCMVN also divides by the per-bin standard deviation.
	NormCMVN Normalization = "cmvn"
)

// Config controls filterbank extraction.
type Config struct {
	SampleRate  int           `yaml:"sample_rate" json:"sample_rate"`
	FrameLength int           `yaml:"frame_length" json:"frame_length"` // samples
	FrameShift  int           `yaml:"frame_shift" json:"frame_shift"`   // samples
	FFTSize     int           `yaml:"fft_size" json:"fft_size"`
	NumMels     int           `yaml:"num_mels" json:"num_mels"`
	LowFreq     float64       `yaml:"low_freq" json:"low_freq"`
	HighFreq    float64       `yaml:"high_freq" json:"high_freq"` // <= 0 is relative to Nyquist
	PreEmphasis float64       `yaml:"pre_emphasis" json:"pre_emphasis"`
	RemoveDC    bool          `yaml:"remove_dc" json:"remove_dc"`
	Window      Window        `yaml:"window" json:"window"`
	Normalize   Normalization `yaml:"normalize" json:"normalize"`
}

// DefaultConfig returns the 80-bin, 16 kHz configuration with CMN.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		FrameLength: 400,
		FrameShift:  160,
		FFTSize:     512,
		NumMels:     80,
		LowFreq:     20,
		PreEmphasis: 0.97,
		RemoveDC:    true,
		Window:      Hamming,
		Normalize:   NormCMN,
	}
}

// Extractor turns PCM samples into log mel features. It is safe for
// concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
	bank   []filter
}

// New validates cfg and precomputes the window and filterbank.
func New(cfg Config) (*Extractor, error) {
	nyquist := float64(cfg.SampleRate) / 2
	high := cfg.HighFreq
	if high <= 0 {
		high += nyquist
	}
	switch {
	case cfg.SampleRate <= 0:
		return nil, fmt.Errorf("%w: sample_rate %d", ErrInvalidConfig, cfg.SampleRate)
	case cfg.FrameLength <= 1 || cfg.FrameShift <= 0:
		return nil, fmt.Errorf("%w: frame length %d, shift %d", ErrInvalidConfig, cfg.FrameLength, cfg.FrameShift)
	case cfg.FFTSize < cfg.FrameLength || cfg.FFTSize&(cfg.FFTSize-1) != 0:
		return nil, fmt.Errorf("%w: fft_size %d must be a power of two >= frame_length", ErrInvalidConfig, cfg.FFTSize)
	case cfg.NumMels <= 0:
		return nil, fmt.Errorf("%w: num_mels %d", ErrInvalidConfig, cfg.NumMels)
	case cfg.LowFreq < 0 || high <= cfg.LowFreq || high > nyquist:
		return nil, fmt.Errorf("%w: frequency range [%g, %g] outside (0, %g]", ErrInvalidConfig, cfg.LowFreq, high, nyquist)
	}
	switch cfg.Normalize {
	case "", NormNone, NormCMN, NormCMVN:
	default:
		return nil, fmt.Errorf("%w: normalize %q", ErrInvalidConfig, cfg.Normalize)
	}
	window, err := cfg.Window.coefficients(cfg.FrameLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.Window)
	}
	return &Extractor{
		cfg:    cfg,
		window: window,
		bank:   melBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, high),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// NumFrames returns how many frames n samples produce. Trailing samples that
// do not fill a frame are dropped.
func (e *Extractor) NumFrames(n int) int {
	if n < e.cfg.FrameLength {
		return 0
	}
	return (n-e.cfg.FrameLength)/e.cfg.FrameShift + 1
}

// Extract computes raw log mel energies, frame-major: (frames, NumMels).
// Samples are expected in [-1, 1]. No normalization is applied.
func (e *Extractor) Extract(samples []float32) (*tensor.Tensor, error) {
	frames := e.NumFrames(len(samples))
	if frames == 0 {
		return nil, fmt.Errorf("%w: %d samples, frame is %d", ErrTooShort, len(samples), e.cfg.FrameLength)
	}
	cfg := e.cfg
	out := tensor.Zeros(frames, cfg.NumMels)

	fft := fourier.NewFFT(cfg.FFTSize)
	seq := make([]float64, cfg.FFTSize)
	coeff := make([]complex128, cfg.FFTSize/2+1)
	power := make([]float64, cfg.FFTSize/2+1)

	for t := range frames {
		frame := seq[:cfg.FrameLength]
		for i := range frame {
			// Kaldi's waveform scale: features are computed on int16 range.
			frame[i] = float64(samples[t*cfg.FrameShift+i]) * 32768
		}
		if cfg.RemoveDC {
			mean := stat.Mean(frame, nil)
			for i := range frame {
				frame[i] -= mean
			}
		}
		if cfg.PreEmphasis != 0 {
			for i := len(frame) - 1; i > 0; i-- {
				frame[i] -= cfg.PreEmphasis * frame[i-1]
			}
			frame[0] -= cfg.PreEmphasis * frame[0]
		}
		for i := range frame {
			frame[i] *= e.window[i]
		}
		clear(seq[cfg.FrameLength:])

		coeff = fft.Coefficients(coeff, seq)
		for k, c := range coeff {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		row := out.Row(t)
		for m, f := range e.bank {
			row[m] = float32(math.Log(max(f.apply(power), energyFloor)))
		}
	}
	return out, nil
}

// Features extracts, normalizes and transposes samples into the model input
// layout (1, NumMels, frames).
func (e *Extractor) Features(samples []float32) (*tensor.Tensor, error) {
	fm, err := e.Extract(samples)
	if err != nil {
		return nil, err
	}
	switch e.cfg.Normalize {
	case NormCMN:
		CMN(fm)
	case NormCMVN:
		CMVN(fm)
	}
	return Transpose(fm), nil
}

// FeaturesInt16 is Features for signed 16-bit samples.
func (e *Extractor) FeaturesInt16(pcm []int16) (*tensor.Tensor, error) {
	return e.Features(Int16ToFloat32(pcm))
}

// Int16ToFloat32 scales 16-bit samples to [-1, 1).
func Int16ToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768
	}
	return out
}

// BytesToInt16 decodes little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// CMN subtracts the per-column mean of a frame-major (frames, bins) matrix
// in place.
func CMN(fm *tensor.Tensor) {
	normalize(fm, false)
}

// CMVN subtracts the per-column mean and divides by the per-column
// population standard deviation in place.
func CMVN(fm *tensor.Tensor) {
	normalize(fm, true)
}

func normalize(fm *tensor.Tensor, scale bool) {
	frames, bins := fm.Shape[0], fm.Shape[1]
	col := make([]float64, frames)
	for b := range bins {
		for t := range frames {
			col[t] = float64(fm.Data[t*bins+b])
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		std := 1.0
		if scale {
			std = max(math.Sqrt(variance), 1e-10)
		}
		for t := range frames {
			fm.Data[t*bins+b] = float32((col[t] - mean) / std)
		}
	}
}

// Transpose turns a frame-major (frames, bins) matrix into (1, bins, frames).
func Transpose(fm *tensor.Tensor) *tensor.Tensor {
	frames, bins := fm.Shape[0], fm.Shape[1]
	out := tensor.Zeros(1, bins, frames)
	for t := range frames {
		for b := range bins {
			out.Data[b*frames+t] = fm.Data[t*bins+b]
		}
	}
	return out
}
