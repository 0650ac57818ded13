package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/cmd/speakernet/internal/config"
	"github.com/haivivi/speakernet/pkg/audio/pcm"
	"github.com/haivivi/speakernet/pkg/audio/resampler"
	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/voiceprint"
)

// Silence trimming: frames of 20 ms with RMS at or below 300 are dropped
// from both ends.
const (
	silenceThreshold = 300
	silenceFrame     = 20 * time.Millisecond
)

// Audio input flags, shared by every command that reads recordings.
var (
	rawRate     int
	rawChannels int
	noTrim      bool
)

func addAudioFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&rawRate, "rate", 16000, "sample rate of raw (non-WAV) input")
	cmd.Flags().IntVar(&rawChannels, "channels", 1, "channel count of raw (non-WAV) input")
	cmd.Flags().BoolVar(&noTrim, "no-trim", false, "keep leading and trailing silence")
}

// pipeline is a loaded model config with its network built.
type pipeline struct {
	cfg    *config.Model
	model  *voiceprint.ResNetModel
	hasher *voiceprint.Hasher
}

func loadPipeline() (*pipeline, error) {
	cfg, err := loadModelConfig()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	model, err := cfg.Build(slog.Default())
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	slog.Debug("model ready", "tag", cfg.Tag(), "params", model.Network().NumParams(), "took", time.Since(start))
	return &pipeline{cfg: cfg, model: model, hasher: hasher}, nil
}

func (p *pipeline) Close() error {
	return p.model.Close()
}

// Embedding is the result of embedding one recording.
type Embedding struct {
	File      string    `json:"file" yaml:"file" msgpack:"file"`
	Duration  string    `json:"duration" yaml:"duration" msgpack:"duration"`
	Voice     string    `json:"voice,omitempty" yaml:"voice,omitempty" msgpack:"voice,omitempty"`
	Dimension int       `json:"dimension" yaml:"dimension" msgpack:"dimension"`
	Vector    []float32 `json:"vector" yaml:"vector" msgpack:"vector"`
}

// embedFile reads, normalizes and trims path, then extracts its embedding.
func (p *pipeline) embedFile(path string) (*Embedding, error) {
	clip, err := pcm.ReadFile(path, pcm.Format{SampleRate: rawRate, Channels: rawChannels})
	if err != nil {
		return nil, err
	}
	clip, err = resampler.ToMono16K(clip)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !noTrim {
		trimmed := clip.TrimSilence(silenceThreshold, silenceFrame)
		slog.Debug("trimmed silence", "file", path, "before", clip.Duration(), "after", trimmed.Duration())
		clip = trimmed
	}
	vec, err := p.model.ExtractSamples(clip.Samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e := &Embedding{
		File:      filepath.Base(path),
		Duration:  cli.FormatDuration(clip.Duration()),
		Dimension: len(vec),
		Vector:    vec,
	}
	if p.hasher != nil {
		hash, err := p.hasher.Hash(vec)
		if err != nil {
			return nil, err
		}
		e.Voice = voiceprint.VoiceLabel(hash)
	}
	return e, nil
}

// embedFiles embeds each path in order.
func (p *pipeline) embedFiles(paths []string) ([]*Embedding, error) {
	out := make([]*Embedding, 0, len(paths))
	for _, path := range paths {
		e, err := p.embedFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// vectors returns the embedding vectors of es.
func vectors(es []*Embedding) [][]float32 {
	out := make([][]float32, len(es))
	for i, e := range es {
		out[i] = e.Vector
	}
	return out
}
