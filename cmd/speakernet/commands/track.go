package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/audio/pcm"
	"github.com/haivivi/speakernet/pkg/audio/resampler"
	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/voiceprint"
)

var (
	trackChunk  time.Duration
	trackHop    time.Duration
	trackWindow int
	trackShare  float32
)

// TrackPoint is the tracker state after one chunk.
type TrackPoint struct {
	Start string `json:"start" yaml:"start" msgpack:"start"`
	End   string `json:"end" yaml:"end" msgpack:"end"`
	Voice string `json:"voice" yaml:"voice" msgpack:"voice"`

	voiceprint.Observation `json:",inline" yaml:",inline" msgpack:",inline"`
}

// TrackResult is the speaker timeline of one recording.
type TrackResult struct {
	File   string       `json:"file" yaml:"file" msgpack:"file"`
	Points []TrackPoint `json:"points" yaml:"points" msgpack:"points"`
}

// Table implements cli.Tabular.
func (r TrackResult) Table() cli.Table {
	t := cli.Table{
		Title:   r.File,
		Headers: []string{"start", "end", "voice", "status", "speaker", "confidence"},
	}
	for _, p := range r.Points {
		mark := cli.MarkNone
		switch p.Status {
		case voiceprint.StatusSingle:
			mark = cli.MarkGood
		case voiceprint.StatusUnknown:
			mark = cli.MarkBad
		}
		t.Rows = append(t.Rows, []string{p.Start, p.End, p.Voice, string(p.Status), p.Speaker, fmt.Sprintf("%.2f", p.Confidence)})
		t.Marks = append(t.Marks, []cli.Mark{cli.MarkNone, cli.MarkNone, cli.MarkNone, mark, cli.MarkNone, cli.MarkNone})
	}
	return t
}

var trackCmd = &cobra.Command{
	Use:   "track FILE",
	Short: "Follow who is speaking through a long recording",
	Long: `Cut a recording into overlapping chunks, hash each chunk's embedding and
classify a sliding window of hashes as a single speaker, an overlap of two,
or unknown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if trackChunk <= 0 || trackHop <= 0 {
			return errors.New("--chunk and --hop must be positive")
		}
		p, err := loadPipeline()
		if err != nil {
			return err
		}
		defer p.Close()
		if p.hasher == nil {
			return errors.New("track needs voice hashes; set hash_bits in the model config")
		}

		clip, err := pcm.ReadFile(args[0], pcm.Format{SampleRate: rawRate, Channels: rawChannels})
		if err != nil {
			return err
		}
		if clip, err = resampler.ToMono16K(clip); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		if !noTrim {
			clip = clip.TrimSilence(silenceThreshold, silenceFrame)
		}

		rate := clip.Format.SampleRate
		size := int(trackChunk * time.Duration(rate) / time.Second)
		hop := max(int(trackHop*time.Duration(rate)/time.Second), 1)
		if size < p.model.MinSamples() {
			return fmt.Errorf("--chunk %v is shorter than the model minimum of %d samples", trackChunk, p.model.MinSamples())
		}

		tracker := voiceprint.NewTracker(trackWindow, trackShare)
		res := TrackResult{File: filepath.Base(args[0]), Points: []TrackPoint{}}
		for start := 0; start+size <= len(clip.Samples); start += hop {
			vec, err := p.model.ExtractSamples(clip.Samples[start : start+size])
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", start, err)
			}
			hash, err := p.hasher.Hash(vec)
			if err != nil {
				return err
			}
			obs, ok := tracker.Push(hash)
			if !ok {
				continue
			}
			res.Points = append(res.Points, TrackPoint{
				Start:       cli.FormatDuration(time.Duration(start) * time.Second / time.Duration(rate)),
				End:         cli.FormatDuration(time.Duration(start+size) * time.Second / time.Duration(rate)),
				Voice:       voiceprint.VoiceLabel(hash),
				Observation: obs,
			})
		}
		return printResult(res)
	},
}

func init() {
	addAudioFlags(trackCmd)
	trackCmd.Flags().DurationVar(&trackChunk, "chunk", 1500*time.Millisecond, "audio per embedding")
	trackCmd.Flags().DurationVar(&trackHop, "hop", 500*time.Millisecond, "advance between chunks")
	trackCmd.Flags().IntVar(&trackWindow, "window", 5, "chunks in the tracking window")
	trackCmd.Flags().Float32Var(&trackShare, "min-share", 0.6, "window share that makes a voice dominant")
	rootCmd.AddCommand(trackCmd)
}
