package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/voiceprint"
)

// CompareResult is the pairwise cosine similarity matrix of recordings.
type CompareResult struct {
	Files     []string    `json:"files" yaml:"files" msgpack:"files"`
	Voices    []string    `json:"voices,omitempty" yaml:"voices,omitempty" msgpack:"voices,omitempty"`
	Matrix    [][]float32 `json:"matrix" yaml:"matrix" msgpack:"matrix"`
	Threshold float32     `json:"threshold" yaml:"threshold" msgpack:"threshold"`
}

// Table implements cli.Tabular. Off-diagonal scores at or above the
// threshold are marked as matches.
func (r CompareResult) Table() cli.Table {
	t := cli.Table{
		Title:   "cosine similarity",
		Headers: append([]string{""}, r.Files...),
		Footer:  fmt.Sprintf("threshold %.2f", r.Threshold),
	}
	for i, row := range r.Matrix {
		cells := []string{r.Files[i]}
		marks := []cli.Mark{cli.MarkNone}
		for j, v := range row {
			cells = append(cells, fmt.Sprintf("%.3f", v))
			switch {
			case i == j:
				marks = append(marks, cli.MarkNone)
			case v >= r.Threshold:
				marks = append(marks, cli.MarkGood)
			default:
				marks = append(marks, cli.MarkBad)
			}
		}
		t.Rows = append(t.Rows, cells)
		t.Marks = append(t.Marks, marks)
	}
	return t
}

var compareCmd = &cobra.Command{
	Use:   "compare FILE FILE...",
	Short: "Score every pair of recordings",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		es, err := p.embedFiles(args)
		if err != nil {
			return err
		}
		res := CompareResult{Threshold: p.cfg.Threshold, Matrix: make([][]float32, len(es))}
		for i, a := range es {
			res.Files = append(res.Files, a.File)
			if a.Voice != "" {
				res.Voices = append(res.Voices, a.Voice)
			}
			res.Matrix[i] = make([]float32, len(es))
			for j, b := range es {
				if res.Matrix[i][j], err = voiceprint.Cosine(a.Vector, b.Vector); err != nil {
					return err
				}
			}
		}
		return printResult(res)
	},
}

func init() {
	addAudioFlags(compareCmd)
	rootCmd.AddCommand(compareCmd)
}
