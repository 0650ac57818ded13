package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/enroll"
)

// errRejected makes "verify" exit non-zero when the speaker is rejected.
var errRejected = errors.New("speaker rejected")

var identifyTop int

// Scores is the result of "verify" and "identify".
type Scores struct {
	File      string            `json:"file" yaml:"file" msgpack:"file"`
	Voice     string            `json:"voice,omitempty" yaml:"voice,omitempty" msgpack:"voice,omitempty"`
	Decisions []enroll.Decision `json:"decisions" yaml:"decisions" msgpack:"decisions"`
}

// Table implements cli.Tabular.
func (s Scores) Table() cli.Table {
	t := cli.Table{
		Title:   s.File,
		Headers: []string{"speaker", "score", "decision"},
	}
	if s.Voice != "" {
		t.Footer = s.Voice
	}
	for _, d := range s.Decisions {
		verdict, mark := "reject", cli.MarkBad
		if d.Accept {
			verdict, mark = "accept", cli.MarkGood
		}
		t.Rows = append(t.Rows, []string{d.Speaker, fmt.Sprintf("%.3f / %.2f", d.Score, d.Threshold), verdict})
		t.Marks = append(t.Marks, []cli.Mark{cli.MarkNone, cli.MarkNone, mark})
	}
	return t
}

var verifyCmd = &cobra.Command{
	Use:   "verify SPEAKER FILE",
	Short: "Check a recording against an enrolled speaker",
	Long: `Score a recording against an enrolled speaker's centroid.

Exits non-zero when the score is below the model threshold.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		e, err := p.embedFile(args[1])
		if err != nil {
			return err
		}
		store, err := openStore(p.cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := store.Verify(cmd.Context(), args[0], e.Vector)
		if err != nil {
			return err
		}
		if err := printResult(Scores{File: e.File, Voice: e.Voice, Decisions: []enroll.Decision{*d}}); err != nil {
			return err
		}
		if !d.Accept {
			return fmt.Errorf("%w: %s scored %.3f, threshold %.2f", errRejected, d.Speaker, d.Score, d.Threshold)
		}
		return nil
	},
}

var identifyCmd = &cobra.Command{
	Use:   "identify FILE",
	Short: "Rank enrolled speakers by similarity to a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		e, err := p.embedFile(args[0])
		if err != nil {
			return err
		}
		store, err := openStore(p.cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ds, err := store.Identify(cmd.Context(), e.Vector, identifyTop)
		if err != nil {
			return err
		}
		if ds == nil {
			ds = []enroll.Decision{}
		}
		return printResult(Scores{File: e.File, Voice: e.Voice, Decisions: ds})
	},
}

func init() {
	addAudioFlags(verifyCmd)
	addAudioFlags(identifyCmd)
	identifyCmd.Flags().IntVarP(&identifyTop, "top", "n", 5, "number of speakers to show (0 for all)")
	rootCmd.AddCommand(verifyCmd, identifyCmd)
}
