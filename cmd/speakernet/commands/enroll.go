package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/enroll"
)

// SpeakerList is the result of "enroll list".
type SpeakerList struct {
	Model    string           `json:"model" yaml:"model" msgpack:"model"`
	Speakers []*enroll.Record `json:"speakers" yaml:"speakers" msgpack:"speakers"`
}

// Table implements cli.Tabular. Records enrolled under another model are
// marked as mismatches.
func (l SpeakerList) Table() cli.Table {
	t := cli.Table{
		Title:   "speakers",
		Headers: []string{"speaker", "voice", "utterances", "model", "updated"},
		Footer:  fmt.Sprintf("%d enrolled, model %s", len(l.Speakers), l.Model),
	}
	for _, r := range l.Speakers {
		mark := cli.MarkNone
		if r.Model != l.Model {
			mark = cli.MarkBad
		}
		t.Rows = append(t.Rows, []string{
			r.Speaker, r.VoiceHash, strconv.Itoa(r.Utterances), r.Model, r.UpdatedAt.Format(time.DateTime),
		})
		t.Marks = append(t.Marks, []cli.Mark{cli.MarkNone, cli.MarkNone, cli.MarkNone, mark, cli.MarkNone})
	}
	return t
}

// recordView renders one record as a field/value table.
type recordView struct {
	enroll.Record `json:",inline" yaml:",inline" msgpack:",inline"`
}

func (r recordView) Table() cli.Table {
	return cli.Table{
		Title:   r.Speaker,
		Headers: []string{"field", "value"},
		Rows: [][]string{
			{"id", r.ID},
			{"voice", r.VoiceHash},
			{"utterances", strconv.Itoa(r.Utterances)},
			{"model", r.Model},
			{"embedding", cli.FormatVector(r.Embedding, 4)},
			{"created", r.CreatedAt.Format(time.DateTime)},
			{"updated", r.UpdatedAt.Format(time.DateTime)},
		},
	}
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage enrolled speakers",
}

var enrollAddCmd = &cobra.Command{
	Use:   "add SPEAKER FILE...",
	Short: "Enroll recordings under a speaker name",
	Long: `Enroll one or more recordings for a speaker.

Adding to an existing speaker updates the stored centroid, weighted by the
number of utterances already enrolled.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline()
		if err != nil {
			return err
		}
		defer p.Close()

		es, err := p.embedFiles(args[1:])
		if err != nil {
			return err
		}
		store, err := openStore(p.cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Enroll(cmd.Context(), args[0], vectors(es)...)
		if err != nil {
			return err
		}
		return printResult(recordView{*rec})
	},
}

var enrollListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List enrolled speakers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res := SpeakerList{Model: cfg.Tag(), Speakers: []*enroll.Record{}}
		for rec, err := range store.List(cmd.Context()) {
			if err != nil {
				return err
			}
			rec.Embedding = nil
			res.Speakers = append(res.Speakers, rec)
		}
		return printResult(res)
	},
}

var enrollShowCmd = &cobra.Command{
	Use:   "show SPEAKER",
	Short: "Show one enrolled speaker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(recordView{*rec})
	},
}

var enrollRemoveCmd = &cobra.Command{
	Use:     "remove SPEAKER",
	Aliases: []string{"rm"},
	Short:   "Remove an enrolled speaker",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Speaker %q removed\n", args[0])
		return nil
	},
}

func init() {
	addAudioFlags(enrollAddCmd)
	enrollCmd.AddCommand(enrollAddCmd, enrollListCmd, enrollShowCmd, enrollRemoveCmd)
	rootCmd.AddCommand(enrollCmd)
}
