package commands

import (
	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
)

var embedPreview int

// EmbedResult lists the embeddings of the given recordings.
type EmbedResult struct {
	Model      string       `json:"model" yaml:"model" msgpack:"model"`
	Embeddings []*Embedding `json:"embeddings" yaml:"embeddings" msgpack:"embeddings"`
}

// Table implements cli.Tabular.
func (r EmbedResult) Table() cli.Table {
	t := cli.Table{
		Title:   "embeddings",
		Headers: []string{"file", "duration", "voice", "vector"},
		Footer:  "model " + r.Model,
	}
	for _, e := range r.Embeddings {
		t.Rows = append(t.Rows, []string{e.File, e.Duration, e.Voice, cli.FormatVector(e.Vector, embedPreview)})
	}
	return t
}

var embedCmd = &cobra.Command{
	Use:   "embed FILE...",
	Short: "Extract speaker embeddings from recordings",
	Long: `Extract a speaker embedding from each recording.

The table view previews the first values of each vector; use --format json
or yaml for the full vectors.`,
	Args: cobra.MinimumNArgs(1),
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
		return printResult(EmbedResult{Model: p.cfg.Tag(), Embeddings: es})
	},
}

func init() {
	addAudioFlags(embedCmd)
	embedCmd.Flags().IntVar(&embedPreview, "preview", 4, "vector values shown in table output")
	rootCmd.AddCommand(embedCmd)
}
