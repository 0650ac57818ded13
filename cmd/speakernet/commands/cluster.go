package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/cluster"
)

var (
	clusterMinSamples int
	clusterPrefix     string
	clusterEnroll     bool
)

// ClusterResult maps recordings to speaker groups.
type ClusterResult struct {
	Files     []string          `json:"files" yaml:"files" msgpack:"files"`
	Groups    []cluster.Cluster `json:"groups" yaml:"groups" msgpack:"groups"`
	Noise     []string          `json:"noise,omitempty" yaml:"noise,omitempty" msgpack:"noise,omitempty"`
	Threshold float32           `json:"threshold" yaml:"threshold" msgpack:"threshold"`
	Enrolled  bool              `json:"enrolled" yaml:"enrolled" msgpack:"enrolled"`
}

// Table implements cli.Tabular.
func (r ClusterResult) Table() cli.Table {
	t := cli.Table{
		Title:   "speaker groups",
		Headers: []string{"group", "files", "cohesion"},
		Footer:  fmt.Sprintf("threshold %.2f", r.Threshold),
	}
	for _, g := range r.Groups {
		names := make([]string, len(g.Members))
		for i, m := range g.Members {
			names[i] = r.Files[m]
		}
		t.Rows = append(t.Rows, []string{g.ID, strings.Join(names, ", "), fmt.Sprintf("%.3f", g.Cohesion)})
		t.Marks = append(t.Marks, []cli.Mark{cli.MarkGood, cli.MarkNone, cli.MarkNone})
	}
	if len(r.Noise) > 0 {
		t.Rows = append(t.Rows, []string{"noise", strings.Join(r.Noise, ", "), ""})
		t.Marks = append(t.Marks, []cli.Mark{cli.MarkBad, cli.MarkNone, cli.MarkNone})
	}
	if r.Enrolled {
		t.Footer += ", groups enrolled"
	}
	return t
}

var clusterCmd = &cobra.Command{
	Use:   "cluster FILE FILE...",
	Short: "Group unlabeled recordings by speaker",
	Long: `Group recordings by speaker with density clustering.

Two recordings are neighbors when their cosine similarity reaches the model
threshold. Recordings close to too few others are reported as noise.
--enroll stores every group as a speaker named after its ID.`,
	Args: cobra.MinimumNArgs(2),
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
		vs := vectors(es)
		res, err := cluster.Group(vs, cluster.Options{
			Threshold:  p.cfg.Threshold,
			MinSamples: clusterMinSamples,
			Prefix:     clusterPrefix,
		})
		if err != nil {
			return err
		}

		out := ClusterResult{Threshold: p.cfg.Threshold, Groups: res.Clusters}
		for i, e := range es {
			out.Files = append(out.Files, e.File)
			if res.Labels[i] == cluster.Noise {
				out.Noise = append(out.Noise, e.File)
			}
		}
		if clusterEnroll && len(res.Clusters) > 0 {
			store, err := openStore(p.cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, g := range res.Clusters {
				members := make([][]float32, len(g.Members))
				for i, m := range g.Members {
					members[i] = vs[m]
				}
				if _, err := store.Enroll(cmd.Context(), g.ID, members...); err != nil {
					return err
				}
			}
			out.Enrolled = true
		}
		return printResult(out)
	},
}

func init() {
	addAudioFlags(clusterCmd)
	clusterCmd.Flags().IntVar(&clusterMinSamples, "min-samples", 2, "recordings needed to form a group")
	clusterCmd.Flags().StringVar(&clusterPrefix, "prefix", "speaker", "group ID prefix")
	clusterCmd.Flags().BoolVar(&clusterEnroll, "enroll", false, "enroll each group as a speaker")
	rootCmd.AddCommand(clusterCmd)
}
