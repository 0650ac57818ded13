package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/resnet"
)

var (
	inspectDepth  string
	inspectParams bool
	presetsCount  bool
)

// StageInfo describes one residual stage.
type StageInfo struct {
	Name        string `json:"name" yaml:"name" msgpack:"name"`
	Blocks      int    `json:"blocks" yaml:"blocks" msgpack:"blocks"`
	InPlanes    int    `json:"in_planes" yaml:"in_planes" msgpack:"in_planes"`
	OutPlanes   int    `json:"out_planes" yaml:"out_planes" msgpack:"out_planes"`
	Stride      int    `json:"stride" yaml:"stride" msgpack:"stride"`
	Projections int    `json:"projections" yaml:"projections" msgpack:"projections"`
	FreqRows    int    `json:"freq_rows" yaml:"freq_rows" msgpack:"freq_rows"`
}

// ParamInfo is one named parameter.
type ParamInfo struct {
	Name  string `json:"name" yaml:"name" msgpack:"name"`
	Shape []int  `json:"shape" yaml:"shape" msgpack:"shape"`
}

// ModelInfo is the result of "inspect".
type ModelInfo struct {
	Tag        string        `json:"tag" yaml:"tag" msgpack:"tag"`
	Network    resnet.Config `json:"network" yaml:"network" msgpack:"network"`
	NumParams  int           `json:"num_params" yaml:"num_params" msgpack:"num_params"`
	StatsDim   int           `json:"stats_dim" yaml:"stats_dim" msgpack:"stats_dim"`
	HeadInDim  int           `json:"head_in_dim" yaml:"head_in_dim" msgpack:"head_in_dim"`
	MinFrames  int           `json:"min_frames" yaml:"min_frames" msgpack:"min_frames"`
	MinSamples int           `json:"min_samples" yaml:"min_samples" msgpack:"min_samples"`
	Penalty    bool          `json:"penalty" yaml:"penalty" msgpack:"penalty"`
	Stages     []StageInfo   `json:"stages" yaml:"stages" msgpack:"stages"`
	Params     []ParamInfo   `json:"params,omitempty" yaml:"params,omitempty" msgpack:"params,omitempty"`
}

// Table implements cli.Tabular.
func (m ModelInfo) Table() cli.Table {
	t := cli.Table{
		Title:   m.Tag,
		Headers: []string{"stage", "blocks", "in", "out", "stride", "projections", "freq rows"},
		Footer: fmt.Sprintf("%s params, stats %d, head in %d, embed %d, min %d frames (%d samples)",
			cli.FormatCount(m.NumParams), m.StatsDim, m.HeadInDim, m.Network.EmbedDim, m.MinFrames, m.MinSamples),
	}
	for _, s := range m.Stages {
		t.Rows = append(t.Rows, []string{
			s.Name, strconv.Itoa(s.Blocks), strconv.Itoa(s.InPlanes), strconv.Itoa(s.OutPlanes),
			strconv.Itoa(s.Stride), strconv.Itoa(s.Projections), strconv.Itoa(s.FreqRows),
		})
	}
	for _, p := range m.Params {
		t.Rows = append(t.Rows, []string{p.Name, strings.Trim(fmt.Sprint(p.Shape), "[]"), "", "", "", "", ""})
	}
	return t
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the network layout and parameter counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		if inspectDepth != "" {
			d, err := resnet.ParseDepth(inspectDepth)
			if err != nil {
				return err
			}
			cfg.Depth = int(d)
			preset, err := d.Config(cfg.Network.FeatDim, cfg.Network.EmbedDim, cfg.Network.NStats)
			if err != nil {
				return err
			}
			cfg.Network.Block, cfg.Network.NumBlocks = preset.Block, preset.NumBlocks
		}
		model, err := cfg.Build(nil)
		if err != nil {
			return err
		}
		defer model.Close()

		net := model.Network()
		info := ModelInfo{
			Tag:        cfg.Tag(),
			Network:    net.Config(),
			NumParams:  net.NumParams(),
			StatsDim:   net.Config().StatsDim(),
			HeadInDim:  net.Config().HeadInDim(),
			MinFrames:  net.MinFrames(),
			MinSamples: model.MinSamples(),
			Penalty:    net.HasPenalty(),
		}
		freq := net.Config().FeatDim
		for i, s := range net.Backbone().Stages {
			freq = (freq-1)/s.Stride() + 1
			si := StageInfo{
				Name:      fmt.Sprintf("layer%d", i+1),
				Blocks:    len(s.Blocks),
				InPlanes:  s.InPlanes(),
				OutPlanes: s.OutPlanes(),
				Stride:    s.Stride(),
				FreqRows:  freq,
			}
			for _, b := range s.Blocks {
				if !b.Shortcut().IsIdentity() {
					si.Projections++
				}
			}
			info.Stages = append(info.Stages, si)
		}
		if inspectParams {
			for name, v := range net.Params() {
				info.Params = append(info.Params, ParamInfo{Name: name, Shape: v.Shape})
			}
		}
		return printResult(info)
	},
}

// Preset is one row of "presets".
type Preset struct {
	Name      string `json:"name" yaml:"name" msgpack:"name"`
	Block     string `json:"block" yaml:"block" msgpack:"block"`
	NumBlocks []int  `json:"num_blocks" yaml:"num_blocks" msgpack:"num_blocks"`
	HeadInDim int    `json:"head_in_dim" yaml:"head_in_dim" msgpack:"head_in_dim"`
	NumParams int    `json:"num_params,omitempty" yaml:"num_params,omitempty" msgpack:"num_params,omitempty"`
}

// PresetList is the result of "presets".
type PresetList []Preset

// Table implements cli.Tabular.
func (l PresetList) Table() cli.Table {
	t := cli.Table{
		Title:   "presets",
		Headers: []string{"name", "block", "blocks", "head in", "params"},
	}
	for _, p := range l {
		params := "-"
		if p.NumParams > 0 {
			params = cli.FormatCount(p.NumParams)
		}
		t.Rows = append(t.Rows, []string{
			p.Name, p.Block, strings.Trim(fmt.Sprint(p.NumBlocks), "[]"), strconv.Itoa(p.HeadInDim), params,
		})
	}
	return t
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the ResNet depth presets",
	Long: `List the ResNet18/34/50/101/152 layouts at the configured feature and
embedding sizes. --count builds each network to count its parameters.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadModelConfig()
		if err != nil {
			return err
		}
		n := cfg.Network
		var out PresetList
		for _, d := range resnet.Depths() {
			c, err := d.Config(n.FeatDim, n.EmbedDim, n.NStats)
			if err != nil {
				return err
			}
			c.MChannels = n.MChannels
			p := Preset{Name: d.String(), Block: string(c.Block), NumBlocks: c.NumBlocks, HeadInDim: c.HeadInDim()}
			if presetsCount {
				net, err := resnet.New(c, resnet.WithSeed(cfg.Seed))
				if err != nil {
					return fmt.Errorf("%s: %w", d, err)
				}
				p.NumParams = net.NumParams()
			}
			out = append(out, p)
		}
		return printResult(out)
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDepth, "depth", "", "override the layout with a preset (18, 34, 50, 101, 152)")
	inspectCmd.Flags().BoolVar(&inspectParams, "params", false, "list every parameter with its shape")
	presetsCmd.Flags().BoolVar(&presetsCount, "count", false, "build each preset and count its parameters")
	rootCmd.AddCommand(inspectCmd, presetsCmd)
}
