package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/cmd/speakernet/internal/config"
	"github.com/haivivi/speakernet/pkg/cli"
	"github.com/haivivi/speakernet/pkg/enroll"
)

var (
	// Global flags
	verbose      bool
	formatOutput string
	outputFile   string
	modelFile    string
	storeDir     string
)

var rootCmd = &cobra.Command{
	Use:   "speakernet",
	Short: "ResNet speaker embeddings from the command line",
	Long: `speakernet - extract, enroll and verify speaker embeddings.

Audio is read from WAV files or raw 16-bit PCM and brought to 16 kHz mono.
Features are log mel filterbanks; the network is a ResNet with statistics
pooling and a two-layer embedding head.

The model is described by a YAML file (default ~/.speakernet/model.yaml).
Without one, a ResNet34 over 80-bin features is used. Enrolled speakers are
kept in a BadgerDB under ~/.speakernet/enroll.

Examples:
  # Inspect the network
  speakernet inspect

  # Enroll a speaker from two recordings, then verify a third
  speakernet enroll add alice alice1.wav alice2.wav
  speakernet verify alice unknown.wav

  # Pairwise similarity of several recordings
  speakernet compare a.wav b.wav c.wav`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		_, err := cli.ParseFormat(formatOutput)
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&formatOutput, "format", "table", "output format: yaml, json, msgpack or table")
	pf.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	pf.StringVar(&modelFile, "model", "", "model config file (default ~/.speakernet/model.yaml)")
	pf.StringVar(&storeDir, "store", "", "enrollment database directory (default ~/.speakernet/enroll)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// printResult writes result in the --format/--output selection.
func printResult(result any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
		Writer: os.Stdout,
	})
}

// loadModelConfig reads --model or the default model file.
func loadModelConfig() (*config.Model, error) {
	path := modelFile
	if path == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, fmt.Errorf("model config: %w", err)
		}
		path = paths.ModelFile()
	}
	return config.Load(path)
}

// openStore opens the enrollment database for cfg's model tag.
func openStore(cfg *config.Model) (*enroll.Store, error) {
	dir := storeDir
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, fmt.Errorf("enroll store: %w", err)
		}
		if err := paths.EnsureBaseDir(); err != nil {
			return nil, fmt.Errorf("enroll store: %w", err)
		}
		dir = paths.StoreDir()
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}
	return enroll.Open(enroll.Options{
		Dir:       dir,
		Model:     cfg.Tag(),
		Threshold: cfg.Threshold,
		Hasher:    hasher,
		Logger:    slog.Default(),
	})
}
