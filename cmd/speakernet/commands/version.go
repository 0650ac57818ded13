package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakernet/cmd/speakernet/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatOutput == "table" && outputFile == "" {
			fmt.Println(build.String())
			if IsVerbose() {
				info := build.Get()
				fmt.Printf("  go:     %s\n", info.Go)
				if cfg, err := loadModelConfig(); err == nil {
					fmt.Printf("  model:  %s\n", cfg.Tag())
				} else {
					fmt.Printf("  model:  (unavailable: %v)\n", err)
				}
			}
			return nil
		}
		return printResult(build.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
