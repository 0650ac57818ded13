// Package main is the entry point for the speakernet CLI.
//
// Usage:
//
//	speakernet [flags] <command> [subcommand] [args]
//
// Commands:
//
//	presets    - List ResNet depth presets
//	inspect    - Show the configured network layout
//	embed      - Extract speaker embeddings from recordings
//	compare    - Pairwise similarity of recordings
//	cluster    - Group unlabeled recordings by speaker
//	track      - Follow who is speaking through a long recording
//	enroll     - Manage enrolled speakers (add, list, show, remove)
//	verify     - Check a recording against an enrolled speaker
//	identify   - Rank enrolled speakers for a recording
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/speakernet/cmd/speakernet/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
