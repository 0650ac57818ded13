// Package cli provides the shared pieces of the speakernet command line:
// result output (YAML, JSON, msgpack, styled tables), human-readable
// formatting and the ~/.speakernet directory layout.
//
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
