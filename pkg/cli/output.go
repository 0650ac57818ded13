package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/vmihailenco/msgpack/v5"
)

// OutputFormat names an output encoding.
type OutputFormat string

const (
	// FormatYAML is the default.
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
	// FormatMsgpack writes binary msgpack, for piping into other tools.
	FormatMsgpack OutputFormat = "msgpack"
	// FormatTable renders results implementing Tabular with lipgloss.
	FormatTable OutputFormat = "table"
)

// Formats lists the accepted --format values.
var Formats = []OutputFormat{FormatYAML, FormatJSON, FormatMsgpack, FormatTable}

// ParseFormat validates a --format value.
func ParseFormat(s string) (OutputFormat, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("cli: unsupported output format %q (want yaml, json, msgpack or table)", s)
}

// Tabular is implemented by results that can render as a table.
type Tabular interface {
	Table() Table
}

// OutputOptions configures output behavior.
type OutputOptions struct {
	Format OutputFormat

	// File is the output path; empty means Writer or stdout.
	File string

	// Indent for JSON output. Default two spaces.
	Indent string

	// Writer overrides stdout when File is empty.
	Writer io.Writer

	// Styles for table output. Default NewStyles(DefaultTheme).
	Styles *Styles
}

// Output encodes result to the configured destination.
func Output(result any, opts OutputOptions) error {
	var w io.Writer = os.Stdout
	switch {
	case opts.File != "":
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("cli: create output file: %w", err)
		}
		defer f.Close()
		w = f
	case opts.Writer != nil:
		w = opts.Writer
	}

	switch opts.Format {
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatJSON:
		return outputJSON(w, result, opts.Indent)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(result)
	case FormatTable:
		t, ok := result.(Tabular)
		if !ok {
			return outputYAML(w, result)
		}
		styles := NewStyles(DefaultTheme)
		if opts.Styles != nil {
			styles = *opts.Styles
		}
		_, err := fmt.Fprintln(w, t.Table().Render(styles))
		return err
	default:
		return fmt.Errorf("cli: unsupported output format: %s", opts.Format)
	}
}

func outputJSON(w io.Writer, result any, indent string) error {
	enc := json.NewEncoder(w)
	if indent == "" {
		indent = "  "
	}
	enc.SetIndent("", indent)
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("cli: format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}
