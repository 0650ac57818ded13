package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Theme defines the CLI colors.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Good    lipgloss.Color
	Bad     lipgloss.Color
}

// DefaultTheme is the bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Good:    lipgloss.Color("#3fb950"),
	Bad:     lipgloss.Color("#f85149"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Good:   lipgloss.NewStyle().Foreground(t.Good).Padding(0, 1),
		Bad:    lipgloss.NewStyle().Foreground(t.Bad).Padding(0, 1),
	}
}

// Mark selects a highlight for a cell.
type Mark int

const (
	MarkNone Mark = iota
	MarkGood
	MarkBad
)

// Table is a titled grid of strings.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Marks, when set, is indexed like Rows.
	Marks [][]Mark
	// Footer is rendered dimmed below the table.
	Footer string
}

// Render draws the table with rounded borders.
func (t Table) Render(s Styles) string {
	tb := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			switch t.mark(row, col) {
			case MarkGood:
				return s.Good
			case MarkBad:
				return s.Bad
			}
			return s.Cell
		})

	out := tb.Render()
	if t.Title != "" {
		out = s.Title.Render(t.Title) + "\n" + out
	}
	if t.Footer != "" {
		out += "\n" + s.Help.Render(t.Footer)
	}
	return out
}

func (t Table) mark(row, col int) Mark {
	if row < 0 || row >= len(t.Marks) || col >= len(t.Marks[row]) {
		return MarkNone
	}
	return t.Marks[row][col]
}
