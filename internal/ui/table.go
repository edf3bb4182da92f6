package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// maxColumnWidth caps auto-sized columns so long descriptions don't wrap the
// whole table.
const maxColumnWidth = 48

// NewTable creates a non-focused Bubbles table with the CLI styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so the selected row must look like any other.
	s.Selected = s.Cell.Bold(false)

	t.SetStyles(s)
	return t
}

// AutoColumns sizes one column per title to fit the widest cell.
func AutoColumns(titles []string, rows [][]string) []TableColumn {
	cols := make([]TableColumn, len(titles))
	for i, title := range titles {
		width := lipgloss.Width(title)
		for _, row := range rows {
			if i < len(row) {
				width = max(width, lipgloss.Width(row[i]))
			}
		}
		cols[i] = TableColumn{Title: title, Width: min(width+1, maxColumnWidth)}
	}
	return cols
}

// RenderSimpleTable renders a non-interactive table string.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// ServerRow is one line of the servers listing.
type ServerRow struct {
	Name        string
	Address     string // user@host:port
	Auth        string
	Aliases     []string
	Description string
}

// RenderServerTable renders the configured servers.
func RenderServerTable(rows []ServerRow) string {
	if len(rows) == 0 {
		return MutedStyle().Render("No servers configured")
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{r.Name, r.Address, r.Auth, strings.Join(r.Aliases, ", "), r.Description}
	}
	titles := []string{"NAME", "ADDRESS", "AUTH", "ALIASES", "DESCRIPTION"}
	return RenderSimpleTable(AutoColumns(titles, cells), cells)
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}
