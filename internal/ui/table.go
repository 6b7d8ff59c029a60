package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const maxCellWidth = 40

// RenderTable renders rows under a muted header, with each column as wide
// as its widest cell. The first column is styled as an ID.
func RenderTable(columns []string, rows [][]string) string {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = runeWidth(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], min(runeWidth(cell), maxCellWidth))
			}
		}
	}

	headerCol := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	cells := make([]string, len(columns))
	total := 0
	for i, c := range columns {
		cells[i] = lipgloss.NewStyle().Width(widths[i] + 2).Render(headerCol.Render(strings.ToUpper(c)))
		total += widths[i] + 2
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	sb.WriteString("\n")
	sb.WriteString(Muted.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i := range columns {
			var cell string
			if i < len(row) {
				cell = truncateString(row[i], maxCellWidth)
			}
			if i == 0 {
				cell = ID.Render(cell)
			}
			cells[i] = lipgloss.NewStyle().Width(widths[i] + 2).Render(cell)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		sb.WriteString("\n")
	}
	return sb.String()
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// runeWidth returns the visual width of a string (counting runes, not bytes).
func runeWidth(s string) int {
	return len([]rune(s))
}
