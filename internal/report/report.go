// Package report renders the summary printed after a one-shot patch run.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"codepatch/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	okStyle = cellStyle.Foreground(lipgloss.Color("81"))

	cachedStyle = cellStyle.Foreground(lipgloss.Color("240")) // Grey

	failStyle = cellStyle.Foreground(lipgloss.Color("208")) // Orange

	totalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

var headers = []string{"TARGET", "PATH", "VISITED", "PATCHED", "SKIPPED", "FAILED", "STATUS"}

const statusColumn = 6

// Styled reports whether output to fd should carry colors.
func Styled(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Status summarizes how a target went.
func Status(t model.Target) string {
	switch {
	case t.Err != nil:
		return "error"
	case t.Stats.Cached:
		return "cached"
	case t.Stats.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Render formats r as a table, one row per target plus a totals line.
func Render(r model.Report, styled bool) string {
	rows := make([][]string, 0, len(r.Targets))
	for _, t := range r.Targets {
		rows = append(rows, []string{
			t.Kind,
			t.Path,
			strconv.Itoa(t.Stats.Visited),
			strconv.Itoa(t.Stats.Patched),
			strconv.Itoa(t.Stats.Skipped),
			strconv.Itoa(t.Stats.Failed),
			Status(t),
		})
	}

	total := r.Totals()
	totals := fmt.Sprintf("%d targets, %d files visited, %d patched, %d failed",
		len(r.Targets), total.Visited, total.Patched, total.Failed)

	if !styled {
		return plain(rows) + totals + "\n"
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("63"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != statusColumn || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row][col] {
			case "ok":
				return okStyle
			case "cached":
				return cachedStyle
			default:
				return failStyle
			}
		})

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("codepatch"),
		tbl.Render(),
		totalStyle.Render(totals),
	) + "\n"
}

// plain aligns columns with spaces and no escape sequences.
func plain(rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	line := func(cells []string) {
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		b.WriteByte('\n')
	}

	line(headers)
	for _, row := range rows {
		line(row)
	}
	return b.String()
}
