package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/dashsync/internal/format"
	"github.com/dm/dashsync/internal/model"
)

// minMetricCardWidth leaves room for a short title beside the border and padding.
const minMetricCardWidth = 12

// metricCard is one history card: its title, current value and the metric
// plotted under it.
type metricCard struct {
	title      string
	value      string
	metric     cycleMetric
	color      lipgloss.Color
	titleStyle lipgloss.Style
}

// renderMetricCard renders a single metric card with title, value, and sparkline.
//
// Layout (3 rows inside a rounded border):
//
//	╭──────────────────╮
//	│ Title            │   ← titleStyle (dim, red when the metric is failing)
//	│ 1.2s             │   ← bold, metric color
//	│ ▁▂▃▅▇█░▅▃▂       │   ← sparkline, ░ for cached cycles
//	╰──────────────────╯
//
// Title and value are cut to one line so every card stays three rows tall.
func renderMetricCard(card metricCard, points []model.CyclePoint, cardWidth int) string {
	cardWidth = max(cardWidth, minMetricCardWidth)

	// Inner width = card width minus border (2) and padding (2), less the
	// padding lipgloss counts inside Width().
	innerWidth := cardWidth - 6

	valueStyle := lipgloss.NewStyle().Bold(true).Foreground(card.color)

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorGray).
		Padding(0, 1).
		Width(cardWidth - 4)

	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		card.titleStyle.Render(ellipsize(card.title, innerWidth)),
		valueStyle.Render(ellipsize(card.value, innerWidth)),
		renderCycleSparkline(points, card.metric, innerWidth, card.color),
	))
}

// renderMetricsRow renders the sync history cards (Cycle Duration, Records,
// Failed Collections) under a "Sync History" label.
// Wide terminals (>= 80 cols): 1x3 horizontal row.
// Narrow terminals (< 80 cols): cards stacked vertically.
// Returns empty string until a cycle has completed.
func renderMetricsRow(app *App) string {
	last, ok := app.history.Last()
	if !ok {
		return ""
	}
	points := app.history.Points()

	failedTitle := StyleDim
	if last.Failed > 0 {
		failedTitle = StyleRed
	}
	records := format.FormatNumber(int64(last.Records))
	if last.Cached {
		records += " (cached)"
	}

	cards := []metricCard{
		{"Cycle Duration", format.FormatDuration(last.Duration), durationMetric, colorCyan, StyleDim},
		{"Records", records, recordsMetric, colorGreen, StyleDim},
		{"Failed Collections", fmt.Sprintf("%d of %d", last.Failed, last.Failed+last.Fetched), failedMetric, colorRed, failedTitle},
	}

	if app.width > 0 && app.width < 80 {
		// Each card renders at (cardWidth-2) chars wide, so cardWidth=app.width+2
		// fills the terminal. Too narrow for the minimum card: render nothing.
		cardWidth := app.width + 2
		if cardWidth < minMetricCardWidth {
			return ""
		}
		parts := []string{StyleDim.Render(ellipsize("Sync History", app.width))}
		for _, c := range cards {
			parts = append(parts, renderMetricCard(c, points, cardWidth))
		}
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	// For 3 cards to fill app.width: 3*(cardWidth-2)=app.width → cardWidth=(app.width+6)/3.
	cardWidth := max((app.width+6)/3, 20)
	rendered := make([]string, len(cards))
	for i, c := range cards {
		rendered[i] = renderMetricCard(c, points, cardWidth)
	}
	return lipgloss.JoinVertical(lipgloss.Left, StyleDim.Render("Sync History"),
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
}

// ellipsize cuts s to at most width cells, ending in "…" when shortened.
func ellipsize(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width == 1 {
		return "…"
	}
	return string(r[:min(len(r), width-1)]) + "…"
}
