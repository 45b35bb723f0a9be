package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dm/dashsync/internal/format"
	"github.com/dm/dashsync/internal/model"
)

// renderOverview renders one card per synchronized collection with its record
// count, or a placeholder when the collection is absent from the published
// snapshot. A collection that failed in the last cycle has a red title.
// Cards share a row as long as the longest title still fits on one line;
// otherwise they wrap into balanced rows. Narrow terminals (< 80 cols) use
// at most 2 cards per row. Titles are cut with "…" only when a single card
// is wider than the terminal.
func renderOverview(app *App) string {
	cols := app.collections()
	if len(cols) == 0 {
		return ""
	}

	width := app.width
	if width <= 0 {
		width = 80
	}

	titleWidth := 0
	for _, c := range cols {
		titleWidth = max(titleWidth, lipgloss.Width(c.Title()))
	}

	perRow := len(cols)
	if width < 80 {
		perRow = min(2, len(cols))
	}
	// A card's content is its width minus 2 columns of padding.
	for perRow > 1 && width/perRow-2 < titleWidth {
		perRow--
	}
	rowCount := (len(cols) + perRow - 1) / perRow
	perRow = (len(cols) + rowCount - 1) / rowCount
	cardWidth := max(width/perRow, 10)

	snap := app.update.Snapshot
	cards := make([]string, len(cols))
	for i, c := range cols {
		cards[i] = renderCollectionCard(c, snap, app.update.Failures[c] != nil, cardWidth, collectionColors[i%len(collectionColors)])
	}

	var rows []string
	for start := 0; start < len(cards); start += perRow {
		end := min(start+perRow, len(cards))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderCollectionCard(c model.Collection, snap *model.Snapshot, failed bool, width int, color lipgloss.Color) string {
	value := format.FormatCount(snap.Count(c), snap.Has(c))

	valueStyle := lipgloss.NewStyle().Bold(true).Foreground(color)
	if !snap.Has(c) {
		valueStyle = StyleDim
	}
	titleStyle := StyleDim
	if failed {
		titleStyle = StyleRed
	}

	// Keep every card two lines tall so rows line up.
	title := titleStyle.Render(ellipsize(c.Title(), width-2))
	return StyleOverviewCard.
		Width(width).
		Render(valueStyle.Render(value) + "\n" + title)
}
