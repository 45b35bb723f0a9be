package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/dashsync/internal/model"
)

// sparkLevels are the eight bar heights of a sparkline cell.
var sparkLevels = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// cachedGlyph marks a cycle that fell back to the cached snapshot. Its value
// says nothing about the backend, so it is drawn apart from the bars.
const cachedGlyph = '░'

// cycleMetric extracts the plotted value of one cycle.
type cycleMetric func(model.CyclePoint) float64

func durationMetric(p model.CyclePoint) float64 { return p.Duration.Seconds() }
func recordsMetric(p model.CyclePoint) float64  { return float64(p.Records) }
func failedMetric(p model.CyclePoint) float64   { return float64(p.Failed) }

// renderCycleSparkline plots metric for the newest width cycles, oldest on
// the left, in exactly width cells. Missing history is left-padded with
// spaces. Bars scale to the largest value among live cycles; cached cycles
// render as cachedGlyph in the dim style.
func renderCycleSparkline(points []model.CyclePoint, metric cycleMetric, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	var peak float64
	for _, p := range points {
		if !p.Cached {
			peak = max(peak, metric(p))
		}
	}

	live := lipgloss.NewStyle().Foreground(color)
	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", width-len(points)))
	for _, p := range points {
		if p.Cached {
			sb.WriteString(StyleDim.Render(string(cachedGlyph)))
			continue
		}
		sb.WriteString(live.Render(string(sparkLevels[level(metric(p), peak)])))
	}
	return sb.String()
}

// level maps v onto a bar height relative to peak. Non-positive peaks and
// values sit at the floor.
func level(v, peak float64) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	idx := int(v / peak * float64(len(sparkLevels)-1))
	return min(max(idx, 0), len(sparkLevels)-1)
}
