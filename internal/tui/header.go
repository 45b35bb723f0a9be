package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/engine"
	"github.com/dm/dashsync/internal/format"
)

const maxErrorWidth = 40

// renderHeader renders the top header bar with origin, refresh timing, and
// the last error.
//
// Layout:
//
//	left:   "dashsync  N collections" (plus "PAUSED" when inactive)
//	center: "● LIVE", "● CACHED" or "● AWAITING DATA", then the error if any
//	right:  "Last: HH:MM:SS (age)  Every: 8m20s"
func renderHeader(app *App) string {
	width := app.width
	if width <= 0 {
		width = 80
	}

	left := fmt.Sprintf("dashsync  %d collections", len(app.collections()))
	if app.toggler != nil && !app.active {
		left += "  " + StyleStatusYellow.Render("PAUSED")
	}

	center := originStyle(app.update.Origin).Render("● " + originLabel(app.update.Origin))
	if msg := classifyError(app.lastError); msg != "" {
		center += "  " + StyleError.Render(msg)
	}

	lastStr := "never"
	if !app.update.RefreshedAt.IsZero() {
		lastStr = app.update.RefreshedAt.Format("15:04:05") +
			" (" + format.FormatAge(app.update.RefreshedAt, app.now()) + ")"
	}
	right := StyleDim.Render(fmt.Sprintf("Last: %s  Every: %s", lastStr, format.FormatDuration(app.interval())))
	if app.refreshing {
		right = StyleCyan.Render("refreshing…") + "  " + right
	}

	// StyleHeader has Padding(0, 1) so inner content width = total width - 2.
	// Sections drop from the right, then the left, until the row fits on one line.
	innerWidth := width - 2
	row, ok := layoutRow(innerWidth, left, center, right)
	if !ok {
		row, ok = layoutRow(innerWidth, left, center, "")
	}
	if !ok {
		row, ok = layoutRow(innerWidth, "", center, "")
	}
	if !ok {
		label := []rune("● " + originLabel(app.update.Origin))
		row = originStyle(app.update.Origin).Render(string(label[:min(len(label), max(innerWidth, 0))]))
	}

	return StyleHeader.Width(width).Render(row)
}

// layoutRow spreads left, center and right across width, reporting false
// when they do not fit.
func layoutRow(width int, left, center, right string) (string, bool) {
	spacing := width - lipgloss.Width(left) - lipgloss.Width(center) - lipgloss.Width(right)
	if spacing < 0 {
		return "", false
	}
	leftSpacing := spacing / 2
	rightSpacing := spacing - leftSpacing

	return left +
		strings.Repeat(" ", leftSpacing) +
		center +
		strings.Repeat(" ", rightSpacing) +
		right, true
}

func originLabel(o engine.Origin) string {
	switch o {
	case engine.OriginLive:
		return "LIVE"
	case engine.OriginCached:
		return "CACHED"
	default:
		return "AWAITING DATA"
	}
}

func originStyle(o engine.Origin) lipgloss.Style {
	switch o {
	case engine.OriginLive:
		return StyleStatusGreen
	case engine.OriginCached:
		return StyleStatusYellow
	default:
		return StyleStatusUnknown
	}
}

// classifyError maps an error to a short, user-friendly message for the header.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	if errors.Is(err, engine.ErrClosed) {
		return "Engine stopped"
	}

	var ce *client.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case client.KindServer:
			switch ce.StatusCode {
			case 401, 403:
				return fmt.Sprintf("Authentication failed (%d)", ce.StatusCode)
			}
			return fmt.Sprintf("Server error (%d)", ce.StatusCode)
		case client.KindTransport:
			if isTLSError(ce.Err) {
				return "TLS error"
			}
			return "Network error"
		case client.KindDecode:
			return "Unexpected data format"
		case client.KindConfig:
			return "Invalid configuration"
		}
	}

	msg := sanitize(err.Error())
	if r := []rune(msg); len(r) > maxErrorWidth {
		return string(r[:maxErrorWidth]) + "..."
	}
	return msg
}

// isTLSError reports whether err looks like a certificate or handshake failure.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "x509") || strings.Contains(s, "certificate") || strings.Contains(s, "tls:")
}

// sanitize strips terminal escape sequences and control characters so
// server-provided text cannot break the layout. Newlines and tabs become spaces.
func sanitize(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\x1b':
			i = skipEscape(rs, i)
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// skipEscape returns the index of the last rune of the escape sequence
// starting at rs[i].
func skipEscape(rs []rune, i int) int {
	if i+1 >= len(rs) {
		return i
	}
	switch rs[i+1] {
	case '[': // CSI, ends at a final byte in 0x40–0x7E
		for j := i + 2; j < len(rs); j++ {
			if rs[j] >= 0x40 && rs[j] <= 0x7e {
				return j
			}
		}
	case ']': // OSC, ends at BEL or ST
		for j := i + 2; j < len(rs); j++ {
			if rs[j] == 0x07 {
				return j
			}
			if rs[j] == '\x1b' && j+1 < len(rs) && rs[j+1] == '\\' {
				return j + 1
			}
		}
	default:
		return i + 1
	}
	return len(rs) - 1
}
