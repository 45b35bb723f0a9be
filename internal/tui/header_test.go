package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/engine"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"deadline", context.DeadlineExceeded, "Timeout"},
		{"wrapped deadline", fmt.Errorf("refresh: %w", context.DeadlineExceeded), "Timeout"},
		{"engine closed", engine.ErrClosed, "Engine stopped"},
		{"401", &client.Error{Kind: client.KindServer, StatusCode: 401}, "Authentication failed (401)"},
		{"403", &client.Error{Kind: client.KindServer, StatusCode: 403}, "Authentication failed (403)"},
		{"503", &client.Error{Kind: client.KindServer, StatusCode: 503}, "Server error (503)"},
		{"connection refused", &client.Error{Kind: client.KindTransport, Err: errors.New("dial tcp: connection refused")}, "Network error"},
		{"certificate", &client.Error{Kind: client.KindTransport, Err: errors.New("x509: certificate signed by unknown authority")}, "TLS error"},
		{"decode", &client.Error{Kind: client.KindDecode, Err: errors.New("bad json")}, "Unexpected data format"},
		{"config", &client.Error{Kind: client.KindConfig, Err: errors.New("empty order column")}, "Invalid configuration"},
		{"short unknown", errors.New("some random error"), "some random error"},
		{"long unknown", errors.New(strings.Repeat("a", 52)), strings.Repeat("a", 40) + "..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyError(tc.err))
		})
	}
}

func TestIsTLSError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("connection refused"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"certificate", errors.New("x509: certificate expired"), true},
		{"handshake", errors.New("remote error: tls: handshake failure"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTLSError(tc.err))
		})
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty string", "", ""},
		{"plain text passthrough", "hello world", "hello world"},
		{"CSI color reset stripped", "\x1b[0m", ""},
		{"CSI color sequence stripped, text preserved", "\x1b[31mred\x1b[0m", "red"},
		{"OSC terminated by BEL stripped", "\x1b]0;title\x07text", "text"},
		{"OSC terminated by ST stripped", "\x1b]0;title\x1b\\text", "text"},
		{"single char escape stripped", "\x1bA", ""},
		{"lone ESC at end stripped", "hello\x1b", "hello"},
		{"C1 control U+0084 stripped", "a\xc2\x84b", "ab"},
		{"DEL 0x7F stripped", "a\x7fb", "ab"},
		{"NUL control 0x01 stripped", "a\x01b", "ab"},
		{"newline becomes space", "line1\nline2", "line1 line2"},
		{"mixed safe and unsafe", "hello\x1b[31m world", "hello world"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sanitize(tc.input))
		})
	}
}

// headerLineCount returns the number of lines in a rendered header string
// (ANSI-stripped), treating a single-line result as count=1.
func headerLineCount(rendered string) int {
	stripped := stripANSI(rendered)
	return strings.Count(stripped, "\n") + 1
}

func TestRenderHeader_AwaitingData(t *testing.T) {
	app, _, _ := newTestApp()
	app.width = 120

	result := stripANSI(renderHeader(app))
	assert.Contains(t, result, "AWAITING DATA")
	assert.Contains(t, result, "Last: never")
	assert.Contains(t, result, "Every: 8m20s")
}

func TestRenderHeader_Live(t *testing.T) {
	app, _, _ := newTestApp()
	app.width = 120
	u := makeFixtureUpdate(1)
	u.RefreshedAt = fixtureTime
	app.Update(UpdateMsg{Update: u})

	result := stripANSI(renderHeader(app))
	assert.Contains(t, result, "LIVE")
	assert.Contains(t, result, "Last: 14:32:05 (1m ago)")
	assert.Equal(t, 1, headerLineCount(renderHeader(app)))
	assert.Equal(t, 120, lipgloss.Width(renderHeader(app)))
}

func TestRenderHeader_CachedWithError(t *testing.T) {
	app, _, _ := newTestApp()
	app.width = 140
	u := makeFixtureUpdate(2)
	u.Origin = engine.OriginCached
	u.LastError = &client.Error{Kind: client.KindTransport, Err: errors.New("connection refused")}
	app.Update(UpdateMsg{Update: u})

	result := stripANSI(renderHeader(app))
	assert.Contains(t, result, "CACHED")
	assert.Contains(t, result, "Network error")
}

func TestRenderHeader_Paused(t *testing.T) {
	app, _, _ := newTestApp()
	app.width = 120
	app.active = false

	assert.Contains(t, stripANSI(renderHeader(app)), "PAUSED")
}

func TestRenderHeader_NarrowWidths(t *testing.T) {
	for _, width := range []int{60, 30, 12} {
		t.Run(fmt.Sprint(width), func(t *testing.T) {
			app, _, _ := newTestApp()
			app.width = width
			u := makeFixtureUpdate(1)
			u.LastError = errors.New("a fairly long error message from the server")
			app.Update(UpdateMsg{Update: u})
			app.refreshing = true

			result := renderHeader(app)
			assert.Equal(t, 1, headerLineCount(result), "header must be single line at width=%d", width)
			assert.Equal(t, width, lipgloss.Width(result), "rendered header must fill terminal width exactly")
		})
	}
}

func TestOriginLabel(t *testing.T) {
	assert.Equal(t, "LIVE", originLabel(engine.OriginLive))
	assert.Equal(t, "CACHED", originLabel(engine.OriginCached))
	assert.Equal(t, "AWAITING DATA", originLabel(engine.OriginNone))
}

// Refreshing is visible in the header while a refresh runs.
func TestRenderHeader_Refreshing(t *testing.T) {
	app, _, _ := newTestApp()
	app.width = 140
	app.refreshing = true
	assert.Contains(t, stripANSI(renderHeader(app)), "refreshing")

	app.refreshing = false
	app.Update(RefreshDoneMsg{Update: makeFixtureUpdate(1)})
	assert.NotContains(t, stripANSI(renderHeader(app)), "refreshing")
}
