package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dm/dashsync/internal/engine"
	"github.com/dm/dashsync/internal/model"
)

// refreshTimeout bounds a user-requested refresh, including the wait for an
// in-flight cycle it joins.
const refreshTimeout = 2 * time.Minute

// Engine is the part of the sync engine the monitor drives.
type Engine interface {
	Refresh(ctx context.Context) (engine.Update, error)
	Interval() time.Duration
	Collections() []model.Collection
}

// Toggler pauses and resumes synchronization.
type Toggler interface {
	Toggle(ctx context.Context) (bool, error)
	Active() bool
}

// App is the root Bubble Tea model for the dashsync status monitor.
type App struct {
	engine  Engine
	toggler Toggler
	updates <-chan engine.Update
	now     func() time.Time

	// Sync state
	refreshing bool // true while a refreshCmd goroutine is in-flight
	seen       bool
	update     engine.Update
	history    *model.CycleHistory
	lastError  error
	active     bool
	closed     bool

	// Layout
	width, height int

	// UI state
	showHelp bool
	notice   string
}

// NewApp creates an App fed by updates. toggler may be nil, in which case
// the pause key is a no-op.
func NewApp(e Engine, toggler Toggler, updates <-chan engine.Update) *App {
	app := &App{
		engine:  e,
		toggler: toggler,
		updates: updates,
		now:     time.Now,
		history: model.NewCycleHistory(0),
	}
	if toggler != nil {
		app.active = toggler.Active()
	}
	return app
}

// Init implements tea.Model. Starts listening for engine updates.
func (app *App) Init() tea.Cmd {
	return waitForUpdate(app.updates)
}

// Update implements tea.Model. It is the single state-mutation entry point.
func (app *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		app.width = msg.Width
		app.height = msg.Height

	case UpdateMsg:
		app.apply(msg.Update)
		return app, waitForUpdate(app.updates)

	case updatesClosedMsg:
		app.closed = true
		app.notice = "engine stopped"

	case RefreshDoneMsg:
		app.refreshing = false
		if msg.Err != nil {
			app.notice = "refresh failed: " + classifyError(msg.Err)
			return app, nil
		}
		app.notice = ""
		app.apply(msg.Update)

	case ToggleMsg:
		app.active = msg.Active
		app.notice = ""
		if msg.Err != nil {
			app.notice = "pause/resume: " + classifyError(msg.Err)
			// A failed start leaves the controller inactive.
			if app.toggler != nil {
				app.active = app.toggler.Active()
			}
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return app, tea.Quit
		case key.Matches(msg, keys.Refresh):
			if app.refreshing || app.closed {
				return app, nil
			}
			app.refreshing = true
			return app, refreshCmd(app.engine)
		case key.Matches(msg, keys.Pause):
			if app.toggler == nil || app.closed {
				return app, nil
			}
			return app, toggleCmd(app.toggler)
		case key.Matches(msg, keys.Help):
			app.showHelp = !app.showHelp
		}
	}

	return app, nil
}

// apply records u unless it is older than the update already shown. Each
// cycle lands in the history once, even when it arrives both from the
// subscription and as a refresh result.
func (app *App) apply(u engine.Update) {
	if app.seen && u.Cycle < app.update.Cycle {
		return
	}
	fresh := !app.seen || u.Cycle > app.update.Cycle
	app.update = u
	app.seen = true
	app.lastError = u.LastError

	// Cycle 0 is the startup cache load, not a fetch.
	if fresh && u.Cycle > 0 {
		app.history.Push(model.CyclePoint{
			Timestamp: u.RefreshedAt,
			Duration:  u.Duration,
			Records:   u.Snapshot.TotalRecords(),
			Fetched:   max(len(app.collections())-len(u.Failures), 0),
			Failed:    len(u.Failures),
			Cached:    u.Origin == engine.OriginCached,
		})
	}
}

func (app *App) collections() []model.Collection {
	if app.engine == nil {
		return model.Collections()
	}
	return app.engine.Collections()
}

func (app *App) interval() time.Duration {
	if app.engine == nil {
		return 0
	}
	return app.engine.Interval()
}

// View implements tea.Model. Renders the full TUI.
func (app *App) View() string {
	var parts []string

	if h := renderHeader(app); h != "" {
		parts = append(parts, h)
	}
	if o := renderOverview(app); o != "" {
		parts = append(parts, o)
	}
	if m := renderMetricsRow(app); m != "" {
		parts = append(parts, m)
	}
	parts = append(parts, renderFooter(app))

	return strings.Join(parts, "\n")
}

// waitForUpdate blocks on the next engine update.
func waitForUpdate(updates <-chan engine.Update) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return UpdateMsg{Update: u}
	}
}

// refreshCmd runs one refresh through the engine, joining any cycle already
// in flight.
func refreshCmd(e Engine) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		u, err := e.Refresh(ctx)
		return RefreshDoneMsg{Update: u, Err: err}
	}
}

// toggleCmd flips the foreground/background state.
func toggleCmd(t Toggler) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		active, err := t.Toggle(ctx)
		return ToggleMsg{Active: active, Err: err}
	}
}
