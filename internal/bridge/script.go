package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Evaluator runs a script inside an embedded document.
type Evaluator interface {
	Evaluate(ctx context.Context, script string) error
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, script string) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, script string) error { return f(ctx, script) }

// TimerTrackingScript wraps setInterval and setTimeout so the ids of timers
// the document schedules can later be cleared by PauseScript. It is safe to
// evaluate more than once.
const TimerTrackingScript = `(function() {
  if (window._originalSetInterval) { return; }
  window._originalSetInterval = window.setInterval;
  window._originalSetTimeout = window.setTimeout;
  window._originalClearInterval = window.clearInterval;
  window._originalClearTimeout = window.clearTimeout;
  window._activeTimers = [];
  window.setInterval = function() {
    var id = window._originalSetInterval.apply(this, arguments);
    window._activeTimers.push(id);
    return id;
  };
  window.setTimeout = function() {
    var id = window._originalSetTimeout.apply(this, arguments);
    window._activeTimers.push(id);
    return id;
  };
})();`

// PauseScript clears every tracked timer.
const PauseScript = `(function() {
  if (!window._activeTimers) { return; }
  var clearI = window._originalClearInterval || window.clearInterval;
  var clearT = window._originalClearTimeout || window.clearTimeout;
  window._activeTimers.forEach(function(id) { clearI(id); clearT(id); });
  window._activeTimers = [];
})();`

// ResumeScript calls the document's refresh hook when it defines one.
const ResumeScript = `(function() {
  if (typeof window.refreshData === 'function') { window.refreshData(); }
})();`

// InjectScript returns a script that publishes payload to the document as
// window.centralizedDashboardData, dispatches a dashboardDataUpdated event
// carrying it, and calls window.onDashboardDataUpdate when defined.
func InjectScript(payload string) (string, error) {
	lit, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("quote payload: %w", err)
	}
	return fmt.Sprintf(`(function() {
  window.centralizedDashboardData = JSON.parse(%s);
  window.dispatchEvent(new CustomEvent('dashboardDataUpdated', { detail: window.centralizedDashboardData }));
  if (typeof window.onDashboardDataUpdate === 'function') {
    window.onDashboardDataUpdate(window.centralizedDashboardData);
  }
})();`, lit), nil
}

// ScriptSurface drives an embedded document through script evaluation.
type ScriptSurface struct {
	id   string
	eval Evaluator

	mu        sync.Mutex
	installed bool
}

// NewScriptSurface returns a surface named id evaluating scripts with eval.
func NewScriptSurface(id string, eval Evaluator) *ScriptSurface {
	return &ScriptSurface{id: id, eval: eval}
}

func (s *ScriptSurface) ID() string { return s.id }

// Install evaluates the timer tracking script. Later calls reuse the first
// successful install until Reset. Inject and Suspend install on demand, but
// timers a document starts before the install are not tracked, so hosts
// call Install as soon as a document loads and Reset then Install again
// after every navigation.
func (s *ScriptSurface) Install(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return nil
	}
	if err := s.eval.Evaluate(ctx, TimerTrackingScript); err != nil {
		return fmt.Errorf("install timer tracking: %w", err)
	}
	s.installed = true
	return nil
}

// Reset forgets the install, e.g. after the document navigated away.
func (s *ScriptSurface) Reset() {
	s.mu.Lock()
	s.installed = false
	s.mu.Unlock()
}

func (s *ScriptSurface) Inject(ctx context.Context, payload string) error {
	script, err := InjectScript(payload)
	if err != nil {
		return err
	}
	if err := s.Install(ctx); err != nil {
		return err
	}
	return s.eval.Evaluate(ctx, script)
}

func (s *ScriptSurface) Suspend(ctx context.Context) error {
	if err := s.Install(ctx); err != nil {
		return err
	}
	return s.eval.Evaluate(ctx, PauseScript)
}

func (s *ScriptSurface) Resume(ctx context.Context) error {
	return s.eval.Evaluate(ctx, ResumeScript)
}
