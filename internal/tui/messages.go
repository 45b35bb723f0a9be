package tui

import "github.com/dm/dashsync/internal/engine"

// UpdateMsg delivers an engine update published to the subscription.
type UpdateMsg struct{ Update engine.Update }

// RefreshDoneMsg reports the outcome of a user-requested refresh.
type RefreshDoneMsg struct {
	Update engine.Update
	Err    error
}

// ToggleMsg reports the outcome of a pause/resume request.
type ToggleMsg struct {
	Active bool
	Err    error
}

// updatesClosedMsg signals that the engine closed the subscription.
type updatesClosedMsg struct{}
