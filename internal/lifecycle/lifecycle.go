// Package lifecycle maps host activity signals onto the sync engine and the
// rendering surfaces.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Scheduler is the part of the engine driven by activity signals.
type Scheduler interface {
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
}

// Surfaces is the part of the bridge driven by activity signals.
type Surfaces interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Controller reacts to "became active" and "will resign active".
type Controller struct {
	engine   Scheduler
	surfaces Surfaces
	log      *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewController returns a Controller in the inactive state. surfaces may be nil.
func NewController(engine Scheduler, surfaces Surfaces, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{engine: engine, surfaces: surfaces, log: log.With("component", "lifecycle")}
}

// Active reports the last signal applied.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// BecameActive starts the schedule and resumes surfaces.
func (c *Controller) BecameActive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	started, err := c.engine.Start(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	c.active = true
	c.log.Info("became active", "started", started)
	if c.surfaces != nil {
		if err := c.surfaces.Resume(ctx); err != nil {
			return fmt.Errorf("resume surfaces: %w", err)
		}
	}
	return nil
}

// WillResignActive stops the schedule and suspends surfaces. Both steps run
// even if one fails.
func (c *Controller) WillResignActive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	stopped, err := c.engine.Stop(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("stop engine: %w", err))
	}
	if c.surfaces != nil {
		if err := c.surfaces.Suspend(ctx); err != nil {
			errs = append(errs, fmt.Errorf("suspend surfaces: %w", err))
		}
	}
	c.active = false
	c.log.Info("resigned active", "stopped", stopped)
	return errors.Join(errs...)
}

// Toggle flips between active and inactive and returns the new state.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	if c.Active() {
		return false, c.WillResignActive(ctx)
	}
	return true, c.BecameActive(ctx)
}
