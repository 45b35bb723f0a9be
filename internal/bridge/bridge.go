// Package bridge hands published snapshots to rendering surfaces and relays
// suspend/resume to them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dm/dashsync/internal/engine"
	"github.com/dm/dashsync/internal/model"
)

// Surface is one rendering target.
type Surface interface {
	ID() string
	// Inject delivers a serialized snapshot payload.
	Inject(ctx context.Context, payload string) error
	// Suspend halts the surface's own periodic work.
	Suspend(ctx context.Context) error
	// Resume lets the surface restart its periodic work.
	Resume(ctx context.Context) error
}

// Exporter is implemented by surfaces that also take each collection they
// read as a standalone JSON array, delivered right after the full payload.
type Exporter interface {
	Exports() []model.Collection
	Export(ctx context.Context, c model.Collection, data string) error
}

var (
	ErrUnknownSurface   = errors.New("bridge: unknown surface")
	ErrDuplicateSurface = errors.New("bridge: surface already attached")
)

// Stats describes deliveries to one surface.
type Stats struct {
	Active          bool
	Delivered       uint64
	Skipped         uint64 // identical to the last delivered payload
	Failed          uint64
	LastDeliveredAt time.Time
	LastError       error
}

type attachment struct {
	surface Surface
	visible bool

	// mu serializes deliveries to the surface and guards the fields below.
	mu        sync.Mutex
	delivered string
	hasSent   bool
	stats     Stats
}

// Bridge fans the latest payload out to attached surfaces. A surface receives
// a payload only while it is active: visible and not suspended. Consecutive
// identical payloads are delivered once. A failed delivery is retried on the
// next Publish or activation.
type Bridge struct {
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	surfaces  map[string]*attachment
	latest     string
	latestSnap *model.Snapshot
	hasLatest  bool
	suspended bool
}

// New returns an empty Bridge. A nil logger uses slog.Default.
func New(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		log:      log.With("component", "bridge"),
		now:      time.Now,
		surfaces: make(map[string]*attachment),
	}
}

// Attach registers s. A visible surface gets the latest payload right away.
func (b *Bridge) Attach(ctx context.Context, s Surface, visible bool) error {
	b.mu.Lock()
	if _, ok := b.surfaces[s.ID()]; ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSurface, s.ID())
	}
	a := &attachment{surface: s, visible: visible}
	b.surfaces[s.ID()] = a
	b.mu.Unlock()

	b.log.Debug("surface attached", "surface", s.ID(), "visible", visible)
	return b.deliver(ctx, a)
}

// Detach unregisters the surface with the given id.
func (b *Bridge) Detach(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.surfaces[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSurface, id)
	}
	delete(b.surfaces, id)
	return nil
}

// Activate marks a surface visible, resumes it, and delivers the latest
// payload if it has not seen it.
func (b *Bridge) Activate(ctx context.Context, id string) error {
	a, wasActive, err := b.setVisible(id, true)
	if err != nil {
		return err
	}
	if !wasActive && b.isActive(a) {
		if err := a.surface.Resume(ctx); err != nil {
			b.log.Warn("surface resume failed", "surface", id, "err", err)
		}
	}
	return b.deliver(ctx, a)
}

// Deactivate marks a surface hidden and suspends it.
func (b *Bridge) Deactivate(ctx context.Context, id string) error {
	a, wasActive, err := b.setVisible(id, false)
	if err != nil {
		return err
	}
	if wasActive {
		if err := a.surface.Suspend(ctx); err != nil {
			return fmt.Errorf("suspend %s: %w", id, err)
		}
	}
	return nil
}

func (b *Bridge) setVisible(id string, visible bool) (*attachment, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.surfaces[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownSurface, id)
	}
	wasActive := a.visible && !b.suspended
	a.visible = visible
	return a, wasActive, nil
}

// Suspend suspends every active surface and holds deliveries until Resume.
func (b *Bridge) Suspend(ctx context.Context) error {
	b.mu.Lock()
	if b.suspended {
		b.mu.Unlock()
		return nil
	}
	b.suspended = true
	targets := b.visibleLocked()
	b.mu.Unlock()

	var errs []error
	for _, a := range targets {
		if err := a.surface.Suspend(ctx); err != nil {
			errs = append(errs, fmt.Errorf("suspend %s: %w", a.surface.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Resume resumes every visible surface and delivers the latest payload to
// any that missed it.
func (b *Bridge) Resume(ctx context.Context) error {
	b.mu.Lock()
	if !b.suspended {
		b.mu.Unlock()
		return nil
	}
	b.suspended = false
	targets := b.visibleLocked()
	b.mu.Unlock()

	var errs []error
	for _, a := range targets {
		if err := a.surface.Resume(ctx); err != nil {
			b.log.Warn("surface resume failed", "surface", a.surface.ID(), "err", err)
		}
		if err := b.deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish serializes snap and delivers it to every active surface. Nil
// snapshots are ignored.
func (b *Bridge) Publish(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return nil
	}
	payload, err := model.MarshalPayload(snap)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.latest = payload
	b.latestSnap = snap
	b.hasLatest = true
	targets := b.visibleLocked()
	b.mu.Unlock()

	var errs []error
	for _, a := range targets {
		if err := b.deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run publishes every update received until ctx is done or updates closes.
func (b *Bridge) Run(ctx context.Context, updates <-chan engine.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := b.Publish(ctx, u.Snapshot); err != nil {
				b.log.Warn("publish incomplete", "cycle", u.Cycle, "err", err)
			}
		}
	}
}

// Stats returns delivery statistics for one surface.
func (b *Bridge) Stats(id string) (Stats, error) {
	b.mu.Lock()
	a, ok := b.surfaces[id]
	active := ok && a.visible && !b.suspended
	b.mu.Unlock()
	if !ok {
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownSurface, id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stats
	st.Active = active
	return st, nil
}

// Surfaces returns the ids of attached surfaces, sorted.
func (b *Bridge) Surfaces() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.surfaces))
	for id := range b.surfaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bridge) visibleLocked() []*attachment {
	out := make([]*attachment, 0, len(b.surfaces))
	for _, a := range b.surfaces {
		if a.visible {
			out = append(out, a)
		}
	}
	return out
}

func (b *Bridge) isActive(a *attachment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return a.visible && !b.suspended
}

// deliver sends the latest payload to a if it is active and has not already
// received it. The payload is read under a's lock so concurrent deliveries
// never leave an older payload as the last one injected.
func (b *Bridge) deliver(ctx context.Context, a *attachment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b.mu.Lock()
	payload, snap, ok := b.latest, b.latestSnap, b.hasLatest
	active := a.visible && !b.suspended
	b.mu.Unlock()
	if !ok || !active {
		return nil
	}
	if a.hasSent && a.delivered == payload {
		a.stats.Skipped++
		return nil
	}

	id := a.surface.ID()
	if err := inject(ctx, a.surface, payload, snap); err != nil {
		a.stats.Failed++
		a.stats.LastError = err
		b.log.Warn("delivery failed", "surface", id, "err", err)
		return fmt.Errorf("deliver %s: %w", id, err)
	}
	a.delivered = payload
	a.hasSent = true
	a.stats.Delivered++
	a.stats.LastDeliveredAt = b.now()
	a.stats.LastError = nil
	b.log.Debug("payload delivered", "surface", id, "bytes", len(payload))
	return nil
}

// inject hands payload to s, then each exported collection of snap when s
// is an Exporter.
func inject(ctx context.Context, s Surface, payload string, snap *model.Snapshot) error {
	if err := s.Inject(ctx, payload); err != nil {
		return err
	}
	ex, ok := s.(Exporter)
	if !ok {
		return nil
	}
	for _, c := range ex.Exports() {
		data, err := model.MarshalCollection(snap, c)
		if err != nil {
			return err
		}
		if err := ex.Export(ctx, c, data); err != nil {
			return fmt.Errorf("export %s: %w", c, err)
		}
	}
	return nil
}
