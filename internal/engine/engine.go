// Package engine runs the dashboard sync cycle: it fetches every configured
// collection on a fixed interval, assembles the results into a Snapshot,
// persists non-empty snapshots, falls back to the cache when a cycle returns
// nothing, and publishes the outcome to subscribers.
//
// All synchronization state is owned by the goroutine running Run. Start,
// Stop, and Refresh hand commands to it; readers use Current, Status, or a
// Subscription.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/model"
)

// DefaultInterval is the time between scheduled cycles.
const DefaultInterval = 500 * time.Second

var (
	// ErrClosed is returned by calls made after Run has returned.
	ErrClosed = errors.New("engine: closed")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("engine: Run already called")
)

// Cache persists the last non-empty snapshot. Load returns (nil, nil) when
// nothing is stored.
type Cache interface {
	Save(ctx context.Context, s *model.Snapshot) error
	Load(ctx context.Context) (*model.Snapshot, error)
}

// Origin tells where the published snapshot came from.
type Origin int

const (
	OriginNone Origin = iota
	OriginLive
	OriginCached
)

func (o Origin) String() string {
	switch o {
	case OriginLive:
		return "live"
	case OriginCached:
		return "cached"
	default:
		return "none"
	}
}

// Update is the engine state after one cycle, or after the startup cache load
// (Cycle 0).
type Update struct {
	Snapshot    *model.Snapshot
	Origin      Origin
	Cycle       uint64
	CycleID     string
	RefreshedAt time.Time
	Duration    time.Duration
	// LastError is set when the cycle produced no data.
	LastError error
	// Failures holds the per-collection errors of the cycle.
	Failures map[model.Collection]error
}

// Status is a point-in-time view of the synchronization state.
type Status struct {
	Running       bool
	InFlight      bool
	LastRefreshAt time.Time
	LastError     error
	Snapshot      *model.Snapshot
	Origin        Origin
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Interval     time.Duration
	Collections  []model.Collection
	CycleTimeout time.Duration
	Clock        Clock
	Logger       *slog.Logger
	Tracer       trace.Tracer
}

// Engine schedules and applies sync cycles.
type Engine struct {
	src   Source
	cache Cache
	opts  Options
	log   *slog.Logger

	cmds    chan command
	results chan cycleResult
	done    chan struct{}
	ran     atomic.Bool

	status  atomic.Pointer[Status]
	current atomic.Pointer[Update]

	subsMu     sync.Mutex
	subs       map[*Subscription]struct{}
	subsClosed bool
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdRefresh
)

type command struct {
	kind    commandKind
	changed chan bool
	waiter  chan Update
}

type cycleResult struct {
	seq      uint64
	id       string
	started  time.Time
	finished time.Time
	snapshot *model.Snapshot
	fallback *model.Snapshot
	failures map[model.Collection]error
}

// loopState is the synchronization state. Only Run touches it.
type loopState struct {
	running  bool
	ticker   Ticker
	inFlight bool
	started  uint64
	applied  uint64
	waiters  []chan Update

	lastRefreshAt time.Time
	lastErr       error
	snapshot      *model.Snapshot
	origin        Origin
}

// New returns an Engine reading from src and persisting to cache. cache may
// be nil. The engine does nothing until Run is called.
func New(src Source, cache Cache, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if len(opts.Collections) == 0 {
		opts.Collections = model.Collections()
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/dm/dashsync/internal/engine")
	}
	e := &Engine{
		src:     src,
		cache:   cache,
		opts:    opts,
		log:     opts.Logger.With("component", "engine"),
		cmds:    make(chan command),
		results: make(chan cycleResult, 1),
		done:    make(chan struct{}),
		subs:    make(map[*Subscription]struct{}),
	}
	e.status.Store(&Status{})
	return e
}

// Interval returns the scheduling interval.
func (e *Engine) Interval() time.Duration { return e.opts.Interval }

// Collections returns the collections fetched each cycle.
func (e *Engine) Collections() []model.Collection {
	return append([]model.Collection(nil), e.opts.Collections...)
}

// Status returns the latest synchronization state.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// Current returns the most recently published update.
func (e *Engine) Current() (Update, bool) {
	u := e.current.Load()
	if u == nil {
		return Update{}, false
	}
	return *u, true
}

// Start begins scheduled cycles and runs one immediately. It reports whether
// the engine was previously stopped.
func (e *Engine) Start(ctx context.Context) (bool, error) {
	return e.toggle(ctx, cmdStart)
}

// Stop cancels the schedule. A cycle already in flight still completes and is
// applied. It reports whether the engine was previously running.
func (e *Engine) Stop(ctx context.Context) (bool, error) {
	return e.toggle(ctx, cmdStop)
}

func (e *Engine) toggle(ctx context.Context, kind commandKind) (bool, error) {
	changed := make(chan bool, 1)
	if err := e.send(ctx, command{kind: kind, changed: changed}); err != nil {
		return false, err
	}
	select {
	case c := <-changed:
		return c, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-e.done:
		return false, ErrClosed
	}
}

// Refresh runs a cycle outside the schedule and returns the resulting state.
// If a cycle is already in flight the call waits for that one instead of
// starting another.
func (e *Engine) Refresh(ctx context.Context) (Update, error) {
	ch, err := e.requestRefresh(ctx)
	if err != nil {
		return Update{}, err
	}
	select {
	case u := <-ch:
		return u, nil
	case <-ctx.Done():
		return Update{}, ctx.Err()
	case <-e.done:
		return Update{}, ErrClosed
	}
}

// requestRefresh returns once the loop has accepted the request.
func (e *Engine) requestRefresh(ctx context.Context) (<-chan Update, error) {
	waiter := make(chan Update, 1)
	if err := e.send(ctx, command{kind: cmdRefresh, waiter: waiter}); err != nil {
		return nil, err
	}
	return waiter, nil
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	select {
	case e.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Run loads the cached snapshot, then serves commands, ticks, and cycle
// results until ctx is cancelled. The engine starts stopped.
func (e *Engine) Run(ctx context.Context) error {
	if !e.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	defer e.closeSubscriptions()

	st := &loopState{}
	e.loadCached(ctx, st)

	for {
		var tick <-chan time.Time
		if st.ticker != nil {
			tick = st.ticker.C()
		}

		select {
		case <-ctx.Done():
			if st.ticker != nil {
				st.ticker.Stop()
			}
			e.log.Debug("engine stopped", "reason", ctx.Err())
			return nil

		case cmd := <-e.cmds:
			e.handle(ctx, st, cmd)

		case <-tick:
			if st.inFlight {
				e.log.Debug("tick skipped, cycle in flight", "cycle", st.started)
				continue
			}
			e.startCycle(ctx, st)

		case res := <-e.results:
			e.apply(st, res)
		}
		e.publishStatus(st)
	}
}

func (e *Engine) handle(ctx context.Context, st *loopState, cmd command) {
	switch cmd.kind {
	case cmdStart:
		if st.running {
			cmd.changed <- false
			return
		}
		st.running = true
		st.ticker = e.opts.Clock.NewTicker(e.opts.Interval)
		e.log.Info("sync started", "interval", e.opts.Interval, "collections", len(e.opts.Collections))
		if !st.inFlight {
			e.startCycle(ctx, st)
		}
		cmd.changed <- true

	case cmdStop:
		if !st.running {
			cmd.changed <- false
			return
		}
		st.running = false
		st.ticker.Stop()
		st.ticker = nil
		e.log.Info("sync stopped", "in_flight", st.inFlight)
		cmd.changed <- true

	case cmdRefresh:
		st.waiters = append(st.waiters, cmd.waiter)
		if !st.inFlight {
			e.startCycle(ctx, st)
		}
	}
}

func (e *Engine) loadCached(ctx context.Context, st *loopState) {
	snap := e.loadCache(ctx)
	if snap == nil {
		return
	}
	st.snapshot = snap
	st.origin = OriginCached
	e.log.Info("loaded cached snapshot", "fetched_at", snap.FetchedAt(), "records", snap.TotalRecords())
	e.broadcast(Update{Snapshot: snap, Origin: OriginCached})
	e.publishStatus(st)
}

func (e *Engine) loadCache(ctx context.Context) *model.Snapshot {
	if e.cache == nil {
		return nil
	}
	snap, err := e.cache.Load(ctx)
	if err != nil {
		e.log.Warn("cache load failed", "err", err)
		return nil
	}
	if snap == nil || snap.IsEmpty() {
		return nil
	}
	return snap
}

func (e *Engine) startCycle(ctx context.Context, st *loopState) {
	st.started++
	st.inFlight = true
	seq := st.started
	id := uuid.NewString()
	var floor time.Time
	if st.snapshot != nil {
		floor = st.snapshot.FetchedAt()
	}

	go func() {
		e.results <- e.runCycle(ctx, seq, id, floor)
	}()
}

// runCycle performs one fetch cycle. It runs outside the loop goroutine and
// must not touch loopState. floor is the fetch time of the snapshot published
// when the cycle started; an older result is not written to the cache.
func (e *Engine) runCycle(ctx context.Context, seq uint64, id string, floor time.Time) cycleResult {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CycleTimeout)
	defer cancel()

	ctx, span := e.opts.Tracer.Start(ctx, "dashsync.cycle", trace.WithAttributes(
		attribute.Int64("cycle", int64(seq)),
		attribute.String("cycle.id", id),
	))
	defer span.End()

	res := cycleResult{seq: seq, id: id, started: e.opts.Clock.Now()}
	res.snapshot, res.failures = FetchAll(ctx, e.src, e.opts.Collections, e.opts.Tracer, e.opts.Clock.Now)
	res.finished = e.opts.Clock.Now()

	span.SetAttributes(
		attribute.Int("records", res.snapshot.TotalRecords()),
		attribute.Int("collections.failed", len(res.failures)),
	)

	if !res.snapshot.IsEmpty() {
		if e.cache != nil && !res.snapshot.FetchedAt().Before(floor) {
			if err := e.cache.Save(ctx, res.snapshot); err != nil {
				e.log.Warn("cache save failed", "cycle", seq, "err", err)
			}
		}
	} else {
		res.fallback = e.loadCache(ctx)
	}
	return res
}

func (e *Engine) apply(st *loopState, res cycleResult) {
	st.inFlight = false
	waiters := st.waiters
	st.waiters = nil

	if res.seq <= st.applied {
		e.log.Warn("discarding out-of-order cycle", "cycle", res.seq, "applied", st.applied)
		e.notify(waiters, e.stateUpdate(st, res))
		return
	}
	st.applied = res.seq
	st.lastRefreshAt = res.finished

	for c, err := range res.failures {
		e.log.Warn("collection fetch failed", "cycle", res.seq, "collection", c,
			"kind", client.KindOf(err), "retryable", client.IsRetryable(err), "err", err)
	}

	publish := false
	if !res.snapshot.IsEmpty() {
		st.lastErr = nil
		if e.newer(st, res.snapshot) {
			st.snapshot = res.snapshot
			st.origin = OriginLive
			publish = true
		}
	} else {
		st.lastErr = salient(res.failures)
		if res.fallback != nil && e.newer(st, res.fallback) {
			st.snapshot = res.fallback
			st.origin = OriginCached
			publish = true
		}
		e.log.Error("sync cycle produced no data", "cycle", res.seq, "err", st.lastErr, "fallback", res.fallback != nil)
	}

	u := e.stateUpdate(st, res)
	if publish || st.lastErr != nil {
		e.broadcast(u)
	}
	if publish {
		e.log.Info("snapshot published",
			"cycle", res.seq,
			"origin", st.origin,
			"records", st.snapshot.TotalRecords(),
			"failed", len(res.failures),
			"duration", u.Duration,
		)
	}
	e.notify(waiters, u)
}

// newer reports whether s may replace the published snapshot without moving
// it backwards in time.
func (e *Engine) newer(st *loopState, s *model.Snapshot) bool {
	if st.snapshot == nil || !s.FetchedAt().Before(st.snapshot.FetchedAt()) {
		return true
	}
	e.log.Warn("discarding snapshot older than published one",
		"fetched_at", s.FetchedAt(), "published", st.snapshot.FetchedAt())
	return false
}

func (e *Engine) stateUpdate(st *loopState, res cycleResult) Update {
	return Update{
		Snapshot:    st.snapshot,
		Origin:      st.origin,
		Cycle:       res.seq,
		CycleID:     res.id,
		RefreshedAt: res.finished,
		Duration:    res.finished.Sub(res.started),
		LastError:   st.lastErr,
		Failures:    res.failures,
	}
}

func (e *Engine) notify(waiters []chan Update, u Update) {
	for _, w := range waiters {
		w <- u
	}
}

func (e *Engine) publishStatus(st *loopState) {
	e.status.Store(&Status{
		Running:       st.running,
		InFlight:      st.inFlight,
		LastRefreshAt: st.lastRefreshAt,
		LastError:     st.lastErr,
		Snapshot:      st.snapshot,
		Origin:        st.origin,
	})
}

// salient picks the failure to report for a cycle where every collection
// failed. Transport beats server beats decode beats config.
func salient(failures map[model.Collection]error) error {
	rank := func(err error) int {
		switch client.KindOf(err) {
		case client.KindTransport:
			return 4
		case client.KindServer:
			return 3
		case client.KindDecode:
			return 2
		case client.KindConfig:
			return 1
		default:
			return 0
		}
	}
	var best error
	bestRank := -1
	// Collection order keeps the pick stable when ranks tie.
	for _, c := range model.Collections() {
		err, ok := failures[c]
		if !ok {
			continue
		}
		if r := rank(err); r > bestRank {
			best, bestRank = err, r
		}
	}
	if best == nil {
		return errors.New("no collections returned data")
	}
	return best
}
