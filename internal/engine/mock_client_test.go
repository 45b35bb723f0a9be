package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dm/dashsync/internal/client"
	"github.com/dm/dashsync/internal/model"
)

// mockSource implements Source for testing. FetchFn, when set, handles every
// call; otherwise each collection returns one record.
type mockSource struct {
	FetchFn func(ctx context.Context, c model.Collection) ([]model.Record, error)

	calls    atomic.Int64
	active   atomic.Int64
	maxSeen  atomic.Int64
	gate     chan struct{} // when non-nil, every call blocks until it is closed
	entered  chan model.Collection
	perCallN sync.Map // model.Collection -> *atomic.Int64
}

func (m *mockSource) FetchCollection(ctx context.Context, c model.Collection) ([]model.Record, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	v, _ := m.perCallN.LoadOrStore(c, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)

	if m.entered != nil {
		m.entered <- c
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FetchFn != nil {
		return m.FetchFn(ctx, c)
	}
	return records(c, 1), nil
}

func (m *mockSource) callsFor(c model.Collection) int64 {
	v, ok := m.perCallN.Load(c)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// records builds n records of the shape c holds, with every mandatory field
// set so they survive a cache round trip.
func records(c model.Collection, n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		plant := fmt.Sprintf("plant-%d", i+1)
		switch c {
		case model.CollectionChameleonInventory:
			out[i] = model.ChameleonInventory{PlantName: plant, A1010: float64(i), LastUpdatedAt: baseTime}
		case model.CollectionAdmixInventory:
			out[i] = model.AdmixInventory{PlantName: plant, ProductName: "Glenium", CurrentStock: float64(i), Unit: "gal", LastUpdatedAt: baseTime}
		case model.CollectionConcreteDemand, model.CollectionAsphaltDemand:
			out[i] = model.ProductDemand{ShipDate: "2025-10-15", PlantID: i + 1, PlantDescription: plant,
				ProductNumber: "P1", ProductDescription: "Mix", Quantity: 10, Unit: "yd", LastUpdatedAt: baseTime}
		case model.CollectionRawMaterialDemands:
			out[i] = model.RawMaterialDemand{PlantName: plant, MaterialCategory: "agg", MaterialName: "sand",
				DemandDate: "2025-10-15", QuantityTons: 5, LastUpdatedAt: baseTime}
		case model.CollectionPowderDemand:
			out[i] = model.PowderDemand{ID: plant, PlantID: plant, LastUpdatedAt: baseTime}
		default:
			out[i] = model.DriverSchedule{LastUpdatedAt: baseTime}
		}
	}
	return out
}

func transportErr(c model.Collection) error {
	return &client.Error{Kind: client.KindTransport, Collection: c, Err: errors.New("connection refused")}
}

func serverErr(c model.Collection) error {
	return &client.Error{Kind: client.KindServer, Collection: c, StatusCode: 503, Body: "unavailable", Err: errors.New("unexpected status 503")}
}

func decodeErr(c model.Collection) error {
	return &client.Error{Kind: client.KindDecode, Collection: c, Err: errors.New("not an array")}
}

var errMockFailure = errors.New("mock failure")

// fakeClock hands out tickers that only fire when Tick is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{d: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *fakeClock) lastTicker() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// Tick fires every live ticker and returns once the engine has received each
// tick. It returns false if no ticker took the tick within a second.
func (c *fakeClock) Tick() bool {
	c.mu.Lock()
	live := make([]*fakeTicker, 0, len(c.tickers))
	for _, t := range c.tickers {
		if !t.stopped.Load() {
			live = append(live, t)
		}
	}
	now := c.now
	c.mu.Unlock()

	delivered := false
	for _, t := range live {
		select {
		case t.ch <- now:
			delivered = true
		case <-time.After(time.Second):
		}
	}
	return delivered
}

type fakeTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }
