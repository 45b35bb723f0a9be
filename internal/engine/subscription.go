package engine

import "sync"

// Subscription delivers published updates. Only the latest undelivered
// update is kept: a slow reader skips intermediate updates but always sees
// the newest one.
type Subscription struct {
	e      *Engine
	mu     sync.Mutex
	ch     chan Update
	closed bool
}

// Updates returns the delivery channel. It is closed by Close or when the
// engine's Run returns.
func (s *Subscription) Updates() <-chan Update {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.e.subsMu.Lock()
	delete(s.e.subs, s)
	s.e.subsMu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// offer replaces any pending update with u. Never blocks.
func (s *Subscription) offer(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- u
}

// Subscribe registers a new subscription. If an update has already been
// published it is delivered immediately.
func (e *Engine) Subscribe() *Subscription {
	s := &Subscription{e: e, ch: make(chan Update, 1)}

	e.subsMu.Lock()
	if e.subsClosed {
		e.subsMu.Unlock()
		s.close()
		return s
	}
	defer e.subsMu.Unlock()
	e.subs[s] = struct{}{}
	if u := e.current.Load(); u != nil {
		s.offer(*u)
	}
	return s
}

func (e *Engine) broadcast(u Update) {
	e.current.Store(&u)

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for s := range e.subs {
		s.offer(u)
	}
}

func (e *Engine) closeSubscriptions() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subsClosed = true
	for s := range e.subs {
		s.close()
	}
	e.subs = nil
}
