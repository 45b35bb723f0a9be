package model

import "time"

const defaultHistoryCap = 60

// CyclePoint summarizes one completed sync cycle.
type CyclePoint struct {
	Timestamp time.Time
	Duration  time.Duration
	Records   int // total records across present collections
	Fetched   int // collections fetched successfully
	Failed    int // collections that failed
	Cached    bool
}

// CycleHistory is a fixed-size ring buffer of CyclePoints.
// When the buffer is full, new pushes overwrite the oldest entry.
type CycleHistory struct {
	buf  []CyclePoint
	head int // index of the next write position
	size int // number of valid entries
}

// NewCycleHistory creates a CycleHistory with the given capacity.
// If capacity <= 0, defaultHistoryCap (60) is used.
func NewCycleHistory(capacity int) *CycleHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &CycleHistory{
		buf: make([]CyclePoint, capacity),
	}
}

// Push appends a new point to the history, overwriting the oldest if full.
func (h *CycleHistory) Push(p CyclePoint) {
	h.buf[h.head] = p
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// Len returns the number of valid entries in the history.
func (h *CycleHistory) Len() int {
	return h.size
}

// Clear resets the history to empty.
func (h *CycleHistory) Clear() {
	h.head = 0
	h.size = 0
}

// Last returns the most recent point, if any.
func (h *CycleHistory) Last() (CyclePoint, bool) {
	if h.size == 0 {
		return CyclePoint{}, false
	}
	return h.buf[(h.head-1+len(h.buf))%len(h.buf)], true
}

// Points returns the stored points in chronological order (oldest first).
func (h *CycleHistory) Points() []CyclePoint {
	out := make([]CyclePoint, h.size)
	// oldest entry sits at (head - size + cap) % cap
	start := (h.head - h.size + len(h.buf)) % len(h.buf)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}
