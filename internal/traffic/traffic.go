package traffic

import (
	"sync"
	"time"
)

// DefaultMaxAge bounds how far back a Tracker keeps samples.
const DefaultMaxAge = 5 * time.Minute

// Counts is a snapshot of outcomes inside one window.
type Counts struct {
	Successes int
	Errors    int
	Denied    int
}

// Total is every recorded request in the window, denials included.
func (c Counts) Total() int {
	return c.Successes + c.Errors + c.Denied
}

// ErrorPct is the share of served requests (denials excluded) that failed, 0-100.
func (c Counts) ErrorPct() float64 {
	served := c.Successes + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

// Tracker keeps sliding windows of weather fetch outcomes and rate-limit denials.
// It feeds the overloaded and degraded health states. Safe for concurrent use; nil-safe on record.
type Tracker struct {
	maxAge time.Duration
	now    func() time.Time

	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker retaining samples for maxAge (DefaultMaxAge if <= 0).
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// RecordSuccess records a fetch that reached a definite answer (found or not found).
func (t *Tracker) RecordSuccess() {
	t.record(func() *[]time.Time { return &t.successTimes })
}

// RecordError records a fetch that failed in transport.
func (t *Tracker) RecordError() {
	t.record(func() *[]time.Time { return &t.errorTimes })
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(func() *[]time.Time { return &t.deniedTimes })
}

func (t *Tracker) record(slice func() *[]time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	s := slice()
	*s = append(*s, now)
	t.pruneLocked(now)
}

// Window returns the outcome counts recorded within the last window.
func (t *Tracker) Window(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return Counts{
		Successes: countSince(t.successTimes, cutoff),
		Errors:    countSince(t.errorTimes, cutoff),
		Denied:    countSince(t.deniedTimes, cutoff),
	}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops samples older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
