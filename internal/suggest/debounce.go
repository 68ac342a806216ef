package suggest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned by a debounced or in-flight call that a newer call replaced.
var ErrSuperseded = errors.New("superseded by newer request")

// Debouncer runs at most one pending call at a time. Each Do cancels the previous pending or
// running call and waits for the quiet period before running its own.
type Debouncer struct {
	delay time.Duration
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
}

// NewDebouncer returns a Debouncer with the given quiet period. A zero delay runs fn immediately
// but still supersedes older calls.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, after: time.After}
}

// Do supersedes any pending call, waits for the quiet period, then runs fn with a context that
// is cancelled if a newer Do or Cancel arrives. Returns ErrSuperseded if that happened at any
// point, ctx.Err() if the caller gave up, otherwise fn's error.
func (d *Debouncer) Do(ctx context.Context, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancelCause(ctx)

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel(ErrSuperseded)
	}
	d.gen++
	gen := d.gen
	d.cancel = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.gen == gen {
			d.cancel = nil
		}
		d.mu.Unlock()
		cancel(nil)
	}()

	if d.delay > 0 {
		select {
		case <-d.after(d.delay):
		case <-runCtx.Done():
			return stopReason(runCtx)
		}
	}
	if runCtx.Err() != nil {
		return stopReason(runCtx)
	}

	err := fn(runCtx)
	if errors.Is(context.Cause(runCtx), ErrSuperseded) {
		return ErrSuperseded
	}
	return err
}

// Cancel supersedes the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel(ErrSuperseded)
		d.cancel = nil
	}
}

func stopReason(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrSuperseded) {
		return ErrSuperseded
	}
	return ctx.Err()
}
