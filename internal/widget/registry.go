package widget

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry maps browser session ids to Widgets and evicts sessions idle longer than ttl.
type Registry struct {
	factory func() *Widget
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	widget   *Widget
	lastSeen time.Time
}

// NewRegistry creates a Registry. factory builds the Widget for a new session.
func NewRegistry(factory func() *Widget, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Acquire returns the Widget for id, creating one when id is unknown. Ids that are not
// valid UUIDs are replaced with a fresh one; the returned id is the one to hand back to the client.
func (r *Registry) Acquire(id string) (string, *Widget) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &session{widget: r.factory()}
		r.sessions[id] = s
	}
	s.lastSeen = r.now()
	return id, s.widget
}

// Lookup returns the Widget for an existing session without creating one.
func (r *Registry) Lookup(id string) (*Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = r.now()
	return s.widget, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict removes sessions idle longer than ttl and returns how many were removed.
func (r *Registry) Evict() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Evict(); n > 0 {
				r.logger.Debug("evicted idle sessions", zap.Int("count", n), zap.Int("remaining", r.Len()))
			}
		}
	}
}
