package player

import (
	"context"
	"sync"
	"time"
)

// Housekeeping cadence.
const (
	stallCheckInterval      = 10 * time.Second
	inactivityCheckInterval = 5 * time.Minute
)

// Registry owns one [Session] per guild and runs the shared housekeeping
// loops: a frequent stall probe and a slower inactivity sweep. It carries
// no state beyond its sessions; dropping the registry drops everything.
type Registry struct {
	cfg SessionConfig
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a [Registry].
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry builds a registry whose sessions share cfg.
func NewRegistry(cfg SessionConfig, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the guild's session, creating it on first use.
func (r *Registry) Session(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if !ok {
		s = newSession(guildID, r.cfg, r.now)
		r.sessions[guildID] = s
	}
	return s
}

func (r *Registry) snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Start launches the housekeeping loops. They stop when ctx is done or
// [Registry.Shutdown] is called.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		stall := time.NewTicker(stallCheckInterval)
		defer stall.Stop()
		idle := time.NewTicker(inactivityCheckInterval)
		defer idle.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stall.C:
				for _, s := range r.snapshot() {
					go s.CheckStall(ctx)
				}
			case <-idle.C:
				for _, s := range r.snapshot() {
					s.CheckInactivity()
				}
			}
		}
	}()
}

// Shutdown stops housekeeping and tears down every session.
func (r *Registry) Shutdown() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	for _, s := range r.snapshot() {
		s.teardown()
	}
}
