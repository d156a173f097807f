package session

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxTurns is the per-session exchange cap; history keeps at most
	// 2x this many turns (one user and one assistant turn per exchange).
	DefaultMaxTurns = 10
	// DefaultTTL is how long an idle session survives before the sweep
	// removes it.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is the fixed cadence of the background sweep.
	DefaultSweepInterval = 5 * time.Minute
)

// Turn is one conversation turn.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Options configures a Store. Zero values fall back to the defaults above.
type Options struct {
	MaxTurns      int
	TTL           time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type entry struct {
	turns      []Turn
	lastActive time.Time
}

// Store holds per-session conversation history in memory. Sessions are
// created on first AddTurn, truncated FIFO to 2x MaxTurns entries, and
// removed by a background sweep once idle beyond the TTL. Callers always
// receive copies; the Store exclusively owns the backing slices.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	maxTurns int
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a session store and starts its background sweep.
func NewStore(opts Options) *Store {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		sessions: make(map[string]*entry),
		maxTurns: opts.MaxTurns,
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
	go s.sweepLoop(opts.SweepInterval)
	return s
}

// Get returns a copy of the session's history, empty if unknown. Reading an
// existing session refreshes its last-activity timestamp.
func (s *Store) Get(id string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	e.lastActive = s.now()

	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// AddTurn appends a turn, creating the session if absent, and truncates
// history to the most recent 2x MaxTurns entries.
func (s *Store) AddTurn(id, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		e = &entry{turns: make([]Turn, 0, 2*s.maxTurns)}
		s.sessions[id] = e
	}
	e.turns = append(e.turns, Turn{Role: role, Text: text})
	if limit := 2 * s.maxTurns; len(e.turns) > limit {
		e.turns = append(e.turns[:0], e.turns[len(e.turns)-limit:]...)
	}
	e.lastActive = s.now()
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle beyond the TTL and reports how many were
// removed. The background loop calls this on a fixed interval; it is
// exported so tests and operational tooling can trigger it directly.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Close halts the background sweep. Remaining sessions are left untouched;
// the store is memory-only by design. Safe to call once during shutdown.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("swept idle sessions", "removed", n)
			}
		}
	}
}
