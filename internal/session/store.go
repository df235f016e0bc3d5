package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrNoResults = errors.New("no results available")
)

// MemorySampler reports the resident memory of the current process.
type MemorySampler interface {
	RSS() (uint64, error)
}

type Option func(*Store)

// WithRetention sets how long terminal sessions are kept before Sweep
// removes them. Zero keeps them until the process exits.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithMemoryBudget makes Sweep evict the oldest terminal sessions while the
// sampled RSS is above budget bytes.
func WithMemoryBudget(sampler MemorySampler, budget uint64) Option {
	return func(s *Store) {
		s.sampler = sampler
		s.budget = budget
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the in-memory registry of analysis sessions. It owns every
// Session; callers outside the orchestrator only see Snapshots.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	retention time.Duration
	sampler   MemorySampler
	budget    uint64
	now       func() time.Time
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new running session for urls under a fresh id.
func (s *Store) Create(urls []string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	for _, taken := s.sessions[id]; taken; _, taken = s.sessions[id] {
		id = uuid.NewString()
	}
	sess := newSession(id, urls, s.now())
	s.sessions[id] = sess
	return sess
}

func (s *Store) lookup(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) Get(id string) (Snapshot, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return sess.Snapshot(), nil
}

// Cancel raises the cancellation flag of a running session. Cancelling a
// terminal or already cancelled session succeeds without effect.
func (s *Store) Cancel(id string) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	sess.Cancel()
	return nil
}

// Results returns a copy of the committed results in submission order.
func (s *Store) Results(id string) ([]Result, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Snapshot().Results, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if _, terminal := sess.terminalSince(); !terminal {
			count++
		}
	}
	return count
}

// Sweep drops terminal sessions past retention and, when over the memory
// budget, the oldest half of the remaining terminal sessions. Running
// sessions are never removed. It returns the number of sessions removed.
func (s *Store) Sweep(ctx context.Context) int {
	now := s.now()
	overBudget := s.overBudget(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	type ended struct {
		id string
		at time.Time
	}
	var terminal []ended
	removed := 0
	for id, sess := range s.sessions {
		at, ok := sess.terminalSince()
		if !ok {
			continue
		}
		if s.retention > 0 && now.Sub(at) >= s.retention {
			delete(s.sessions, id)
			removed++
			continue
		}
		terminal = append(terminal, ended{id, at})
	}

	if overBudget && len(terminal) > 0 {
		sort.Slice(terminal, func(i, j int) bool { return terminal[i].at.Before(terminal[j].at) })
		n := (len(terminal) + 1) / 2
		for _, e := range terminal[:n] {
			delete(s.sessions, e.id)
		}
		removed += n
		log.Info(ctx, log.KV{K: "msg", V: "evicted sessions over memory budget"}, log.KV{K: "count", V: n})
	}
	return removed
}

func (s *Store) overBudget(ctx context.Context) bool {
	if s.sampler == nil || s.budget == 0 {
		return false
	}
	rss, err := s.sampler.RSS()
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "memory sample failed"})
		return false
	}
	return rss > s.budget
}

// Run sweeps the store every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				log.Debugf(ctx, "swept %d sessions", n)
			}
		}
	}
}
