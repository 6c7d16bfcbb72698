package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/lily/plugin/ai"
)

// Config holds the eviction limits of a Store. Zero disables a limit.
type Config struct {
	MaxSessions int           // Maximum number of live sessions (LRU eviction)
	IdleTTL     time.Duration // Sessions untouched for longer are removed by CleanupExpired
}

// Store is the in-memory ConversationStore.
// Thread-safe for concurrent access.
type Store struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front is most recently used
}

type entry struct {
	id         string
	transcript *Transcript
	sem        *semaphore.Weighted
	refs       int // leases held or awaited; entries with refs > 0 are never evicted
	lastAccess time.Time
	element    *list.Element
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
		order:   list.New(),
	}
}

// GetOrCreate returns the transcript for sessionID, creating it on first reference.
func (s *Store) GetOrCreate(sessionID string) *Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(sessionID).transcript
}

// Acquire waits until no other lease is held on sessionID and returns a lease
// holding its transcript. The caller must call Release.
func (s *Store) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	s.mu.Lock()
	e := s.getOrCreateLocked(sessionID)
	e.refs++
	s.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		e.refs--
		s.mu.Unlock()
		return nil, err
	}

	return &Lease{
		SessionID:  sessionID,
		Transcript: e.transcript,
		store:      s,
		entry:      e,
	}, nil
}

// Snapshot returns a copy of the session's turns without touching its access time.
func (s *Store) Snapshot(sessionID string) ([]ai.Turn, bool) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	s.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.transcript.Turns(), true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CleanupExpired removes sessions idle for longer than IdleTTL.
// Leased sessions are kept regardless of age.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.cfg.IdleTTL <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for _, e := range s.entries {
		if e.refs == 0 && now.Sub(e.lastAccess) > s.cfg.IdleTTL {
			s.removeLocked(e)
			removed++
		}
	}
	return removed, nil
}

// getOrCreateLocked must be called with s.mu held.
func (s *Store) getOrCreateLocked(sessionID string) *entry {
	now := s.now()

	if e, ok := s.entries[sessionID]; ok {
		e.lastAccess = now
		s.order.MoveToFront(e.element)
		return e
	}

	for s.cfg.MaxSessions > 0 && len(s.entries) >= s.cfg.MaxSessions {
		if !s.evictOldestLocked() {
			slog.Warn("session capacity exceeded, all sessions are in use",
				"max_sessions", s.cfg.MaxSessions,
				"sessions", len(s.entries))
			break
		}
	}

	e := &entry{
		id:         sessionID,
		transcript: &Transcript{},
		sem:        semaphore.NewWeighted(1),
		lastAccess: now,
	}
	e.element = s.order.PushFront(e)
	s.entries[sessionID] = e
	return e
}

// evictOldestLocked removes the least recently used session that is not leased.
// Must be called with s.mu held.
func (s *Store) evictOldestLocked() bool {
	for el := s.order.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.refs > 0 {
			continue
		}
		s.removeLocked(e)
		slog.Debug("session evicted", "session_id", e.id)
		return true
	}
	return false
}

// removeLocked must be called with s.mu held.
func (s *Store) removeLocked(e *entry) {
	s.order.Remove(e.element)
	delete(s.entries, e.id)
}

// Lease grants exclusive use of one session's transcript.
type Lease struct {
	SessionID  string
	Transcript *Transcript

	store *Store
	entry *entry
	once  sync.Once
}

// Release ends the lease. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.entry.sem.Release(1)

		l.store.mu.Lock()
		l.entry.lastAccess = l.store.now()
		l.entry.refs--
		l.store.mu.Unlock()
	})
}

// Ensure Store implements ConversationStore
var _ ConversationStore = (*Store)(nil)
