package results

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DeafMist/log-census/internal/models"
)

// ErrAlreadyPublished is returned when a run publishes the same key twice.
var ErrAlreadyPublished = errors.New("result already published for run")

type entry struct {
	runID  string
	key    string
	record models.RunRecord
	ts     time.Time
}

// Store keeps the results published by recent runs, keyed by run and result
// key. Entries expire after ttl and the oldest are evicted past capacity.
type Store struct {
	mu       sync.Mutex
	items    map[string]entry
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store with the provided capacity and ttl.
func NewStore(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		items:    make(map[string]entry, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func slot(runID, key string) string {
	return runID + "/" + key
}

// Publish records rec under key for runID. Each (run, key) slot is write-once.
func (s *Store) Publish(_ context.Context, runID, key string, rec models.RunRecord) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id := slot(runID, key)
	if e, ok := s.items[id]; ok && now.Sub(e.ts) <= s.ttl {
		return ErrAlreadyPublished
	}

	e := entry{runID: runID, key: key, record: rec, ts: now}
	s.items[id] = e
	s.order = append(s.order, e)
	s.compact(now)
	return nil
}

// Get returns the record a run published under key.
func (s *Store) Get(runID, key string) (models.RunRecord, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[slot(runID, key)]
	if !ok || now.Sub(e.ts) > s.ttl {
		return models.RunRecord{}, false
	}
	return e.record, true
}

// Len reports how many entries are held, expired ones included until the
// next compaction.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) compact(now time.Time) {
	cutoff := now.Add(-s.ttl)

	for len(s.order) > 0 && (len(s.items) > s.capacity || s.order[0].ts.Before(cutoff)) {
		oldest := s.order[0]
		s.order = s.order[1:]

		id := slot(oldest.runID, oldest.key)
		if cur, ok := s.items[id]; ok {
			if cur.ts == oldest.ts {
				delete(s.items, id)
			}
		}
	}
}
