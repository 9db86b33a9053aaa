package baseline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It is
// suitable for tests and single-node deployments without Postgres.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

// userRecord holds one user's active baseline and archive.
type userRecord struct {
	active   *Baseline
	archived []Archived
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]*userRecord)}
}

// Active implements [Store.Active].
func (s *MemStore) Active(_ context.Context, userID string) (Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok || rec.active == nil {
		return Baseline{}, ErrNoActiveBaseline
	}
	return *rec.active, nil
}

// Install implements [Store.Install]. The archive and install steps happen
// under one lock acquisition, so readers never observe an intermediate
// state.
func (s *MemStore) Install(_ context.Context, b Baseline, archivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[b.UserID]
	if !ok {
		rec = &userRecord{}
		s.users[b.UserID] = rec
	}

	if rec.active != nil {
		rec.archived = append(rec.archived, Archived{
			Baseline:   *rec.active,
			ArchivedAt: archivedAt,
			ReplacedBy: b.ID,
		})
	}
	installed := b
	rec.active = &installed
	return nil
}

// History implements [Store.History].
func (s *MemStore) History(_ context.Context, userID string) ([]Archived, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]Archived, len(rec.archived))
	copy(out, rec.archived)
	sort.Slice(out, func(i, j int) bool {
		return out[i].ArchivedAt.After(out[j].ArchivedAt)
	})
	return out, nil
}
