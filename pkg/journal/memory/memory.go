// Package memory is an in-process journal store.
package memory

import (
	"context"
	"sort"
	"sync"

	"payflow/pkg/journal"
)

// Store keeps journal entries in a map. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]journal.Entry
	name    string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]journal.Entry),
		name:    "memory",
	}
}

// Record implements journal.Recorder.
func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[e.TransactionID]; ok {
		e = journal.Merge(prev, e)
	} else {
		e = journal.Merge(journal.Entry{}, e)
	}
	s.entries[e.TransactionID] = e
	return nil
}

// Get implements journal.Store.
func (s *Store) Get(ctx context.Context, transactionID string) (journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[transactionID]
	if !ok {
		return journal.Entry{}, journal.ErrNotFound
	}
	return e, nil
}

// Unresolved implements journal.Store.
func (s *Store) Unresolved(ctx context.Context, limit int) ([]journal.Entry, error) {
	s.mu.RLock()
	out := make([]journal.Entry, 0)
	for _, e := range s.entries {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Name implements journal.Store.
func (s *Store) Name() string {
	return s.name
}

// Close implements journal.Store.
func (s *Store) Close() error {
	return nil
}
