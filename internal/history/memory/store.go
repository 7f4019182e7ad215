// Package memory is an in-memory history store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hl-fury/xai-narrative-service/internal/history"
)

// Store is an in-memory implementation of history.Store
type Store struct {
	mu      sync.RWMutex
	records map[string]*history.Record
}

var _ history.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{records: make(map[string]*history.Record)}
}

func (s *Store) Save(ctx context.Context, rec *history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, history.ErrNotFound
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, opts history.ListOptions) ([]*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*history.Record
	for _, rec := range s.records {
		if opts.Dataset != "" && rec.Dataset != opts.Dataset {
			continue
		}
		result = append(result, rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return history.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*history.Record)
	return nil
}

func (s *Store) Close() error { return nil }
