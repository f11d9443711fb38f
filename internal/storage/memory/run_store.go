// Package memory provides in-memory storage implementations for tests
// and for running the pipeline without external databases.
package memory

import (
	"context"
	"sync"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   []*domain.RunRecord
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{nextID: 1}
}

// Insert records one finished run.
func (s *RunStore) Insert(_ context.Context, r *domain.RunRecord) error {
	if r == nil || r.Status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *r
	recCopy.ID = s.nextID
	s.nextID++
	s.runs = append(s.runs, &recCopy)
	r.ID = recCopy.ID
	return nil
}

// Latest retrieves up to limit runs, newest first.
func (s *RunStore) Latest(_ context.Context, limit int) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}

	out := make([]*domain.RunRecord, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		recCopy := *s.runs[i]
		out = append(out, &recCopy)
	}
	return out, nil
}

var _ storage.RunStore = (*RunStore)(nil)
