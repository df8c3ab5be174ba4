package handshake

import (
	"context"
	"sync"
	"time"

	"tg-amnesia/internal/models"
)

// MemoryStore keeps pending requests in a process-local map.
type MemoryStore struct {
	pending map[string]models.PendingErasure
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]models.PendingErasure)}
}

func (s *MemoryStore) Get(_ context.Context, requesterID string) (*models.PendingErasure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[requesterID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Create(_ context.Context, p *models.PendingErasure) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[p.RequesterID]; ok {
		return false, nil
	}
	s.pending[p.RequesterID] = *p
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, requesterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[requesterID]; !ok {
		return false, nil
	}
	delete(s.pending, requesterID)
	return true, nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(s.pending, id)
			removed++
		}
	}
	return removed, nil
}

// Len is the number of pending requests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
