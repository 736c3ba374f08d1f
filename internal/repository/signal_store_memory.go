package repository

import (
	"context"
	"sync"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
)

// MemorySignalStore keeps the newest signals in process. Older signals are
// evicted once capacity is reached.
type MemorySignalStore struct {
	capacity int

	mu    sync.RWMutex
	order []string
	rows  map[string]*models.Signal
}

func NewMemorySignalStore(capacity int) *MemorySignalStore {
	if capacity <= 0 {
		capacity = 5000
	}
	return &MemorySignalStore{capacity: capacity, rows: make(map[string]*models.Signal)}
}

func (s *MemorySignalStore) Insert(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.rows[sig.ID]; dup {
		return nil
	}
	cp := sig
	s.rows[sig.ID] = &cp
	s.order = append(s.order, sig.ID)
	if over := len(s.order) - s.capacity; over > 0 {
		for _, id := range s.order[:over] {
			delete(s.rows, id)
		}
		s.order = append([]string(nil), s.order[over:]...)
	}
	return nil
}

func (s *MemorySignalStore) ListRecent(_ context.Context, n int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.order) {
		n = len(s.order)
	}
	out := make([]models.Signal, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.rows[s.order[i]])
	}
	return out, nil
}

// SaveResult is a compare-and-set from pending to a terminal result.
func (s *MemorySignalStore) SaveResult(_ context.Context, id string, u models.ResultUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.rows[id]
	if !ok {
		return domrepo.ErrSignalNotFound
	}
	if sig.Result.Terminal() {
		return domrepo.ErrAlreadyResolved
	}
	sig.Result = u.Result
	sig.FinalPrice = u.FinalPrice
	return nil
}

var _ domrepo.SignalStore = (*MemorySignalStore)(nil)
