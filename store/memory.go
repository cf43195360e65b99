package store

import (
	"context"
	"sort"
	"sync"

	"github.com/neuroshield/neuroshield/automation"
)

// MemoryStore implements Store in process memory. Used for tests and
// database-less development.
type MemoryStore struct {
	mu      sync.RWMutex
	actions map[string]*automation.Action
}

// NewMemoryStore initializes an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[string]*automation.Action)}
}

func (s *MemoryStore) SaveAction(ctx context.Context, a *automation.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) UpdateAction(ctx context.Context, a *automation.Action) error {
	return s.SaveAction(ctx, a)
}

func (s *MemoryStore) GetAction(ctx context.Context, id string) (*automation.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListActions(ctx context.Context, device string, limit int) ([]*automation.Action, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	all := make([]*automation.Action, 0, len(s.actions))
	for _, a := range s.actions {
		if device != "" && a.Device != device {
			continue
		}
		all = append(all, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Close() error { return nil }
