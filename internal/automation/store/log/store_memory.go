// Package log persists execution log entries. The memory store backs
// tests and single-node installs without postgres configured.
package log

import (
	"context"
	"sync"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries []*models.ExecutionLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries = append(s.entries, &copied)
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID, limit int) ([]*models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Append order is creation order; walk backwards for newest first.
	out := make([]*models.ExecutionLogEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].OwnerID != ownerID {
			continue
		}
		copied := *s.entries[i]
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ClearOwner(_ context.Context, ownerID id.OwnerID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, entry := range s.entries {
		if entry.OwnerID == ownerID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return removed, nil
}
