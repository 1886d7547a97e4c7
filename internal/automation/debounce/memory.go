// Package debounce tracks per-rule cool-down state. The memory store is
// the default and accepts the documented at-least-once restart gap; the
// redis store persists last-fired timestamps to narrow it.
package debounce

import (
	"context"
	"sync"
	"time"

	id "nimbus/pkg/domain"
)

// MemoryStore keeps last-fired timestamps in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	fired map[id.RuleID]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fired: make(map[id.RuleID]time.Time)}
}

func (s *MemoryStore) LastFired(_ context.Context, ruleID id.RuleID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.fired[ruleID]
	return at, ok, nil
}

func (s *MemoryStore) MarkFired(_ context.Context, ruleID id.RuleID, at time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fired[ruleID] = at
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.fired, ruleID)
	return nil
}
