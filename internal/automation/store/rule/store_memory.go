// Package rule persists automation rule definitions.
package rule

import (
	"context"
	"sort"
	"sync"
	"time"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

// ErrNotFound keeps store-level 404s consistent across implementations.
// Missing and foreign-owned rules are indistinguishable to callers.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "rule not found")

type MemoryStore struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*models.Rule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[id.RuleID]*models.Rule)}
}

func (s *MemoryStore) Create(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "rule id already exists")
	}
	copied := cloneRule(rule)
	s.rules[rule.ID] = copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID id.OwnerID, ruleID id.RuleID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[ruleID]
	if !exists || rule.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return cloneRule(rule), nil
}

func (s *MemoryStore) Update(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists || existing.OwnerID != rule.OwnerID {
		return ErrNotFound
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID id.OwnerID, ruleID id.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[ruleID]
	if !exists || existing.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.rules, ruleID)
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID id.OwnerID) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Rule
	for _, rule := range s.rules {
		if rule.OwnerID == ownerID {
			out = append(out, cloneRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Rule
	for _, rule := range s.rules {
		if rule.Active {
			out = append(out, cloneRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountActive(_ context.Context, ownerID id.OwnerID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rule := range s.rules {
		if rule.OwnerID == ownerID && rule.Active {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SetLastTriggered(_ context.Context, ruleID id.RuleID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[ruleID]
	if !exists {
		return ErrNotFound
	}
	fired := at
	rule.LastTriggered = &fired
	return nil
}

func (s *MemoryStore) SetEnforcementStatus(_ context.Context, ruleID id.RuleID, status models.EnforcementStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[ruleID]
	if !exists {
		return ErrNotFound
	}
	rule.EnforcementStatus = status
	return nil
}

func cloneRule(rule *models.Rule) *models.Rule {
	copied := *rule
	copied.TriggerConfig = cloneMap(rule.TriggerConfig)
	copied.ActionConfig = cloneMap(rule.ActionConfig)
	if rule.LastTriggered != nil {
		fired := *rule.LastTriggered
		copied.LastTriggered = &fired
	}
	return &copied
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
