// Package alerts stores in-product dashboard notifications written by
// the dashboard_alert action kind. No outbound network call is made.
package alerts

import (
	"context"
	"sort"
	"sync"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
)

// MemoryStore keeps dashboard alerts in process memory, newest first.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[id.OwnerID][]*models.DashboardAlert
	max    int
}

// NewMemoryStore bounds retained alerts per owner; older entries are
// dropped once the bound is exceeded.
func NewMemoryStore(maxPerOwner int) *MemoryStore {
	if maxPerOwner <= 0 {
		maxPerOwner = 200
	}
	return &MemoryStore{
		alerts: make(map[id.OwnerID][]*models.DashboardAlert),
		max:    maxPerOwner,
	}
}

// Publish stores one alert.
func (s *MemoryStore) Publish(_ context.Context, alert *models.DashboardAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.alerts[alert.OwnerID], alert)
	if len(list) > s.max {
		list = list[len(list)-s.max:]
	}
	s.alerts[alert.OwnerID] = list
	return nil
}

// List returns the owner's alerts, most recent first, bounded by limit.
func (s *MemoryStore) List(_ context.Context, ownerID id.OwnerID, limit int) ([]*models.DashboardAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.alerts[ownerID]
	out := make([]*models.DashboardAlert, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
