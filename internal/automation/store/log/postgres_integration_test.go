//go:build integration

package log_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"nimbus/internal/automation/models"
	logstore "nimbus/internal/automation/store/log"
	id "nimbus/pkg/domain"
	"nimbus/pkg/testutil/containers"
)

type PostgresLogStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *logstore.PostgresStore
}

func TestPostgresLogStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLogStoreSuite))
}

func (s *PostgresLogStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = logstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresLogStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "automation_execution_log")
	s.Require().NoError(err)
}

func newTestEntry(owner id.OwnerID, name string, at time.Time) *models.ExecutionLogEntry {
	return &models.ExecutionLogEntry{
		ID:            id.NewLogID(),
		OwnerID:       owner,
		RuleID:        id.NewRuleID(),
		RuleName:      name,
		Status:        models.ExecutionSuccess,
		Payload:       map[string]any{"used_percent": float64(91.5)},
		ActionSummary: "dashboard alert \"storage\"",
		Attempts:      1,
		CreatedAt:     at,
	}
}

func (s *PostgresLogStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := newTestEntry(owner, "first", base.Add(-time.Minute))
	second := newTestEntry(owner, "second", base)
	failed := newTestEntry(owner, "failed", base.Add(time.Minute))
	failed.Status = models.ExecutionFailed
	failed.ActionSummary = ""
	failed.Attempts = 3
	failed.Error = "POST https://example.com returned 500"

	for _, e := range []*models.ExecutionLogEntry{first, second, failed} {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	entries, err := s.store.ListByOwner(ctx, owner, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("failed", entries[0].RuleName)
	s.Equal(models.ExecutionFailed, entries[0].Status)
	s.Equal(3, entries[0].Attempts)
	s.Equal("POST https://example.com returned 500", entries[0].Error)
	s.Equal("second", entries[1].RuleName)
	s.Equal(map[string]any{"used_percent": float64(91.5)}, entries[1].Payload)
	s.Equal("first", entries[2].RuleName)

	s.Run("limit bounds the page", func() {
		entries, err := s.store.ListByOwner(ctx, owner, 2)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("failed", entries[0].RuleName)
	})
}

func (s *PostgresLogStoreSuite) TestClearOwnerIsScoped() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	other := id.OwnerID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Append(ctx, newTestEntry(owner, "mine-1", now)))
	s.Require().NoError(s.store.Append(ctx, newTestEntry(owner, "mine-2", now)))
	s.Require().NoError(s.store.Append(ctx, newTestEntry(other, "theirs", now)))

	removed, err := s.store.ClearOwner(ctx, owner)
	s.Require().NoError(err)
	s.Equal(2, removed)

	entries, err := s.store.ListByOwner(ctx, other, 10)
	s.Require().NoError(err)
	s.Len(entries, 1)

	s.Run("clearing an empty log removes nothing", func() {
		removed, err := s.store.ClearOwner(ctx, owner)
		s.Require().NoError(err)
		s.Zero(removed)
	})
}
