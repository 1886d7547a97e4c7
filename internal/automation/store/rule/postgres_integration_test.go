//go:build integration

package rule_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/store/rule"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
	"nimbus/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *rule.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = rule.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "automation_rules")
	s.Require().NoError(err)
}

func newTestRule(owner id.OwnerID, name string) *models.Rule {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Rule{
		ID:                id.NewRuleID(),
		OwnerID:           owner,
		Name:              name,
		Description:       "integration fixture",
		Active:            true,
		EnforcementStatus: models.EnforcementEnforced,
		TriggerKind:       models.TriggerScheduled,
		TriggerConfig:     map[string]any{"cron": "0 2 * * *"},
		ActionKind:        models.ActionWebhook,
		ActionConfig:      map[string]any{"url": "https://example.com/hook", "method": "POST"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	created := newTestRule(owner, "nightly report")

	s.Require().NoError(s.store.Create(ctx, created))

	got, err := s.store.Get(ctx, owner, created.ID)
	s.Require().NoError(err)
	s.Equal(created.Name, got.Name)
	s.Equal(created.TriggerKind, got.TriggerKind)
	s.Equal(created.TriggerConfig, got.TriggerConfig)
	s.Equal(created.ActionConfig, got.ActionConfig)
	s.Equal(models.EnforcementEnforced, got.EnforcementStatus)
	s.Nil(got.LastTriggered)
}

func (s *PostgresStoreSuite) TestCreateDuplicateConflicts() {
	ctx := context.Background()
	created := newTestRule(id.OwnerID(uuid.New()), "dup")

	s.Require().NoError(s.store.Create(ctx, created))
	err := s.store.Create(ctx, created)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PostgresStoreSuite) TestOwnerScoping() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	other := id.OwnerID(uuid.New())
	created := newTestRule(owner, "scoped")
	s.Require().NoError(s.store.Create(ctx, created))

	_, err := s.store.Get(ctx, other, created.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.store.Delete(ctx, other, created.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	// Still present for the real owner.
	_, err = s.store.Get(ctx, owner, created.ID)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestUpdateReplacesConfiguration() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	created := newTestRule(owner, "before")
	s.Require().NoError(s.store.Create(ctx, created))

	updated := *created
	updated.Name = "after"
	updated.TriggerKind = models.TriggerStorageThreshold
	updated.TriggerConfig = map[string]any{"threshold": float64(85)}
	updated.EnforcementStatus = models.EnforcementSuspendedByGate
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(ctx, &updated))

	got, err := s.store.Get(ctx, owner, created.ID)
	s.Require().NoError(err)
	s.Equal("after", got.Name)
	s.Equal(models.TriggerStorageThreshold, got.TriggerKind)
	s.Equal(map[string]any{"threshold": float64(85)}, got.TriggerConfig)
	s.Equal(models.EnforcementSuspendedByGate, got.EnforcementStatus)
}

func (s *PostgresStoreSuite) TestListByOwnerNewestFirst() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())

	older := newTestRule(owner, "older")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newTestRule(owner, "newer")
	foreign := newTestRule(id.OwnerID(uuid.New()), "foreign")

	for _, r := range []*models.Rule{older, newer, foreign} {
		s.Require().NoError(s.store.Create(ctx, r))
	}

	rules, err := s.store.ListByOwner(ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(rules, 2)
	s.Equal("newer", rules[0].Name)
	s.Equal("older", rules[1].Name)
}

func (s *PostgresStoreSuite) TestListActiveAndCount() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())

	active := newTestRule(owner, "active")
	inactive := newTestRule(owner, "inactive")
	inactive.Active = false

	s.Require().NoError(s.store.Create(ctx, active))
	s.Require().NoError(s.store.Create(ctx, inactive))

	rules, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.Equal("active", rules[0].Name)

	count, err := s.store.CountActive(ctx, owner)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestSetLastTriggeredAndEnforcement() {
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	created := newTestRule(owner, "fired")
	s.Require().NoError(s.store.Create(ctx, created))

	at := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.SetLastTriggered(ctx, created.ID, at))
	s.Require().NoError(s.store.SetEnforcementStatus(ctx, created.ID, models.EnforcementError))

	got, err := s.store.Get(ctx, owner, created.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.LastTriggered)
	s.True(got.LastTriggered.Equal(at))
	s.Equal(models.EnforcementError, got.EnforcementStatus)

	s.Run("unknown rule is not found", func() {
		err := s.store.SetLastTriggered(ctx, id.NewRuleID(), at)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
