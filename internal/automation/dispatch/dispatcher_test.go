package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

type DispatcherSuite struct {
	suite.Suite
	ctx context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
}

type capturingLogStore struct {
	mu      sync.Mutex
	entries []*models.ExecutionLogEntry
}

func (c *capturingLogStore) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *entry
	c.entries = append(c.entries, &copied)
	return nil
}

func (c *capturingLogStore) ListByOwner(context.Context, id.OwnerID, int) ([]*models.ExecutionLogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries, nil
}

func (c *capturingLogStore) ClearOwner(context.Context, id.OwnerID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = nil
	return n, nil
}

type capturingAlertSink struct {
	alerts []*models.DashboardAlert
}

func (c *capturingAlertSink) Publish(_ context.Context, alert *models.DashboardAlert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func testConfig() *c.Config {
	cfg := c.Default()
	cfg.ActionTimeout = time.Second
	cfg.RetryBackoff = 10 * time.Millisecond
	return cfg
}

func (s *DispatcherSuite) newDispatcher(logs *capturingLogStore, opts ...Option) *Dispatcher {
	d, err := New(testConfig(), logs, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	s.Require().NoError(err)
	return d
}

func webhookFiring(url string) models.Firing {
	return models.Firing{
		RuleID:     id.NewRuleID(),
		OwnerID:    id.OwnerID(uuid.New()),
		RuleName:   "webhook rule",
		ActionKind: models.ActionWebhook,
		Config:     map[string]any{"url": url, "method": "POST"},
		Payload:    map[string]any{"used_percent": float64(92)},
		MatchedAt:  time.Now(),
	}
}

func (s *DispatcherSuite) TestWebhookSuccessLogsOneEntry() {
	var calls atomic.Int32
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, webhookFiring(server.URL))

	s.Equal(int32(1), calls.Load())
	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionSuccess, entry.Status)
	s.Equal(1, entry.Attempts)
	s.Empty(entry.Error)
	s.Contains(entry.ActionSummary, server.URL)

	// Default body carries rule name and payload.
	s.Equal("webhook rule", gotBody["rule"])
}

func (s *DispatcherSuite) TestTransientFailureRetriesThenSucceeds() {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, webhookFiring(server.URL))

	s.Equal(int32(3), calls.Load())
	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionSuccess, entry.Status)
	s.Equal(3, entry.Attempts)
}

func (s *DispatcherSuite) TestTransientFailureExhaustsAttempts() {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, webhookFiring(server.URL))

	s.Equal(int32(3), calls.Load())
	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionFailed, entry.Status)
	s.Equal(3, entry.Attempts)
	s.Contains(entry.Error, "502")
	s.Empty(entry.ActionSummary)
}

func (s *DispatcherSuite) TestCancelledContextStopsRetrying() {
	var calls atomic.Int32
	firstHit := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		if calls.Add(1) == 1 {
			close(firstHit)
		}
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	cfg := testConfig()
	cfg.RetryBackoff = time.Minute
	d, err := New(cfg, logs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		<-firstHit
		cancel()
	}()

	d.Dispatch(ctx, webhookFiring(server.URL))

	// Shutdown during backoff must not inflate the attempt count past
	// the sends actually made.
	s.Equal(int32(1), calls.Load())
	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionFailed, entry.Status)
	s.Equal(1, entry.Attempts)
}

func (s *DispatcherSuite) TestClientErrorIsNotRetried() {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, webhookFiring(server.URL))

	s.Equal(int32(1), calls.Load())
	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionFailed, entry.Status)
	s.Equal(1, entry.Attempts)
	s.Contains(entry.Error, "404")
}

func (s *DispatcherSuite) TestMalformedConfigFailsWithoutSending() {
	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	firing := webhookFiring("https://example.com")
	firing.Config = map[string]any{"url": "https://example.com", "nonsense": true}

	d.Dispatch(s.ctx, firing)

	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionFailed, entry.Status)
	s.Equal(1, entry.Attempts)
}

func (s *DispatcherSuite) TestDiscordPostsContent() {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, models.Firing{
		RuleID:     id.NewRuleID(),
		OwnerID:    id.OwnerID(uuid.New()),
		RuleName:   "discord rule",
		ActionKind: models.ActionDiscord,
		Config:     map[string]any{"webhook_url": server.URL, "message": "disk at {{used_percent}}%"},
		Payload:    map[string]any{"used_percent": float64(92)},
	})

	s.Equal("disk at 92%", gotBody["content"])
	s.Require().Len(logs.entries, 1)
	s.Equal(models.ExecutionSuccess, logs.entries[0].Status)
}

func (s *DispatcherSuite) TestDashboardAlertPublishes() {
	logs := &capturingLogStore{}
	sink := &capturingAlertSink{}
	d := s.newDispatcher(logs, WithAlertSink(sink))

	d.Dispatch(s.ctx, models.Firing{
		RuleID:     id.NewRuleID(),
		OwnerID:    id.OwnerID(uuid.New()),
		RuleName:   "alert rule",
		ActionKind: models.ActionDashboardAlert,
		Config:     map[string]any{"title": "storage {{used_percent}}%", "message": "almost full", "severity": "warning"},
		Payload:    map[string]any{"used_percent": float64(95)},
	})

	s.Require().Len(sink.alerts, 1)
	alert := sink.alerts[0]
	s.Equal("storage 95%", alert.Title)
	s.Equal(models.SeverityWarning, alert.Severity)
	s.Require().Len(logs.entries, 1)
	s.Equal(models.ExecutionSuccess, logs.entries[0].Status)
}

func (s *DispatcherSuite) TestEmailWithoutTransportIsPermanent() {
	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	d.Dispatch(s.ctx, models.Firing{
		RuleID:     id.NewRuleID(),
		OwnerID:    id.OwnerID(uuid.New()),
		RuleName:   "email rule",
		ActionKind: models.ActionEmail,
		Config:     map[string]any{"to": "owner@example.com", "subject": "hi", "body": "there"},
	})

	s.Require().Len(logs.entries, 1)
	entry := logs.entries[0]
	s.Equal(models.ExecutionFailed, entry.Status)
	s.Equal(1, entry.Attempts)
	s.Contains(entry.Error, "no email transport")
}

func (s *DispatcherSuite) TestEnqueueReportsFullQueue() {
	logs := &capturingLogStore{}
	cfg := testConfig()
	cfg.DispatchQueueSize = 1
	d, err := New(cfg, logs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	s.Require().NoError(d.Enqueue(webhookFiring("https://example.com")))
	err = d.Enqueue(webhookFiring("https://example.com"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *DispatcherSuite) TestStartStopDrainsQueue() {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logs := &capturingLogStore{}
	d := s.newDispatcher(logs)

	for i := 0; i < 5; i++ {
		s.Require().NoError(d.Enqueue(webhookFiring(server.URL)))
	}
	d.Start(s.ctx)
	d.Stop()

	s.Equal(int32(5), calls.Load())
	s.Len(logs.entries, 5)
}
