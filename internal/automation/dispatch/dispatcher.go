// Package dispatch turns firings into external side effects. It renders
// the action's message templates, invokes the sender for the action
// kind with bounded timeout and retries, and records exactly one
// execution log entry per firing.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/metrics"
	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

type Dispatcher struct {
	config  *c.Config
	logs    ports.ExecutionLogStore
	email   ports.EmailSender
	alerts  ports.AlertSink
	http    *http.Client
	clock   ports.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue chan models.Firing
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Dispatcher)

func WithEmailSender(sender ports.EmailSender) Option {
	return func(d *Dispatcher) { d.email = sender }
}

func WithAlertSink(sink ports.AlertSink) Option {
	return func(d *Dispatcher) { d.alerts = sink }
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.http = client }
}

func WithClock(clock ports.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(config *c.Config, logs ports.ExecutionLogStore, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if config == nil {
		return nil, fmt.Errorf("dispatch config is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("execution log store is required")
	}

	d := &Dispatcher{
		config: config,
		logs:   logs,
		logger: logger,
		clock:  ports.WallClock{},
		queue:  make(chan models.Firing, config.DispatchQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.http == nil {
		d.http = &http.Client{Timeout: config.ActionTimeout}
	}
	return d, nil
}

// Start launches the worker pool. Workers run until Stop closes the
// queue; firings already enqueued are drained, so disabling a rule does
// not cancel an in-flight firing.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.config.DispatchWorkers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for firing := range d.queue {
				d.Dispatch(ctx, firing)
			}
		}()
	}
}

// Stop closes the queue and waits for workers to drain it.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

// Enqueue hands a firing to the worker pool. A full queue is reported
// as unavailable; the caller records the failure.
func (d *Dispatcher) Enqueue(firing models.Firing) error {
	select {
	case d.queue <- firing:
		return nil
	default:
		return dErrors.New(dErrors.CodeUnavailable, "action dispatch queue is full")
	}
}

// Dispatch executes one firing synchronously: bounded attempts, backoff
// on transient failure, one log entry either way.
func (d *Dispatcher) Dispatch(ctx context.Context, firing models.Firing) {
	var (
		summary  string
		attempts int
		lastErr  error
	)

	for attempts < d.config.MaxAttempts {
		attempts++
		if d.metrics != nil {
			d.metrics.ActionAttemptsTotal.Inc()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, d.config.ActionTimeout)
		summary, lastErr = d.send(attemptCtx, firing)
		cancel()

		if lastErr == nil {
			break
		}
		if !transient(lastErr) {
			break
		}
		// Cancellation during backoff stops retrying; the entry keeps
		// the count of sends actually made.
		if attempts < d.config.MaxAttempts && !d.sleepBackoff(ctx) {
			break
		}
	}

	entry := &models.ExecutionLogEntry{
		ID:            id.NewLogID(),
		OwnerID:       firing.OwnerID,
		RuleID:        firing.RuleID,
		RuleName:      firing.RuleName,
		Status:        models.ExecutionSuccess,
		Payload:       firing.Payload,
		ActionSummary: summary,
		Attempts:      attempts,
		CreatedAt:     d.clock.Now(),
	}
	if lastErr != nil {
		entry.Status = models.ExecutionFailed
		entry.Error = lastErr.Error()
		entry.ActionSummary = ""
		if d.metrics != nil {
			d.metrics.ActionFailuresTotal.Inc()
		}
		d.logger.Warn("action dispatch failed",
			"rule_id", firing.RuleID,
			"action_kind", firing.ActionKind,
			"attempts", attempts,
			"error", lastErr,
		)
	}

	if err := d.logs.Append(ctx, entry); err != nil {
		d.logger.Error("failed to append execution log entry",
			"rule_id", firing.RuleID,
			"error", err,
		)
	}
}

func (d *Dispatcher) sleepBackoff(ctx context.Context) bool {
	select {
	case <-time.After(d.config.RetryBackoff):
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) send(ctx context.Context, firing models.Firing) (string, error) {
	switch firing.ActionKind {
	case models.ActionEmail:
		return d.sendEmail(ctx, firing)
	case models.ActionDiscord:
		return d.sendDiscord(ctx, firing)
	case models.ActionWebhook:
		return d.sendWebhook(ctx, firing)
	case models.ActionDashboardAlert:
		return d.sendDashboardAlert(ctx, firing)
	default:
		return "", permanent(fmt.Errorf("no sender for action kind %q", firing.ActionKind))
	}
}
