package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
)

// permanentError marks failures that must not be retried: malformed
// config, rejected recipients, 4xx responses.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// transient reports whether a send failure is worth retrying. Network
// and timeout errors are; anything marked permanent is not. Unknown
// errors are retried, in keeping with the at-least-once contract.
func transient(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return true
}

func (d *Dispatcher) sendEmail(ctx context.Context, firing models.Firing) (string, error) {
	cfg, err := validate.Decode[validate.EmailConfig](firing.Config)
	if err != nil {
		return "", permanent(err)
	}
	if d.email == nil {
		return "", permanent(fmt.Errorf("no email transport configured"))
	}

	subject := Render(cfg.Subject, firing.Payload)
	body := Render(cfg.Body, firing.Payload)
	if err := d.email.Send(ctx, cfg.To, subject, body); err != nil {
		return "", fmt.Errorf("send email to %s: %w", cfg.To, err)
	}
	return fmt.Sprintf("emailed %s", cfg.To), nil
}

func (d *Dispatcher) sendDiscord(ctx context.Context, firing models.Firing) (string, error) {
	cfg, err := validate.Decode[validate.DiscordConfig](firing.Config)
	if err != nil {
		return "", permanent(err)
	}

	payload := map[string]any{"content": Render(cfg.Message, firing.Payload)}
	if err := d.postJSON(ctx, http.MethodPost, cfg.WebhookURL, payload); err != nil {
		return "", err
	}
	return "posted to Discord webhook", nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, firing models.Firing) (string, error) {
	cfg, err := validate.Decode[validate.WebhookConfig](firing.Config)
	if err != nil {
		return "", permanent(err)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body map[string]any
	if method != http.MethodGet {
		body = RenderMap(cfg.Body, firing.Payload)
		if body == nil {
			// Default body carries the matched payload so bare webhook
			// configs still deliver the trigger data.
			body = map[string]any{"rule": firing.RuleName, "payload": firing.Payload}
		}
	}

	if err := d.postJSON(ctx, method, cfg.URL, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", method, cfg.URL), nil
}

func (d *Dispatcher) sendDashboardAlert(ctx context.Context, firing models.Firing) (string, error) {
	cfg, err := validate.Decode[validate.DashboardAlertConfig](firing.Config)
	if err != nil {
		return "", permanent(err)
	}
	if d.alerts == nil {
		return "", permanent(fmt.Errorf("no alert sink configured"))
	}

	severity := models.AlertSeverity(cfg.Severity)
	if severity == "" {
		severity = models.SeverityInfo
	}

	alert := &models.DashboardAlert{
		ID:        id.NewAlertID(),
		OwnerID:   firing.OwnerID,
		Title:     Render(cfg.Title, firing.Payload),
		Message:   Render(cfg.Message, firing.Payload),
		Severity:  severity,
		CreatedAt: d.clock.Now(),
	}
	if err := d.alerts.Publish(ctx, alert); err != nil {
		return "", fmt.Errorf("publish dashboard alert: %w", err)
	}
	return fmt.Sprintf("dashboard alert %q", alert.Title), nil
}

// postJSON performs one bounded HTTP call. 2xx succeeds, 4xx is
// permanent, everything else is transient.
func (d *Dispatcher) postJSON(ctx context.Context, method, url string, body map[string]any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return permanent(fmt.Errorf("marshal request body: %w", err))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return permanent(fmt.Errorf("build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return permanent(fmt.Errorf("%s %s returned %d", method, url, resp.StatusCode))
	default:
		return fmt.Errorf("%s %s returned %d", method, url, resp.StatusCode)
	}
}
