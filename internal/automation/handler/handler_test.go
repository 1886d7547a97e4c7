package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"nimbus/internal/automation/alerts"
	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/debounce"
	"nimbus/internal/automation/gate"
	"nimbus/internal/automation/models"
	"nimbus/internal/automation/service"
	logstore "nimbus/internal/automation/store/log"
	rulestore "nimbus/internal/automation/store/rule"
	id "nimbus/pkg/domain"
)

var signingKey = []byte("test-signing-key")

type noopState struct{}

func (noopState) Forget(id.RuleID) {}

type fakeCompiler struct {
	draft *models.RuleDraft
	err   error
}

func (f *fakeCompiler) Compile(context.Context, string, string, []models.DatabaseContext) (*models.RuleDraft, error) {
	return f.draft, f.err
}

type HandlerSuite struct {
	suite.Suite
	owner    id.OwnerID
	token    string
	router   chi.Router
	rules    *rulestore.MemoryStore
	alerts   *alerts.MemoryStore
	compiler *fakeCompiler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.owner = id.OwnerID(uuid.New())
	s.token = s.mintToken(s.owner)

	cfg := c.Default()
	s.rules = rulestore.NewMemoryStore()
	s.alerts = alerts.NewMemoryStore(0)
	s.compiler = &fakeCompiler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := service.New(cfg, s.rules, logstore.NewMemoryStore(), debounce.NewMemoryStore(),
		noopState{}, gate.New(cfg),
		c.NewStaticPlanSource(models.Plan{Tier: models.PlanPro, BillingOK: true}), logger)

	h := New(svc, s.compiler, s.alerts, signingKey, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) mintToken(owner id.OwnerID) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   owner.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(signingKey)
	s.Require().NoError(err)
	return signed
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func createBody() models.CreateRuleRequest {
	return models.CreateRuleRequest{
		Name:          "storage warning",
		TriggerKind:   models.TriggerStorageThreshold,
		TriggerConfig: map[string]any{"threshold": float64(90)},
		ActionKind:    models.ActionDashboardAlert,
		ActionConfig:  map[string]any{"title": "storage", "message": "disk at {{used_percent}}%"},
	}
}

func (s *HandlerSuite) TestAuthRequired() {
	rec := s.do(http.MethodGet, "/api/automation/rules", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/automation/rules", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestCreateAndGetRule() {
	rec := s.do(http.MethodPost, "/api/automation/rules", s.token, createBody())
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created models.RuleResponse
	s.decode(rec, &created)
	s.NotEmpty(created.ID)
	s.Equal("storage warning", created.Name)
	s.Equal("when storage usage reaches 90%", created.TriggerDescription)
	s.Equal("show a info alert on the dashboard", created.ActionDescription)

	rec = s.do(http.MethodGet, "/api/automation/rules/"+created.ID, s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var got models.RuleResponse
	s.decode(rec, &got)
	s.Equal(created.ID, got.ID)
}

func (s *HandlerSuite) TestCreateValidationFailure() {
	body := createBody()
	body.TriggerConfig = map[string]any{"threshold": float64(500)}

	rec := s.do(http.MethodPost, "/api/automation/rules", s.token, body)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	var errBody map[string]string
	s.decode(rec, &errBody)
	s.Equal("validation", errBody["error"])
	s.NotEmpty(errBody["error_description"])
}

func (s *HandlerSuite) TestCreateMalformedJSON() {
	req := httptest.NewRequest(http.MethodPost, "/api/automation/rules", bytes.NewReader([]byte("{nope")))
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestListRules() {
	s.do(http.MethodPost, "/api/automation/rules", s.token, createBody())
	s.do(http.MethodPost, "/api/automation/rules", s.token, createBody())

	rec := s.do(http.MethodGet, "/api/automation/rules", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Rules []models.RuleResponse `json:"rules"`
	}
	s.decode(rec, &body)
	s.Len(body.Rules, 2)
}

func (s *HandlerSuite) TestRulesAreOwnerScoped() {
	rec := s.do(http.MethodPost, "/api/automation/rules", s.token, createBody())
	s.Require().Equal(http.StatusCreated, rec.Code)
	var created models.RuleResponse
	s.decode(rec, &created)

	otherToken := s.mintToken(id.OwnerID(uuid.New()))
	rec = s.do(http.MethodGet, "/api/automation/rules/"+created.ID, otherToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, "/api/automation/rules/"+created.ID, otherToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestUpdateAndDeleteRule() {
	rec := s.do(http.MethodPost, "/api/automation/rules", s.token, createBody())
	var created models.RuleResponse
	s.decode(rec, &created)

	rec = s.do(http.MethodPut, "/api/automation/rules/"+created.ID, s.token, models.UpdateRuleRequest{
		Name:          "renamed",
		Active:        false,
		TriggerKind:   models.TriggerScheduled,
		TriggerConfig: map[string]any{"cron": "0 2 * * *"},
		ActionKind:    models.ActionWebhook,
		ActionConfig:  map[string]any{"url": "https://example.com/hook"},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var updated models.RuleResponse
	s.decode(rec, &updated)
	s.Equal("renamed", updated.Name)
	s.False(updated.Active)
	s.Equal(`on schedule "0 2 * * *"`, updated.TriggerDescription)

	rec = s.do(http.MethodDelete, "/api/automation/rules/"+created.ID, s.token, nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/automation/rules/"+created.ID, s.token, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestMalformedRuleID() {
	rec := s.do(http.MethodGet, "/api/automation/rules/not-a-uuid", s.token, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCompileRule() {
	s.compiler.draft = &models.RuleDraft{
		Name:          "storage warning",
		TriggerKind:   models.TriggerStorageThreshold,
		TriggerConfig: map[string]any{"threshold": float64(90)},
		ActionKind:    models.ActionDashboardAlert,
		ActionConfig:  map[string]any{"title": "storage", "message": "m"},
	}

	rec := s.do(http.MethodPost, "/api/automation/rules/compile", s.token, models.CompileRequest{
		Text: "warn me when storage hits 90%",
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	var body models.CompileResponse
	s.decode(rec, &body)
	s.Equal("storage warning", body.Draft.Name)
	s.Equal("when storage usage reaches 90%", body.TriggerDescription)
}

func (s *HandlerSuite) TestLogsEndpoints() {
	rec := s.do(http.MethodGet, "/api/automation/logs", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Entries []models.LogEntryResponse `json:"entries"`
	}
	s.decode(rec, &body)
	s.Empty(body.Entries)

	s.Run("limit must be positive", func() {
		rec := s.do(http.MethodGet, "/api/automation/logs?limit=-3", s.token, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	rec = s.do(http.MethodDelete, "/api/automation/logs", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var cleared models.ClearLogsResponse
	s.decode(rec, &cleared)
	s.Zero(cleared.Removed)
}

func (s *HandlerSuite) TestAlertsEndpoint() {
	s.Require().NoError(s.alerts.Publish(context.Background(), &models.DashboardAlert{
		ID:        id.NewAlertID(),
		OwnerID:   s.owner,
		Title:     "storage 95%",
		Message:   "almost full",
		Severity:  models.SeverityWarning,
		CreatedAt: time.Now(),
	}))

	rec := s.do(http.MethodGet, "/api/automation/alerts", s.token, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Alerts []models.AlertResponse `json:"alerts"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Alerts, 1)
	s.Equal("storage 95%", body.Alerts[0].Title)
	s.Equal(models.SeverityWarning, body.Alerts[0].Severity)
}
