// Package handler exposes the automation module over HTTP. All routes
// are owner-scoped through the bearer-token middleware; the owner ID
// comes from the request context, never from the payload.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
	"nimbus/pkg/platform/httputil"
	"nimbus/pkg/platform/middleware/auth"
	"nimbus/pkg/requestcontext"
)

// RuleService is the lifecycle surface the handler consumes.
type RuleService interface {
	Create(ctx context.Context, ownerID id.OwnerID, req models.CreateRuleRequest) (*models.Rule, error)
	Get(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) (*models.Rule, error)
	List(ctx context.Context, ownerID id.OwnerID) ([]*models.Rule, error)
	Update(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID, req models.UpdateRuleRequest) (*models.Rule, error)
	Delete(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) error
	ListLogs(ctx context.Context, ownerID id.OwnerID, limit int) ([]*models.ExecutionLogEntry, error)
	ClearLogs(ctx context.Context, ownerID id.OwnerID) (int, error)
}

// DraftCompiler turns free text into a validated rule draft.
type DraftCompiler interface {
	Compile(ctx context.Context, text, modelHint string, databases []models.DatabaseContext) (*models.RuleDraft, error)
}

// AlertReader lists an owner's dashboard alerts.
type AlertReader interface {
	List(ctx context.Context, ownerID id.OwnerID, limit int) ([]*models.DashboardAlert, error)
}

type Handler struct {
	service    RuleService
	compiler   DraftCompiler
	alerts     AlertReader
	signingKey []byte
	logger     *slog.Logger
}

func New(service RuleService, compiler DraftCompiler, alerts AlertReader, signingKey []byte, logger *slog.Logger) *Handler {
	return &Handler{
		service:    service,
		compiler:   compiler,
		alerts:     alerts,
		signingKey: signingKey,
		logger:     logger,
	}
}

// Register mounts the automation routes.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(chimw.RequestID)
	router.Use(auth.RequireOwner(h.signingKey, h.logger))

	router.Post("/rules", h.handleCreateRule)
	router.Get("/rules", h.handleListRules)
	router.Post("/rules/compile", h.handleCompileRule)
	router.Get("/rules/{ruleID}", h.handleGetRule)
	router.Put("/rules/{ruleID}", h.handleUpdateRule)
	router.Delete("/rules/{ruleID}", h.handleDeleteRule)
	router.Get("/logs", h.handleListLogs)
	router.Delete("/logs", h.handleClearLogs)
	router.Get("/alerts", h.handleListAlerts)

	r.Mount("/api/automation", router)
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	rule, err := h.service.Create(r.Context(), requestcontext.OwnerID(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ruleResponse(rule))
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.List(r.Context(), requestcontext.OwnerID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleResponse(rule))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rule, err := h.service.Get(r.Context(), requestcontext.OwnerID(r.Context()), ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ruleResponse(rule))
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req models.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	rule, err := h.service.Update(r.Context(), requestcontext.OwnerID(r.Context()), ruleID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ruleResponse(rule))
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), requestcontext.OwnerID(r.Context()), ruleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCompileRule(w http.ResponseWriter, r *http.Request) {
	if h.compiler == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "rule compilation is not configured"))
		return
	}

	var req models.CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}

	draft, err := h.compiler.Compile(r.Context(), req.Text, req.Model, req.Databases)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.CompileResponse{
		Draft:              *draft,
		TriggerDescription: validate.TriggerDescription(draft.TriggerKind, draft.TriggerConfig),
		ActionDescription:  validate.ActionDescription(draft.ActionKind, draft.ActionConfig),
	})
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit = parsed
	}

	entries, err := h.service.ListLogs(r.Context(), requestcontext.OwnerID(r.Context()), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.LogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, models.LogEntryResponse{
			ID:            entry.ID.String(),
			RuleID:        entry.RuleID.String(),
			RuleName:      entry.RuleName,
			Status:        entry.Status,
			Payload:       entry.Payload,
			ActionSummary: entry.ActionSummary,
			Attempts:      entry.Attempts,
			Error:         entry.Error,
			CreatedAt:     entry.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.ClearLogs(r.Context(), requestcontext.OwnerID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ClearLogsResponse{Removed: removed})
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.List(r.Context(), requestcontext.OwnerID(r.Context()), 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.AlertResponse, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, models.AlertResponse{
			ID:        alert.ID.String(),
			Title:     alert.Title,
			Message:   alert.Message,
			Severity:  alert.Severity,
			Read:      alert.Read,
			CreatedAt: alert.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func ruleResponse(rule *models.Rule) models.RuleResponse {
	return models.RuleResponse{
		ID:                 rule.ID.String(),
		Name:               rule.Name,
		Description:        rule.Description,
		Active:             rule.Active,
		EnforcementStatus:  string(rule.EnforcementStatus),
		TriggerKind:        rule.TriggerKind,
		TriggerConfig:      rule.TriggerConfig,
		ActionKind:         rule.ActionKind,
		ActionConfig:       rule.ActionConfig,
		TriggerDescription: validate.TriggerDescription(rule.TriggerKind, rule.TriggerConfig),
		ActionDescription:  validate.ActionDescription(rule.ActionKind, rule.ActionConfig),
		LastTriggered:      rule.LastTriggered,
		CreatedAt:          rule.CreatedAt,
		UpdatedAt:          rule.UpdatedAt,
	}
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
	}
	return n, nil
}
