package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autobot-platform/autobot/internal/api"
	"github.com/autobot-platform/autobot/internal/events"
	"github.com/autobot-platform/autobot/internal/metrics"
)

// webhookUser is the synthetic user vendor webhook exchanges are recorded
// under, so CRM-triggered analyses live in the same memory as chat.
const webhookUser = "bitrix24_system"

// AskFunc runs a message through the chat pipeline on behalf of a user.
// Injected from main to keep vendors decoupled from the chat package.
type AskFunc func(ctx context.Context, userID, message string) (string, error)

// AuditPublisher emits audit events. Best-effort: a publish failure never
// fails the request that triggered it.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, event events.AuditEvent) error
}

// Handler handles integration HTTP endpoints and inbound vendor webhooks.
type Handler struct {
	registry *Registry
	ask      AskFunc
	audit    AuditPublisher
}

// NewHandler creates a vendors handler. audit may be nil.
func NewHandler(registry *Registry, ask AskFunc, audit AuditPublisher) *Handler {
	return &Handler{registry: registry, ask: ask, audit: audit}
}

// List returns the configured vendor integrations (GET /api/v1/integrations).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	type integration struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}

	items := make([]integration, 0)
	for _, name := range h.registry.Names() {
		adapter, _ := h.registry.Get(name)
		status := "available"
		if err := adapter.Ping(r.Context()); err != nil {
			status = "unreachable"
		}
		items = append(items, integration{Name: name, Status: status})
	}

	api.JSON(w, http.StatusOK, map[string]any{"integrations": items})
}

// InvokeRequest is the body of POST /api/v1/integrations/{vendor}/invoke.
type InvokeRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Invoke runs one vendor action and returns the normalized envelope.
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "vendor")
	adapter, ok := h.registry.Get(name)
	if !ok {
		api.HandleError(w, api.NewNotFoundError("unknown vendor: "+name))
		return
	}

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if req.Action == "" {
		api.HandleError(w, api.NewValidationError("action is required"))
		return
	}

	envelope, err := adapter.Invoke(r.Context(), req.Action, req.Params)
	if err != nil {
		metrics.VendorCallsTotal.WithLabelValues(name, "error").Inc()
		slog.Error("vendor invocation failed", "vendor", name, "action", req.Action, "error", err)
		api.HandleError(w, api.NewUpstreamError(name+" unavailable"))
		return
	}

	metrics.VendorCallsTotal.WithLabelValues(name, envelope.Status).Inc()
	api.JSON(w, http.StatusOK, envelope)
}

// bitrixWebhookPayload is the shape Bitrix24 posts to our webhook endpoint.
type bitrixWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Fields map[string]any `json:"FIELDS"`
	} `json:"data"`
}

// Bitrix24Webhook receives CRM events, summarizes them into a prompt and
// runs them through the chat pipeline under a synthetic system user
// (POST /api/v1/webhooks/bitrix24).
func (h *Handler) Bitrix24Webhook(w http.ResponseWriter, r *http.Request) {
	var payload bitrixWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if payload.Event == "" {
		api.HandleError(w, api.NewValidationError("event is required"))
		return
	}

	prompt := summarizeBitrixEvent(payload.Event, payload.Data.Fields)

	analysis, err := h.ask(r.Context(), webhookUser, prompt)
	if err != nil {
		slog.Error("processing bitrix24 webhook", "event", payload.Event, "error", err)
		api.HandleError(w, api.NewUpstreamError("webhook processing failed"))
		return
	}

	if h.audit != nil {
		evt := events.AuditEvent{
			Actor:        webhookUser,
			EventType:    "webhook_processed",
			Severity:     "info",
			ResourceType: "webhook",
			ResourceID:   payload.Event,
			Details:      "evento do Bitrix24 analisado pelo assistente",
		}
		if err := h.audit.PublishAudit(r.Context(), evt); err != nil {
			slog.Warn("publishing audit event", "event", payload.Event, "error", err)
		}
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"event":       payload.Event,
		"processed":   true,
		"ai_analysis": analysis,
	})
}

func summarizeBitrixEvent(event string, fields map[string]any) string {
	id := ""
	if v, ok := fields["ID"]; ok {
		id = fmt.Sprint(v)
	}

	var sb strings.Builder
	switch {
	case strings.HasPrefix(event, "ONCRMLEADADD"):
		sb.WriteString("Novo lead criado no Bitrix24")
	case strings.HasPrefix(event, "ONCRMDEALUPDATE"):
		sb.WriteString("Negócio atualizado no Bitrix24")
	case strings.HasPrefix(event, "ONCRMCONTACTADD"):
		sb.WriteString("Novo contato criado no Bitrix24")
	case strings.HasPrefix(event, "ONTASKADD"):
		sb.WriteString("Nova tarefa criada no Bitrix24")
	default:
		sb.WriteString("Evento recebido do Bitrix24: " + event)
	}
	if id != "" {
		sb.WriteString(" (ID " + id + ")")
	}
	sb.WriteString(". Analise o evento e sugira as próximas ações.")
	return sb.String()
}
