package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/autobot-platform/autobot/internal/api"
	"github.com/autobot-platform/autobot/internal/auth"
	"github.com/autobot-platform/autobot/internal/events"
)

// AuditPublisher emits audit events. Best-effort: a publish failure never
// fails the request that triggered it.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, event events.AuditEvent) error
}

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	audit    AuditPublisher
}

// NewHandler creates a new memory handler. audit may be nil.
func NewHandler(svc *Service, audit AuditPublisher) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		audit:    audit,
	}
}

// SaveMemory explicitly persists one exchange (POST /api/v1/memory/save).
func (h *Handler) SaveMemory(w http.ResponseWriter, r *http.Request) {
	var req SaveInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	rec, err := h.svc.SaveInteraction(r.Context(), req.UserID, req.Question, req.Answer, req.Category)
	if err != nil {
		slog.Error("saving interaction", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, map[string]any{
		"id":               rec.ID,
		"embedding_status": rec.EmbeddingStatus,
	})
}

// AddKnowledge ingests reference documents (POST /api/v1/knowledge).
func (h *Handler) AddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req AddKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	added := 0
	pending := 0
	for _, doc := range req.Documents {
		item, err := h.svc.AddKnowledge(r.Context(), doc.Text, doc.SourceTag)
		if err != nil {
			slog.Error("adding knowledge", "error", err)
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		added++
		if item.EmbeddingStatus == StatusPending {
			pending++
		}
	}

	api.JSON(w, http.StatusCreated, map[string]any{
		"added":   added,
		"pending": pending,
	})
}

// Search runs a context search over memory and knowledge (POST /api/v1/search).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	kinds := make([]Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		switch Kind(k) {
		case KindConversation, KindKnowledge:
			kinds = append(kinds, Kind(k))
		default:
			api.HandleError(w, api.NewValidationError("unknown kind: "+k))
			return
		}
	}

	results, err := h.svc.SearchContext(r.Context(), req.Query, req.UserID, req.Limit, kinds)
	if err != nil {
		slog.Error("searching context", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if results == nil {
		results = []ScoredItem{}
	}

	api.JSON(w, http.StatusOK, map[string]any{"results": results})
}

// Clean prunes old conversation records (POST /api/v1/memory/clean).
// An absent days value falls back to the configured retention window; an
// explicit 0 prunes every record up to now.
func (h *Handler) Clean(w http.ResponseWriter, r *http.Request) {
	var req CleanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
	}
	days := h.svc.RetentionDays()
	if req.Days != nil {
		if *req.Days < 0 {
			api.HandleError(w, api.NewValidationError("days must not be negative"))
			return
		}
		days = *req.Days
	}

	removed, err := h.svc.PruneOlderThan(r.Context(), days)
	if err != nil {
		slog.Error("pruning conversations", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	if h.audit != nil {
		actor := "dashboard"
		if claims := auth.GetUserClaims(r.Context()); claims != nil {
			actor = claims.Email
		}
		evt := events.AuditEvent{
			Actor:        actor,
			EventType:    "memory_cleaned",
			Severity:     "info",
			ResourceType: "conversations",
			ResourceID:   fmt.Sprintf("retention-%dd", days),
			Details:      fmt.Sprintf("removidos %d registros com mais de %d dias", removed, days),
		}
		if err := h.audit.PublishAudit(r.Context(), evt); err != nil {
			slog.Warn("publishing audit event", "error", err)
		}
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"removed": removed,
		"days":    days,
	})
}

// Stats returns corpus totals (GET /api/v1/memory/stats).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("reading memory stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, stats)
}

// Profile returns the aggregate profile for a user
// (GET /api/v1/memory/profile/{userID}).
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("user id is required"))
		return
	}
	profile, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("getting profile", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, profile)
}
