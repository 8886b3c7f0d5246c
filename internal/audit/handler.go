package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/autobot-platform/autobot/internal/api"
)

// Handler serves the audit log listing.
type Handler struct {
	repo *Repository
}

// NewHandler creates an audit handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns paginated audit logs with optional query filters
// (GET /api/v1/audit?actor=&event_type=&severity=&from=&to=&page=&page_size=).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := DefaultListParams()
	q := r.URL.Query()

	params.Actor = q.Get("actor")
	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")

	if p := q.Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			params.Page = v
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			params.PageSize = v
		}
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			api.HandleError(w, api.NewValidationError("from must be RFC3339"))
			return
		}
		params.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			api.HandleError(w, api.NewValidationError("to must be RFC3339"))
			return
		}
		params.To = &t
	}

	logs, total, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit logs", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if logs == nil {
		logs = []AuditLog{}
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}
