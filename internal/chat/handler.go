package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/autobot-platform/autobot/internal/api"
)

// Request is the body of POST /api/v1/chat.
type Request struct {
	UserID  string `json:"user_id" validate:"required,min=1"`
	Message string `json:"message" validate:"required,min=1"`
}

// Handler handles the chat endpoint.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Chat runs one exchange through the pipeline (POST /api/v1/chat).
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Ask(r.Context(), req.UserID, req.Message)
	if err != nil {
		slog.Error("chat request failed", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}
