package api

import (
	"encoding/json"
	"net/http"
)

// Response is the uniform envelope returned by every endpoint. The dashboard
// relies on the status field to decide success/error rendering; raw errors
// never leak into it.
type Response struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Status: "success", Data: data})
}

func JSONMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Status: "success", Message: message})
}

// JSONPaginated wraps a list payload with pagination metadata.
func JSONPaginated(w http.ResponseWriter, status int, items any, total int64, page, pageSize int) {
	JSON(w, status, map[string]any{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Status: "error", Error: message})
}
