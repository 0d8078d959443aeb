package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// HTTPHandler handles the unauthenticated infrastructure endpoints.
type HTTPHandler struct{}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	open, closed := database.SessionCounts()
	response := map[string]interface{}{
		"status":          "ok",
		"sessions_opened": open,
		"sessions_closed": closed,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}
