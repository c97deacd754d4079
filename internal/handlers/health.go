package handlers

import (
	"net/http"

	"github.com/raimediatech/kingsbuilder/pkg/api"
)

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, api.Envelope{"status": "ok"})
}

// NotFound answers unknown routes with the JSON envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	api.Error(w, http.StatusNotFound, "Route not found")
}
