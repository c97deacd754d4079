// Package api provides standardized helper functions for HTTP API responses.
//
// Every response body is a flat JSON object carrying a boolean "success" key,
// an optional "message", and any payload keys supplied by the caller.
package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the payload of a response next to "success" and "message".
type Envelope map[string]interface{}

// Success sends a successful response. The payload keys are merged next to
// "success": true.
func Success(w http.ResponseWriter, statusCode int, payload Envelope) {
	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	write(w, statusCode, body)
}

// Message sends a successful response that only carries a message.
func Message(w http.ResponseWriter, statusCode int, message string) {
	write(w, statusCode, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// Error sends a failed response with a user-facing message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	write(w, statusCode, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// ErrorWithDetail sends a failed response carrying the underlying error text
// in the "error" key, used for unhandled failures.
func ErrorWithDetail(w http.ResponseWriter, statusCode int, message string, err error) {
	body := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	write(w, statusCode, body)
}

func write(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
