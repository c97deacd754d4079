// Package handlers exposes the page synchronization service over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/raimediatech/kingsbuilder/internal/middleware"
	"github.com/raimediatech/kingsbuilder/pkg/api"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies. Page content is HTML and can be large.
const maxBodyBytes = 5 << 20

// handleServiceError converts service errors to appropriate HTTP responses
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.String("requestId", middleware.GetRequestIDFromRequest(r)),
		zap.Error(err),
	}

	switch appErrors.TypeOf(err) {
	case appErrors.ErrorTypeValidation, appErrors.ErrorTypeMissingTenant:
		logger.Debug("rejected request", fields...)
		api.Error(w, http.StatusBadRequest, message(err))
	case appErrors.ErrorTypeNotFound:
		api.Error(w, http.StatusNotFound, message(err))
	default:
		logger.Error("request failed", fields...)
		detail := err
		var appErr *appErrors.AppError
		if errors.As(err, &appErr) && appErr.Err != nil {
			detail = appErr.Err
		}
		api.ErrorWithDetail(w, http.StatusInternalServerError, message(err), detail)
	}
}

// message returns the user-facing part of an AppError.
func message(err error) string {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An internal error occurred"
}

// decodeJSON reads the body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return appErrors.NewValidation("Request body is required")
		}
		return appErrors.NewValidation("Invalid request body")
	}
	return validateStruct(dst)
}
