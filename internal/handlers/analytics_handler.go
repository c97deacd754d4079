package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/service/analytics"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	"github.com/raimediatech/kingsbuilder/pkg/api"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AnalyticsHandler serves /api/analytics.
type AnalyticsHandler struct {
	analytics analytics.Service
	logger    *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc analytics.Service, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{analytics: svc, logger: logger.Named("analytics")}
}

type recordViewRequest struct {
	Handle   string `json:"handle" validate:"required,max=255"`
	Referrer string `json:"referrer" validate:"omitempty,max=2048"`
}

// Routes mounts the analytics endpoints.
func (h *AnalyticsHandler) Routes(r chi.Router) {
	r.Post("/views", h.RecordView)
	r.Get("/pages/{handle}", h.PageStats)
	r.Get("/shop", h.ShopStats)
}

// RecordView handles POST /api/analytics/views
func (h *AnalyticsHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	id := tenant.Resolve(r)
	if !id.HasTenant() {
		handleServiceError(w, r, h.logger, appErrors.NewMissingTenant())
		return
	}

	var req recordViewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	referrer := req.Referrer
	if referrer == "" {
		referrer = r.Referer()
	}
	view := domain.PageView{
		Tenant:    id.Tenant,
		Handle:    req.Handle,
		IP:        clientIP(r),
		Referrer:  referrer,
		UserAgent: r.UserAgent(),
	}
	if err := h.analytics.RecordView(r.Context(), view); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Message(w, http.StatusCreated, "Page view recorded")
}

// PageStats handles GET /api/analytics/pages/{handle}?days=N
func (h *AnalyticsHandler) PageStats(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	stats, err := h.analytics.PageStats(r.Context(), tenant.Resolve(r).Tenant, chi.URLParam(r, "handle"), days)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.Envelope{"stats": stats})
}

// ShopStats handles GET /api/analytics/shop?days=N
func (h *AnalyticsHandler) ShopStats(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	stats, err := h.analytics.ShopStats(r.Context(), tenant.Resolve(r).Tenant, days)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.Envelope{"stats": stats})
}

func daysParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.NewValidation("days must be a number")
	}
	return days, nil
}

// clientIP prefers the first X-Forwarded-For hop, set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
