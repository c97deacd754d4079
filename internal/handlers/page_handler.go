package handlers

import (
	"context"
	"net/http"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	"github.com/raimediatech/kingsbuilder/pkg/api"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PageService is the synchronization service as seen by the HTTP layer.
type PageService interface {
	Create(ctx context.Context, id tenant.Identity, in domain.NewPageInput) (*domain.Page, error)
	List(ctx context.Context, id tenant.Identity) ([]*domain.Page, error)
	Get(ctx context.Context, id tenant.Identity, key string) (*domain.Page, error)
	Update(ctx context.Context, id tenant.Identity, key string, u domain.PageUpdate) error
	Delete(ctx context.Context, id tenant.Identity, key string) error
	Publish(ctx context.Context, id tenant.Identity, key string) error
	Unpublish(ctx context.Context, id tenant.Identity, key string) error
}

// PageHandler serves /api/pages.
type PageHandler struct {
	pages  PageService
	logger *zap.Logger
}

// NewPageHandler creates a new page handler.
func NewPageHandler(pages PageService, logger *zap.Logger) *PageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{pages: pages, logger: logger.Named("pages")}
}

type createPageRequest struct {
	Title     string `json:"title" validate:"required,max=255"`
	Handle    string `json:"handle" validate:"omitempty,max=255"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
}

type updatePageRequest struct {
	Title     *string `json:"title" validate:"omitempty,max=255"`
	Handle    *string `json:"handle" validate:"omitempty,max=255"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
}

// Routes mounts the page endpoints.
func (h *PageHandler) Routes(r chi.Router) {
	r.Get("/", h.ListPages)
	r.Post("/", h.CreatePage)
	r.Get("/{pageId}", h.GetPage)
	r.Put("/{pageId}", h.UpdatePage)
	r.Delete("/{pageId}", h.DeletePage)
	r.Post("/{pageId}/publish", h.PublishPage)
	r.Post("/{pageId}/unpublish", h.UnpublishPage)
}

// requireTenant answers 400 before the body is read when no shop is known.
func (h *PageHandler) requireTenant(w http.ResponseWriter, r *http.Request) (tenant.Identity, bool) {
	id := tenant.Resolve(r)
	if !id.HasTenant() {
		handleServiceError(w, r, h.logger, appErrors.NewMissingTenant())
		return id, false
	}
	return id, true
}

// ListPages handles GET /api/pages
func (h *PageHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.pages.List(r.Context(), tenant.Resolve(r))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.Envelope{"pages": pages})
}

// GetPage handles GET /api/pages/{pageId}
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Get(r.Context(), tenant.Resolve(r), chi.URLParam(r, "pageId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.Envelope{"page": page})
}

// CreatePage handles POST /api/pages
func (h *PageHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	var req createPageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	page, err := h.pages.Create(r.Context(), id, domain.NewPageInput{
		Title:     req.Title,
		Handle:    req.Handle,
		Body:      req.Content,
		Published: req.Published,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("page created",
		zap.String("shop", id.Tenant),
		zap.String("id", page.ID),
		zap.String("source", page.Source),
	)
	api.Success(w, http.StatusCreated, api.Envelope{"page": page})
}

// UpdatePage handles PUT /api/pages/{pageId}. Only the fields present in the
// body change.
func (h *PageHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	var req updatePageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	update := domain.PageUpdate{
		Title:     req.Title,
		Handle:    req.Handle,
		Body:      req.Content,
		Published: req.Published,
	}
	if err := h.pages.Update(r.Context(), id, chi.URLParam(r, "pageId"), update); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Message(w, http.StatusOK, "Page updated successfully")
}

// DeletePage handles DELETE /api/pages/{pageId}
func (h *PageHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.Delete(r.Context(), tenant.Resolve(r), chi.URLParam(r, "pageId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Message(w, http.StatusOK, "Page deleted successfully")
}

// PublishPage handles POST /api/pages/{pageId}/publish
func (h *PageHandler) PublishPage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.Publish(r.Context(), tenant.Resolve(r), chi.URLParam(r, "pageId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Message(w, http.StatusOK, "Page published successfully")
}

// UnpublishPage handles POST /api/pages/{pageId}/unpublish
func (h *PageHandler) UnpublishPage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.Unpublish(r.Context(), tenant.Resolve(r), chi.URLParam(r, "pageId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Message(w, http.StatusOK, "Page unpublished successfully")
}
