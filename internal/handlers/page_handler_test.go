package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const shop = "demo.myshopify.com"

type mockPageService struct {
	mock.Mock
}

func (m *mockPageService) Create(ctx context.Context, id tenant.Identity, in domain.NewPageInput) (*domain.Page, error) {
	args := m.Called(ctx, id, in)
	page, _ := args.Get(0).(*domain.Page)
	return page, args.Error(1)
}

func (m *mockPageService) List(ctx context.Context, id tenant.Identity) ([]*domain.Page, error) {
	args := m.Called(ctx, id)
	pages, _ := args.Get(0).([]*domain.Page)
	return pages, args.Error(1)
}

func (m *mockPageService) Get(ctx context.Context, id tenant.Identity, key string) (*domain.Page, error) {
	args := m.Called(ctx, id, key)
	page, _ := args.Get(0).(*domain.Page)
	return page, args.Error(1)
}

func (m *mockPageService) Update(ctx context.Context, id tenant.Identity, key string, u domain.PageUpdate) error {
	return m.Called(ctx, id, key, u).Error(0)
}

func (m *mockPageService) Delete(ctx context.Context, id tenant.Identity, key string) error {
	return m.Called(ctx, id, key).Error(0)
}

func (m *mockPageService) Publish(ctx context.Context, id tenant.Identity, key string) error {
	return m.Called(ctx, id, key).Error(0)
}

func (m *mockPageService) Unpublish(ctx context.Context, id tenant.Identity, key string) error {
	return m.Called(ctx, id, key).Error(0)
}

func pageRouter(svc PageService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/pages", NewPageHandler(svc, zap.NewNop()).Routes)
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestListPages(t *testing.T) {
	t.Run("returns the pages", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("List", mock.Anything, tenant.Identity{Tenant: shop}).
			Return([]*domain.Page{{ID: "1", Title: "About"}}, nil)

		w, body := serve(t, pageRouter(svc), http.MethodGet, "/api/pages?shop="+shop, "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, body["success"])
		assert.Len(t, body["pages"], 1)
		svc.AssertExpectations(t)
	})

	t.Run("credential header reaches the service", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("List", mock.Anything, tenant.Identity{Tenant: shop, Credential: "shpat_x"}).
			Return([]*domain.Page{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/pages?shop="+shop, nil)
		req.Header.Set("X-Shopify-Access-Token", "shpat_x")
		w := httptest.NewRecorder()
		pageRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing shop", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("List", mock.Anything, tenant.Identity{}).Return(nil, appErrors.NewMissingTenant())

		w, body := serve(t, pageRouter(svc), http.MethodGet, "/api/pages", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Shop parameter is required", body["message"])
	})

	t.Run("unhandled failure carries the error detail", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("List", mock.Anything, mock.Anything).
			Return(nil, appErrors.NewLocalStore("Failed to fetch pages", errors.New("decode failed")))

		w, body := serve(t, pageRouter(svc), http.MethodGet, "/api/pages?shop="+shop, "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to fetch pages", body["message"])
		assert.Equal(t, "decode failed", body["error"])
	})
}

func TestGetPage(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Get", mock.Anything, tenant.Identity{Tenant: shop}, "local_1").
			Return(&domain.Page{ID: "local_1", Title: "About Us", Status: domain.StatusDraft}, nil)

		w, body := serve(t, pageRouter(svc), http.MethodGet, "/api/pages/local_1?shop="+shop, "")

		require.Equal(t, http.StatusOK, w.Code)
		page := body["page"].(map[string]interface{})
		assert.Equal(t, "About Us", page["title"])
		assert.Equal(t, "draft", page["status"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Get", mock.Anything, mock.Anything, "nope").Return(nil, appErrors.NewNotFound("Page not found"))

		w, body := serve(t, pageRouter(svc), http.MethodGet, "/api/pages/nope?shop="+shop, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Page not found", body["message"])
	})
}

func TestCreatePage(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(mockPageService)
		in := domain.NewPageInput{Title: "About Us", Handle: "about-us", Body: "<p>hi</p>"}
		svc.On("Create", mock.Anything, tenant.Identity{Tenant: shop}, in).
			Return(&domain.Page{ID: "local_1", Title: "About Us", Handle: "about-us", Status: domain.StatusDraft}, nil)

		w, body := serve(t, pageRouter(svc), http.MethodPost, "/api/pages?shop="+shop,
			`{"title":"About Us","handle":"about-us","content":"<p>hi</p>"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "draft", body["page"].(map[string]interface{})["status"])
		svc.AssertExpectations(t)
	})

	t.Run("shop header", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Create", mock.Anything, tenant.Identity{Tenant: shop}, mock.Anything).
			Return(&domain.Page{ID: "local_1"}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/pages", strings.NewReader(`{"title":"T"}`))
		req.Header.Set("X-Shopify-Shop-Domain", shop)
		w := httptest.NewRecorder()
		pageRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name    string
		target  string
		body    string
		message string
	}{
		{"missing shop wins over a bad body", "/api/pages", `{}`, "Shop parameter is required"},
		{"missing title", "/api/pages?shop=" + shop, `{"handle":"x"}`, "Title is required"},
		{"title too long", "/api/pages?shop=" + shop, `{"title":"` + strings.Repeat("a", 256) + `"}`, "Title must be at most 255 characters"},
		{"malformed body", "/api/pages?shop=" + shop, `{"title":`, "Invalid request body"},
		{"empty body", "/api/pages?shop=" + shop, "", "Request body is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockPageService)
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			pageRouter(svc).ServeHTTP(w, req)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, body["message"])
			svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("handle conflict", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Create", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, appErrors.NewValidation("A page with this handle already exists"))

		w, body := serve(t, pageRouter(svc), http.MethodPost, "/api/pages?shop="+shop, `{"title":"T","handle":"t"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "A page with this handle already exists", body["message"])
	})
}

func TestUpdatePage(t *testing.T) {
	t.Run("only present fields are forwarded", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Update", mock.Anything, tenant.Identity{Tenant: shop}, "42", domain.PageUpdate{Title: strPtr("New")}).Return(nil)

		w, body := serve(t, pageRouter(svc), http.MethodPut, "/api/pages/42?shop="+shop, `{"title":"New"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Page updated successfully", body["message"])
		svc.AssertExpectations(t)
	})

	t.Run("published flag", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Update", mock.Anything, mock.Anything, "42", domain.PageUpdate{Published: boolPtr(true)}).Return(nil)

		w, _ := serve(t, pageRouter(svc), http.MethodPut, "/api/pages/42?shop="+shop, `{"published":true}`)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(mockPageService)
		svc.On("Update", mock.Anything, mock.Anything, "42", mock.Anything).Return(appErrors.NewNotFound("Page not found"))

		w, _ := serve(t, pageRouter(svc), http.MethodPut, "/api/pages/42?shop="+shop, `{"title":"New"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteAndPublishPage(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		call    string
		err     error
		code    int
		message string
	}{
		{"delete", http.MethodDelete, "/api/pages/42", "Delete", nil, http.StatusOK, "Page deleted successfully"},
		{"delete missing", http.MethodDelete, "/api/pages/42", "Delete", appErrors.NewNotFound("Page not found"), http.StatusNotFound, "Page not found"},
		{"publish", http.MethodPost, "/api/pages/42/publish", "Publish", nil, http.StatusOK, "Page published successfully"},
		{"unpublish", http.MethodPost, "/api/pages/42/unpublish", "Unpublish", nil, http.StatusOK, "Page unpublished successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockPageService)
			svc.On(tt.call, mock.Anything, tenant.Identity{Tenant: shop}, "42").Return(tt.err)

			w, body := serve(t, pageRouter(svc), tt.method, tt.target+"?shop="+shop, "")

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, body["message"])
			svc.AssertExpectations(t)
		})
	}
}
