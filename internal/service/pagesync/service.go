// Package pagesync keeps storefront pages available whether or not the
// Shopify Admin API can be used. Every operation tries the remote API first
// when the request carries an access token, mirrors successful writes into the
// local store, and falls back to the local store otherwise.
package pagesync

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/events"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository"
	"github.com/raimediatech/kingsbuilder/internal/shopify"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Paths reported in the pagesync_operations_total metric.
const (
	PathRemote       = "remote"
	PathLocal        = "local"
	PathMirrorFailed = "mirror_failed"
	PathNotFound     = "not_found"
)

var errEmptyRemoteResponse = errors.New("remote returned no page")

// PageNotFoundMessage is the message of every not found error returned here.
const PageNotFoundMessage = "Page not found"

// Service is the synchronization orchestrator.
type Service struct {
	remote  shopify.Client
	store   repository.PageStore
	bus     events.Bus
	metrics *observability.Collector
	logger  *zap.Logger
	policy  atomic.Pointer[Policy]
	now     func() time.Time
}

// NewService wires the orchestrator. bus and metrics may be nil.
func NewService(
	remote shopify.Client,
	store repository.PageStore,
	bus events.Bus,
	metrics *observability.Collector,
	logger *zap.Logger,
	policy Policy,
) *Service {
	if bus == nil {
		bus = events.NoopBus{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		remote:  remote,
		store:   store,
		bus:     bus,
		metrics: metrics,
		logger:  logger.Named("pagesync"),
		now:     time.Now,
	}
	s.SetPolicy(policy)
	return s
}

// SetPolicy replaces the runtime policy. Safe for concurrent use.
func (s *Service) SetPolicy(p Policy) {
	p = p.withDefaults()
	s.policy.Store(&p)
	s.logger.Info("sync policy applied",
		zap.Bool("emptyRemoteFallback", p.EmptyRemoteFallback),
		zap.Duration("remoteTimeout", p.RemoteTimeout),
	)
}

// Policy returns the current runtime policy.
func (s *Service) Policy() Policy {
	return *s.policy.Load()
}

// Create creates a page remotely when possible and locally otherwise.
func (s *Service) Create(ctx context.Context, id tenant.Identity, in domain.NewPageInput) (page *domain.Page, err error) {
	ctx, span := s.startSpan(ctx, "create", id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return nil, appErrors.NewMissingTenant()
	}
	in, err = domain.NormalizeInput(in)
	if err != nil {
		return nil, appErrors.NewValidation(capitalize(err.Error()))
	}

	if id.HasCredential() {
		remotePage, rerr := s.callRemotePage(ctx, "create", func(ctx context.Context) (*domain.Page, error) {
			return s.remote.Create(ctx, id.Tenant, id.Credential, in)
		})
		if rerr == nil {
			s.mirrorCreate(ctx, remotePage)
			s.record(span, "create", PathRemote)
			s.emit(ctx, events.PageCreated, id.Tenant, remotePage.ID, remotePage, domain.SourceRemote)
			return remotePage, nil
		}
		s.logRemoteFailure("create", id.Tenant, rerr)
	}

	local := domain.NewLocalPage(id.Tenant, in, s.now())
	created, err := s.store.Create(ctx, local)
	if err != nil {
		if repository.IsHandleConflict(err) {
			return nil, appErrors.NewValidation("A page with this handle already exists")
		}
		return nil, appErrors.NewLocalStore("failed to create page locally", err)
	}
	s.record(span, "create", PathLocal)
	s.emit(ctx, events.PageCreated, id.Tenant, created.ID, created, domain.SourceLocal)
	return created, nil
}

// List returns the remote pages when the remote answers with a usable list,
// otherwise the local ones.
func (s *Service) List(ctx context.Context, id tenant.Identity) (pages []*domain.Page, err error) {
	ctx, span := s.startSpan(ctx, "list", id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return nil, appErrors.NewMissingTenant()
	}

	if id.HasCredential() {
		remotePages, rerr := s.callRemoteList(ctx, id)
		switch {
		case rerr != nil:
			s.logRemoteFailure("list", id.Tenant, rerr)
		case len(remotePages) > 0 || !s.Policy().EmptyRemoteFallback:
			s.record(span, "list", PathRemote)
			if remotePages == nil {
				remotePages = []*domain.Page{}
			}
			return remotePages, nil
		default:
			s.logger.Debug("remote list empty, falling back to local store", zap.String("shop", id.Tenant))
		}
	}

	pages, err = s.store.List(ctx, id.Tenant)
	if err != nil {
		return nil, appErrors.NewLocalStore("failed to list local pages", err)
	}
	if pages == nil {
		pages = []*domain.Page{}
	}
	s.record(span, "list", PathLocal)
	return pages, nil
}

// Get returns a page by id or handle.
func (s *Service) Get(ctx context.Context, id tenant.Identity, key string) (page *domain.Page, err error) {
	ctx, span := s.startSpan(ctx, "get", id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return nil, appErrors.NewMissingTenant()
	}

	// Locally minted ids never exist remotely.
	if id.HasCredential() && !domain.IsLocalID(key) {
		remotePage, rerr := s.callRemotePage(ctx, "get", func(ctx context.Context) (*domain.Page, error) {
			return s.remote.Get(ctx, id.Tenant, id.Credential, key)
		})
		if rerr == nil {
			s.record(span, "get", PathRemote)
			return remotePage, nil
		}
		s.logRemoteFailure("get", id.Tenant, rerr)
	}

	page, err = s.store.Get(ctx, id.Tenant, key)
	if err != nil {
		if repository.IsNotFound(err) {
			s.record(span, "get", PathNotFound)
			return nil, appErrors.NewNotFound(PageNotFoundMessage)
		}
		return nil, appErrors.NewLocalStore("failed to read local page", err)
	}
	s.record(span, "get", PathLocal)
	return page, nil
}

// Update applies a partial update. Only the fields set in u change.
func (s *Service) Update(ctx context.Context, id tenant.Identity, key string, u domain.PageUpdate) (err error) {
	ctx, span := s.startSpan(ctx, "update", id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return appErrors.NewMissingTenant()
	}
	if u, err = normalizeUpdate(u); err != nil {
		return err
	}

	eventType := events.PageUpdated
	if u.Published != nil && len(u.RemoteSnapshot) == 0 && u.Title == nil && u.Handle == nil && u.Body == nil {
		eventType = events.PageUnpublished
		if *u.Published {
			eventType = events.PagePublished
		}
	}

	if id.HasCredential() && !domain.IsLocalID(key) {
		remotePage, rerr := s.callRemotePage(ctx, "update", func(ctx context.Context) (*domain.Page, error) {
			return s.remote.Update(ctx, id.Tenant, id.Credential, key, u)
		})
		if rerr == nil {
			mirror := u
			mirror.RemoteSnapshot = remotePage.RemoteSnapshot
			s.mirrorWrite(ctx, span, "update", id.Tenant, key, remotePage.Handle, func(k string) (bool, error) {
				return s.store.Update(ctx, id.Tenant, k, mirror)
			})
			s.record(span, "update", PathRemote)
			s.emit(ctx, eventType, id.Tenant, key, remotePage, domain.SourceRemote)
			return nil
		}
		s.logRemoteFailure("update", id.Tenant, rerr)
	}

	matched, err := s.store.Update(ctx, id.Tenant, key, u)
	if err != nil {
		if repository.IsHandleConflict(err) {
			return appErrors.NewValidation("A page with this handle already exists")
		}
		return appErrors.NewLocalStore("failed to update local page", err)
	}
	if !matched {
		s.record(span, "update", PathNotFound)
		return appErrors.NewNotFound(PageNotFoundMessage)
	}
	s.record(span, "update", PathLocal)
	s.emit(ctx, eventType, id.Tenant, key, nil, domain.SourceLocal)
	return nil
}

// Delete removes the page on both sides. It succeeds if either side had it.
func (s *Service) Delete(ctx context.Context, id tenant.Identity, key string) (err error) {
	ctx, span := s.startSpan(ctx, "delete", id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return appErrors.NewMissingTenant()
	}

	remoteDeleted := false
	if id.HasCredential() && !domain.IsLocalID(key) {
		rerr := s.callRemote(ctx, "delete", func(ctx context.Context) error {
			return s.remote.Delete(ctx, id.Tenant, id.Credential, key)
		})
		if rerr == nil {
			remoteDeleted = true
		} else {
			s.logRemoteFailure("delete", id.Tenant, rerr)
		}
	}

	localDeleted, lerr := s.store.Delete(ctx, id.Tenant, key)
	if lerr != nil {
		if !remoteDeleted {
			return appErrors.NewLocalStore("failed to delete local page", lerr)
		}
		s.logger.Warn("local delete failed after remote delete",
			zap.String("shop", id.Tenant), zap.String("key", key), zap.Error(lerr))
		s.record(span, "delete", PathMirrorFailed)
	}

	switch {
	case remoteDeleted:
		s.record(span, "delete", PathRemote)
		s.emit(ctx, events.PageDeleted, id.Tenant, key, nil, domain.SourceRemote)
	case localDeleted:
		s.record(span, "delete", PathLocal)
		s.emit(ctx, events.PageDeleted, id.Tenant, key, nil, domain.SourceLocal)
	default:
		s.record(span, "delete", PathNotFound)
		return appErrors.NewNotFound(PageNotFoundMessage)
	}
	return nil
}

// Publish marks a page published on both sides.
func (s *Service) Publish(ctx context.Context, id tenant.Identity, key string) error {
	return s.setPublished(ctx, id, key, true)
}

// Unpublish marks a page as draft on both sides.
func (s *Service) Unpublish(ctx context.Context, id tenant.Identity, key string) error {
	return s.setPublished(ctx, id, key, false)
}

func (s *Service) setPublished(ctx context.Context, id tenant.Identity, key string, published bool) (err error) {
	op, eventType, localFn := "unpublish", events.PageUnpublished, s.store.Unpublish
	if published {
		op, eventType, localFn = "publish", events.PagePublished, s.store.Publish
	}

	ctx, span := s.startSpan(ctx, op, id)
	defer func() { observability.EndSpan(span, err) }()

	if !id.HasTenant() {
		return appErrors.NewMissingTenant()
	}

	if id.HasCredential() && !domain.IsLocalID(key) {
		remotePage, rerr := s.callRemotePage(ctx, op, func(ctx context.Context) (*domain.Page, error) {
			return s.remote.Update(ctx, id.Tenant, id.Credential, key, domain.PageUpdate{Published: &published})
		})
		if rerr == nil {
			s.mirrorWrite(ctx, span, op, id.Tenant, key, remotePage.Handle, func(k string) (bool, error) {
				return localFn(ctx, id.Tenant, k)
			})
			s.record(span, op, PathRemote)
			s.emit(ctx, eventType, id.Tenant, key, remotePage, domain.SourceRemote)
			return nil
		}
		s.logRemoteFailure(op, id.Tenant, rerr)
	}

	matched, err := localFn(ctx, id.Tenant, key)
	if err != nil {
		return appErrors.NewLocalStore("failed to "+op+" local page", err)
	}
	if !matched {
		s.record(span, op, PathNotFound)
		return appErrors.NewNotFound(PageNotFoundMessage)
	}
	s.record(span, op, PathLocal)
	s.emit(ctx, eventType, id.Tenant, key, nil, domain.SourceLocal)
	return nil
}

// mirrorCreate copies a remote-created page into the local store. Failures
// are logged and counted, never returned.
func (s *Service) mirrorCreate(ctx context.Context, page *domain.Page) {
	if _, err := s.store.Create(ctx, page.Clone()); err != nil {
		s.logger.Warn("failed to mirror created page",
			zap.String("shop", page.Tenant), zap.String("id", page.ID), zap.Error(err))
		s.metrics.RecordSync("create", PathMirrorFailed)
	}
}

// mirrorWrite applies fn to the local record matched by key, then by handle.
func (s *Service) mirrorWrite(ctx context.Context, span trace.Span, op, shop, key, handle string, fn func(key string) (bool, error)) {
	keys := []string{key}
	if handle != "" && handle != key {
		keys = append(keys, handle)
	}

	for _, k := range keys {
		matched, err := fn(k)
		if err != nil {
			s.logger.Warn("failed to mirror page change",
				zap.String("operation", op), zap.String("shop", shop), zap.String("key", k), zap.Error(err))
			s.metrics.RecordSync(op, PathMirrorFailed)
			span.SetAttributes(attribute.Bool("pagesync.mirror_failed", true))
			return
		}
		if matched {
			return
		}
	}
	s.logger.Debug("no local copy to mirror into", zap.String("operation", op), zap.String("shop", shop), zap.String("key", key))
}

func (s *Service) callRemote(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.Policy().RemoteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordRemote(op, remoteOutcome(err), time.Since(start))
	return err
}

func (s *Service) callRemotePage(ctx context.Context, op string, fn func(ctx context.Context) (*domain.Page, error)) (*domain.Page, error) {
	var page *domain.Page
	err := s.callRemote(ctx, op, func(ctx context.Context) error {
		var err error
		page, err = fn(ctx)
		return err
	})
	if err == nil && page == nil {
		return nil, &shopify.RemoteUnavailableError{Op: op, Err: errEmptyRemoteResponse}
	}
	return page, err
}

func (s *Service) callRemoteList(ctx context.Context, id tenant.Identity) ([]*domain.Page, error) {
	var pages []*domain.Page
	err := s.callRemote(ctx, "list", func(ctx context.Context) error {
		var err error
		pages, err = s.remote.List(ctx, id.Tenant, id.Credential)
		return err
	})
	return pages, err
}

func (s *Service) logRemoteFailure(op, shop string, err error) {
	fields := []zap.Field{zap.String("operation", op), zap.String("shop", shop), zap.Error(err)}
	if shopify.IsNotFound(err) {
		s.logger.Debug("remote page not found, falling back to local store", fields...)
		return
	}
	s.logger.Warn("remote call failed, falling back to local store", fields...)
}

func (s *Service) emit(ctx context.Context, eventType, shop, key string, page *domain.Page, source string) {
	event := events.NewPageEvent(eventType, shop, key, page, source, s.now())
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish page event", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *Service) record(span trace.Span, op, path string) {
	span.SetAttributes(attribute.String("pagesync.path", path))
	s.metrics.RecordSync(op, path)
}

func (s *Service) startSpan(ctx context.Context, op string, id tenant.Identity) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "pagesync."+op,
		trace.WithAttributes(
			attribute.String("shop", id.Tenant),
			attribute.Bool("pagesync.has_credential", id.HasCredential()),
		),
	)
}

func remoteOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case shopify.IsUnavailable(err):
		return "unavailable"
	default:
		return "api_error"
	}
}

// normalizeUpdate validates the fields present in u.
func normalizeUpdate(u domain.PageUpdate) (domain.PageUpdate, error) {
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return u, appErrors.NewValidation("Title cannot be empty")
		}
		u.Title = &title
	}
	if u.Handle != nil {
		handle, err := domain.NormalizeHandle(*u.Handle)
		if err != nil {
			return u, appErrors.NewValidation(capitalize(err.Error()))
		}
		u.Handle = &handle
	}
	return u, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
