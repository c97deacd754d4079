// Package events publishes page lifecycle events. Publishing is best effort:
// the synchronization service logs failures and carries on.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"

	"github.com/google/uuid"
)

// Event types.
const (
	PageCreated     = "page.created"
	PageUpdated     = "page.updated"
	PageDeleted     = "page.deleted"
	PagePublished   = "page.published"
	PageUnpublished = "page.unpublished"
)

// Source identifies this service on the bus.
const Source = "kingsbuilder.pages"

// PageEvent describes one change to a page.
type PageEvent struct {
	EventID   string    `json:"eventId"`
	Type      string    `json:"type"`
	Shop      string    `json:"shop"`
	PageID    string    `json:"pageId"`
	Handle    string    `json:"handle,omitempty"`
	Source    string    `json:"source"` // remote or local: the path that served the change
	Timestamp time.Time `json:"timestamp"`
}

// NewPageEvent builds an event for page. page may be nil for deletions, in
// which case key is used as the page id.
func NewPageEvent(eventType, shop, key string, page *domain.Page, source string, now time.Time) PageEvent {
	e := PageEvent{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Shop:      shop,
		PageID:    key,
		Source:    source,
		Timestamp: now,
	}
	if page != nil {
		e.PageID = page.ID
		e.Handle = page.Handle
	}
	return e
}

// Bus publishes page events.
type Bus interface {
	Publish(ctx context.Context, events ...PageEvent) error
}

// NoopBus drops every event.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, events ...PageEvent) error { return nil }

// RecordingBus keeps published events in memory. Used by tests and local runs.
type RecordingBus struct {
	mu     sync.Mutex
	events []PageEvent
}

func (b *RecordingBus) Publish(ctx context.Context, events ...PageEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

// Events returns a copy of what was published so far.
func (b *RecordingBus) Events() []PageEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PageEvent(nil), b.events...)
}
