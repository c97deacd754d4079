// Package domain holds the page entity shared by the remote client, the local
// stores and the synchronization service.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-slug"
	"github.com/google/uuid"
)

// Page statuses. Status is always derived from Published.
const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// Page sources.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// LocalIDPrefix marks identifiers minted by this service rather than the remote API.
const LocalIDPrefix = "local_"

// DefaultBody is used when a page is created without content.
const DefaultBody = "<p>New page content</p>"

// Page is a storefront page scoped to a single shop.
type Page struct {
	ID             string          `json:"id"`
	Tenant         string          `json:"shop"`
	Handle         string          `json:"handle"`
	Title          string          `json:"title"`
	Body           string          `json:"content"`
	Published      bool            `json:"published"`
	Status         string          `json:"status"`
	Source         string          `json:"source,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	PublishedAt    *time.Time      `json:"publishedAt,omitempty"`
	RemoteSnapshot json.RawMessage `json:"remoteSnapshot,omitempty"`
}

// NewPageInput carries the fields accepted when creating a page.
type NewPageInput struct {
	Title     string
	Handle    string
	Body      string
	Published bool
}

// PageUpdate is a partial update. Nil fields are left untouched.
type PageUpdate struct {
	Title          *string
	Handle         *string
	Body           *string
	Published      *bool
	RemoteSnapshot json.RawMessage
}

// IsEmpty reports whether the update changes nothing.
func (u PageUpdate) IsEmpty() bool {
	return u.Title == nil && u.Handle == nil && u.Body == nil && u.Published == nil && len(u.RemoteSnapshot) == 0
}

// StatusFor derives the status string from the published flag.
func StatusFor(published bool) string {
	if published {
		return StatusPublished
	}
	return StatusDraft
}

// NormalizeInput fills the handle and body defaults and validates the title.
func NormalizeInput(in NewPageInput) (NewPageInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, fmt.Errorf("title is required")
	}

	handle := in.Handle
	if strings.TrimSpace(handle) == "" {
		handle = in.Title
	}
	normalized, err := NormalizeHandle(handle)
	if err != nil {
		return in, err
	}
	in.Handle = normalized

	if in.Body == "" {
		in.Body = DefaultBody
	}
	return in, nil
}

// NormalizeHandle turns free text into a URL handle.
func NormalizeHandle(value string) (string, error) {
	normalized, err := slug.Normalize(value)
	if err != nil {
		return "", fmt.Errorf("invalid handle %q: %w", value, err)
	}
	if normalized == "" {
		return "", fmt.Errorf("invalid handle %q", value)
	}
	return normalized, nil
}

// NewLocalPage builds a locally sourced page from normalized input.
func NewLocalPage(tenant string, in NewPageInput, now time.Time) *Page {
	p := &Page{
		ID:        LocalID(now),
		Tenant:    tenant,
		Handle:    in.Handle,
		Title:     in.Title,
		Body:      in.Body,
		Source:    SourceLocal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.SetPublished(in.Published, now)
	return p
}

// LocalID mints a local identifier. The millisecond timestamp keeps ids
// roughly ordered; the uuid suffix keeps ids minted in the same millisecond apart.
func LocalID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", LocalIDPrefix, now.UnixMilli(), uuid.NewString())
}

// IsLocalID reports whether id was minted locally.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// SetPublished updates the published flag and keeps Status and PublishedAt consistent.
// PublishedAt is only stamped on the draft to published transition.
func (p *Page) SetPublished(published bool, now time.Time) {
	if published {
		if !p.Published || p.PublishedAt == nil {
			t := now
			p.PublishedAt = &t
		}
	} else {
		p.PublishedAt = nil
	}
	p.Published = published
	p.Status = StatusFor(published)
}

// Apply merges a partial update into the page and stamps UpdatedAt.
func (p *Page) Apply(u PageUpdate, now time.Time) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Handle != nil {
		p.Handle = *u.Handle
	}
	if u.Body != nil {
		p.Body = *u.Body
	}
	if u.Published != nil {
		p.SetPublished(*u.Published, now)
	}
	if len(u.RemoteSnapshot) > 0 {
		p.RemoteSnapshot = u.RemoteSnapshot
	}
	p.UpdatedAt = now
}

// Clone returns a deep copy.
func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	c := *p
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	if p.RemoteSnapshot != nil {
		c.RemoteSnapshot = append(json.RawMessage(nil), p.RemoteSnapshot...)
	}
	return &c
}
