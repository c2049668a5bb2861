// Package ports declares the interfaces the application layer depends on,
// implemented by the infrastructure layer.
package ports

import (
	"context"

	"patchshare-backend/domain/events"
	"patchshare-backend/domain/patch"
)

// ListOptions carries the paging knobs shared by every listing query.
// Distinct option combinations produce distinct cache keys downstream, so
// callers should keep them canonical (zero values for defaults).
type ListOptions struct {
	Limit  int    `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
	SortBy string `json:"sortBy,omitempty"`
	Order  string `json:"order,omitempty"`
}

// PatchReader exposes one read function per logical query shape. The
// cache-aside layer treats these as the ground truth to memoize.
type PatchReader interface {
	GetByID(ctx context.Context, id string) (*patch.Patch, error)
	ListByUser(ctx context.Context, username string, opts ListOptions) (*patch.Page, error)
	Latest(ctx context.Context, limit int, cursor string) (*patch.Page, error)
	ListByCategory(ctx context.Context, category patch.Category, opts ListOptions) (*patch.Page, error)
	ListByTag(ctx context.Context, tag string, opts ListOptions) (*patch.Page, error)
	Search(ctx context.Context, term string, opts ListOptions) (*patch.Page, error)
	TopRated(ctx context.Context, minRating float64, opts ListOptions) (*patch.Page, error)
	Stats(ctx context.Context) (*patch.Stats, error)
	CountByUser(ctx context.Context, username string) (int, error)
}

// PatchRepository is the full persistence contract for patches.
type PatchRepository interface {
	PatchReader

	Create(ctx context.Context, p *patch.Patch) error
	Update(ctx context.Context, p *patch.Patch) error
	Delete(ctx context.Context, username, id string) error
}

// EventBus publishes domain events to external consumers.
type EventBus interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, batch []events.DomainEvent) error
}
