// Package services holds the application-layer orchestration: each write
// commits to the repository first, then publishes its domain event and
// triggers the cache invalidation cascade.
package services

import (
	"context"
	"time"

	"patchshare-backend/application/ports"
	"patchshare-backend/domain/events"
	"patchshare-backend/domain/patch"
	pkgerrors "patchshare-backend/pkg/errors"
	"patchshare-backend/pkg/utils"

	"go.uber.org/zap"
)

// Invalidator receives write notifications and drops the affected cache
// entries. Implemented by the caching layer; a no-op in tests that do not
// care about caching.
type Invalidator interface {
	OnPatchCreated(ctx context.Context, p *patch.Patch) int
	OnPatchUpdated(ctx context.Context, old, updated *patch.Patch) int
	OnPatchDeleted(ctx context.Context, p *patch.Patch) int
	OnPatchRated(ctx context.Context, p *patch.Patch) int
	OnPatchDownloaded(ctx context.Context, p *patch.Patch) int
}

// CreatePatchInput carries a validated create request
type CreatePatchInput struct {
	Name        string             `json:"name" validate:"required,max=120"`
	Description string             `json:"description" validate:"max=2000"`
	Category    string             `json:"category" validate:"required"`
	Tags        []string           `json:"tags" validate:"max=10,dive,max=50"`
	SynthModel  string             `json:"synthModel" validate:"required,max=120"`
	Parameters  map[string]float64 `json:"parameters" validate:"required,min=1"`
	Public      bool               `json:"public"`
}

// UpdatePatchInput carries a partial update; nil fields stay unchanged
type UpdatePatchInput struct {
	Name        *string             `json:"name" validate:"omitempty,max=120"`
	Description *string             `json:"description" validate:"omitempty,max=2000"`
	Category    *string             `json:"category"`
	Tags        *[]string           `json:"tags" validate:"omitempty,max=10,dive,max=50"`
	Parameters  *map[string]float64 `json:"parameters" validate:"omitempty,min=1"`
	Public      *bool               `json:"public"`
}

// PatchService implements the patch use cases. Reads go through the
// cached reader; writes always load current state from the uncached
// repository so ownership and version checks never see stale data.
type PatchService struct {
	repo        ports.PatchRepository
	reader      ports.PatchReader
	bus         ports.EventBus
	invalidator Invalidator
	logger      *zap.Logger
}

// NewPatchService creates the patch application service
func NewPatchService(repo ports.PatchRepository, reader ports.PatchReader, bus ports.EventBus, invalidator Invalidator, logger *zap.Logger) *PatchService {
	return &PatchService{
		repo:        repo,
		reader:      reader,
		bus:         bus,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Create shares a new patch owned by username
func (s *PatchService) Create(ctx context.Context, username string, input CreatePatchInput) (*patch.Patch, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	p, err := patch.NewPatch(username, input.Name, input.Description,
		patch.Category(input.Category), input.Tags, input.SynthModel,
		input.Parameters, input.Public)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.NewPatchCreated(p))
	s.invalidator.OnPatchCreated(ctx, p)

	return p, nil
}

// Update applies a partial update to a patch owned by username
func (s *PatchService) Update(ctx context.Context, username, id string, input UpdatePatchInput) (*patch.Patch, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	old, err := s.ownedPatch(ctx, username, id)
	if err != nil {
		return nil, err
	}

	upd := patch.Update{
		Name:        input.Name,
		Description: input.Description,
		Tags:        input.Tags,
		Parameters:  input.Parameters,
		Public:      input.Public,
	}
	if input.Category != nil {
		category := patch.Category(*input.Category)
		upd.Category = &category
	}

	updated, err := old.Apply(upd)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.NewPatchUpdated(old, updated))
	s.invalidator.OnPatchUpdated(ctx, old, updated)

	return updated, nil
}

// Delete removes a patch owned by username
func (s *PatchService) Delete(ctx context.Context, username, id string) error {
	old, err := s.ownedPatch(ctx, username, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, username, id); err != nil {
		return err
	}

	s.afterWrite(ctx, events.NewPatchDeleted(old))
	s.invalidator.OnPatchDeleted(ctx, old)

	return nil
}

// Rate records a 1-5 star rating by any authenticated user
func (s *PatchService) Rate(ctx context.Context, id string, stars int) (*patch.Patch, error) {
	p, err := s.visiblePatchForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	rated, err := p.AddRating(stars)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rated); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, events.NewPatchRated(rated, stars))
	s.invalidator.OnPatchRated(ctx, rated)

	return rated, nil
}

// RecordDownload bumps the download counter for a patch
func (s *PatchService) RecordDownload(ctx context.Context, id string) (*patch.Patch, error) {
	p, err := s.visiblePatchForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	downloaded := p.RecordDownload()
	if err := s.repo.Update(ctx, downloaded); err != nil {
		return nil, err
	}

	s.invalidator.OnPatchDownloaded(ctx, downloaded)

	return downloaded, nil
}

// GetPatch returns a patch visible to requester. Private patches are
// reported as not found to anyone but their owner.
func (s *PatchService) GetPatch(ctx context.Context, requester, id string) (*patch.Patch, error) {
	p, err := s.reader.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Public && p.Username != requester {
		return nil, pkgerrors.NewNotFoundError("patch")
	}
	return p, nil
}

// ListByUser returns one page of a user's patches. Private patches are
// filtered out unless the requester is the owner.
func (s *PatchService) ListByUser(ctx context.Context, requester, username string, opts ports.ListOptions) (*patch.Page, error) {
	page, err := s.reader.ListByUser(ctx, username, opts)
	if err != nil {
		return nil, err
	}
	if requester == username {
		return page, nil
	}

	visible := make([]*patch.Patch, 0, len(page.Items))
	for _, p := range page.Items {
		if p.Public {
			visible = append(visible, p)
		}
	}
	return &patch.Page{Items: visible, NextCursor: page.NextCursor, Count: len(visible)}, nil
}

// Latest returns the newest public patches
func (s *PatchService) Latest(ctx context.Context, limit int, cursor string) (*patch.Page, error) {
	return s.reader.Latest(ctx, limit, cursor)
}

// ListByCategory returns one page of a category
func (s *PatchService) ListByCategory(ctx context.Context, category patch.Category, opts ports.ListOptions) (*patch.Page, error) {
	if !category.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown category")
	}
	return s.reader.ListByCategory(ctx, category, opts)
}

// ListByTag returns one page of patches carrying the tag
func (s *PatchService) ListByTag(ctx context.Context, tag string, opts ports.ListOptions) (*patch.Page, error) {
	return s.reader.ListByTag(ctx, tag, opts)
}

// Search returns one page of text search results
func (s *PatchService) Search(ctx context.Context, term string, opts ports.ListOptions) (*patch.Page, error) {
	return s.reader.Search(ctx, term, opts)
}

// TopRated returns one page of the rating-ordered listing
func (s *PatchService) TopRated(ctx context.Context, minRating float64, opts ports.ListOptions) (*patch.Page, error) {
	return s.reader.TopRated(ctx, minRating, opts)
}

// Stats returns library-wide aggregates
func (s *PatchService) Stats(ctx context.Context) (*patch.Stats, error) {
	return s.reader.Stats(ctx)
}

// CountByUser returns the user's patch count
func (s *PatchService) CountByUser(ctx context.Context, username string) (int, error) {
	return s.reader.CountByUser(ctx, username)
}

// ownedPatch loads the patch from the uncached repository and enforces
// ownership
func (s *PatchService) ownedPatch(ctx context.Context, username, id string) (*patch.Patch, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Username != username {
		return nil, pkgerrors.NewForbiddenError("only the owner can modify this patch")
	}
	return p, nil
}

// visiblePatchForWrite loads fresh state for a counter update
func (s *PatchService) visiblePatchForWrite(ctx context.Context, id string) (*patch.Patch, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Public {
		return nil, pkgerrors.NewNotFoundError("patch")
	}
	return p, nil
}

// afterWrite publishes an event once its write has committed. Delivery is
// best effort: the write already happened, so a bus failure is logged and
// swallowed rather than surfaced as a request error.
func (s *PatchService) afterWrite(ctx context.Context, event events.DomainEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.bus.Publish(publishCtx, event); err != nil {
		s.logger.Warn("failed to publish domain event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}
