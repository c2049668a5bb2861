// Package patch holds the synthesizer patch domain model.
package patch

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "patchshare-backend/pkg/errors"

	"github.com/google/uuid"
)

// Category classifies a patch by the sound it produces.
type Category string

const (
	CategoryBass   Category = "bass"
	CategoryLead   Category = "lead"
	CategoryPad    Category = "pad"
	CategoryPluck  Category = "pluck"
	CategoryKeys   Category = "keys"
	CategoryFX     Category = "fx"
	CategoryDrums  Category = "drums"
	CategoryOther  Category = "other"
)

// Categories lists every valid category, in display order.
var Categories = []Category{
	CategoryBass, CategoryLead, CategoryPad, CategoryPluck,
	CategoryKeys, CategoryFX, CategoryDrums, CategoryOther,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	maxNameLength        = 120
	maxDescriptionLength = 2000
	maxTags              = 10
	maxTagLength         = 50
)

// Patch is a shareable synthesizer preset: the parameter values for a
// synth model plus the metadata users browse and search by.
type Patch struct {
	ID          string             `json:"id"`
	Username    string             `json:"username"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Category    Category           `json:"category"`
	Tags        []string           `json:"tags,omitempty"`
	SynthModel  string             `json:"synthModel"`
	Parameters  map[string]float64 `json:"parameters"`
	Public      bool               `json:"public"`
	RatingSum   int                `json:"ratingSum"`
	RatingCount int                `json:"ratingCount"`
	Downloads   int                `json:"downloads"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Version     int                `json:"version"`
}

// NewPatch creates a patch with business rule validation applied.
func NewPatch(username, name, description string, category Category, tags []string, synthModel string, params map[string]float64, public bool) (*Patch, error) {
	p := &Patch{
		ID:          uuid.New().String(),
		Username:    username,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Category:    category,
		Tags:        normalizeTags(tags),
		SynthModel:  strings.TrimSpace(synthModel),
		Parameters:  params,
		Public:      public,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Version:     1,
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Patch) validate() error {
	if p.Username == "" {
		return pkgerrors.NewValidationError("username cannot be empty")
	}
	if p.Name == "" {
		return pkgerrors.NewValidationError("patch name cannot be empty")
	}
	if len(p.Name) > maxNameLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("patch name exceeds %d characters", maxNameLength))
	}
	if len(p.Description) > maxDescriptionLength {
		return pkgerrors.NewValidationError(fmt.Sprintf("description exceeds %d characters", maxDescriptionLength))
	}
	if !p.Category.IsValid() {
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown category %q", p.Category))
	}
	if len(p.Tags) > maxTags {
		return pkgerrors.NewValidationError(fmt.Sprintf("at most %d tags allowed", maxTags))
	}
	for _, tag := range p.Tags {
		if len(tag) > maxTagLength {
			return pkgerrors.NewValidationError(fmt.Sprintf("tag %q exceeds %d characters", tag, maxTagLength))
		}
	}
	if p.SynthModel == "" {
		return pkgerrors.NewValidationError("synth model cannot be empty")
	}
	if len(p.Parameters) == 0 {
		return pkgerrors.NewValidationError("patch must carry at least one parameter")
	}
	return nil
}

// Update describes a partial patch update; nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
	Category    *Category
	Tags        *[]string
	Parameters  *map[string]float64
	Public      *bool
}

// Apply merges u into a copy of p, bumps the version, and validates the
// result. The receiver is left untouched so callers keep the old state
// for cache invalidation.
func (p *Patch) Apply(u Update) (*Patch, error) {
	next := *p
	next.Tags = append([]string(nil), p.Tags...)

	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		next.Description = strings.TrimSpace(*u.Description)
	}
	if u.Category != nil {
		next.Category = *u.Category
	}
	if u.Tags != nil {
		next.Tags = normalizeTags(*u.Tags)
	}
	if u.Parameters != nil {
		next.Parameters = *u.Parameters
	}
	if u.Public != nil {
		next.Public = *u.Public
	}

	next.UpdatedAt = time.Now()
	next.Version = p.Version + 1

	if err := next.validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// AddRating records a 1-5 star rating and returns the updated copy.
func (p *Patch) AddRating(stars int) (*Patch, error) {
	if stars < 1 || stars > 5 {
		return nil, pkgerrors.NewValidationError("rating must be between 1 and 5")
	}
	next := *p
	next.RatingSum = p.RatingSum + stars
	next.RatingCount = p.RatingCount + 1
	next.UpdatedAt = time.Now()
	next.Version = p.Version + 1
	return &next, nil
}

// RecordDownload bumps the download counter and returns the updated copy.
func (p *Patch) RecordDownload() *Patch {
	next := *p
	next.Downloads = p.Downloads + 1
	next.UpdatedAt = time.Now()
	next.Version = p.Version + 1
	return &next
}

// AverageRating returns the mean rating, or 0 when unrated.
func (p *Patch) AverageRating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.RatingCount)
}

// TagSet returns the patch's tags as a set for symmetric-difference
// computations.
func (p *Patch) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		set[t] = struct{}{}
	}
	return set
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Stats aggregates library-wide patch figures for the stats endpoint.
type Stats struct {
	TotalPatches   int              `json:"totalPatches"`
	TotalDownloads int              `json:"totalDownloads"`
	AverageRating  float64          `json:"averageRating"`
	ByCategory     map[Category]int `json:"byCategory"`
}

// Page is one cursor-paginated slice of patches.
type Page struct {
	Items      []*Patch `json:"items"`
	NextCursor string   `json:"nextCursor,omitempty"`
	Count      int      `json:"count"`
}
