// Package events defines the domain events published after patch writes
// commit, which drive cache invalidation and downstream consumers.
package events

import (
	"time"

	"patchshare-backend/domain/patch"
)

// SourcePatchshare identifies this service as an event source.
const SourcePatchshare = "patchshare.api"

// DomainEvent is the base interface for all domain events.
// Events represent something that has already happened.
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// PatchCreated is raised when a new patch is shared.
type PatchCreated struct {
	BaseEvent
	Username string         `json:"username"`
	Category patch.Category `json:"category"`
	Tags     []string       `json:"tags"`
}

// NewPatchCreated creates a PatchCreated event.
func NewPatchCreated(p *patch.Patch) PatchCreated {
	return PatchCreated{
		BaseEvent: BaseEvent{
			AggregateID: p.ID,
			EventType:   "patch.created",
			Timestamp:   time.Now(),
			Version:     p.Version,
		},
		Username: p.Username,
		Category: p.Category,
		Tags:     p.Tags,
	}
}

// PatchUpdated is raised when a patch's metadata or parameters change.
type PatchUpdated struct {
	BaseEvent
	Username    string         `json:"username"`
	OldCategory patch.Category `json:"old_category"`
	NewCategory patch.Category `json:"new_category"`
	OldTags     []string       `json:"old_tags"`
	NewTags     []string       `json:"new_tags"`
}

// NewPatchUpdated creates a PatchUpdated event carrying enough payload for
// consumers to compute affected cache keys.
func NewPatchUpdated(old, updated *patch.Patch) PatchUpdated {
	return PatchUpdated{
		BaseEvent: BaseEvent{
			AggregateID: updated.ID,
			EventType:   "patch.updated",
			Timestamp:   time.Now(),
			Version:     updated.Version,
		},
		Username:    updated.Username,
		OldCategory: old.Category,
		NewCategory: updated.Category,
		OldTags:     old.Tags,
		NewTags:     updated.Tags,
	}
}

// PatchDeleted is raised when a patch is removed.
type PatchDeleted struct {
	BaseEvent
	Username string         `json:"username"`
	Category patch.Category `json:"category"`
	Tags     []string       `json:"tags"`
}

// NewPatchDeleted creates a PatchDeleted event.
func NewPatchDeleted(p *patch.Patch) PatchDeleted {
	return PatchDeleted{
		BaseEvent: BaseEvent{
			AggregateID: p.ID,
			EventType:   "patch.deleted",
			Timestamp:   time.Now(),
			Version:     p.Version,
		},
		Username: p.Username,
		Category: p.Category,
		Tags:     p.Tags,
	}
}

// PatchRated is raised when a user rates a patch.
type PatchRated struct {
	BaseEvent
	Username string  `json:"username"`
	Stars    int     `json:"stars"`
	Average  float64 `json:"average"`
}

// NewPatchRated creates a PatchRated event.
func NewPatchRated(p *patch.Patch, stars int) PatchRated {
	return PatchRated{
		BaseEvent: BaseEvent{
			AggregateID: p.ID,
			EventType:   "patch.rated",
			Timestamp:   time.Now(),
			Version:     p.Version,
		},
		Username: p.Username,
		Stars:    stars,
		Average:  p.AverageRating(),
	}
}
