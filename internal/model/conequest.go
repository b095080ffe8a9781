// internal/model/conequest.go
// Package model defines the data structures used throughout the conequest service.
// These structures represent the core domain objects for targets, completions,
// reviews, and location samples. JSON tags match the persisted document field
// names so the service stays interoperable with existing stored data.
package model

import (
	"time"
)

// Category classifies a target by landform.
type Category string

// Region places a target within one of the coarse geographic regions.
type Region string

const (
	CategoryCone   Category = "cone"
	CategoryCrater Category = "crater"
	CategoryLake   Category = "lake"
	CategoryOther  Category = "other"

	RegionNorth   Region = "north"
	RegionCentral Region = "central"
	RegionEast    Region = "east"
	RegionSouth   Region = "south"
	RegionHarbour Region = "harbour"
)

// Checkpoint is one of possibly several admissible sub-locations for a Target.
// Checkpoint ids are persisted on completion records, so the synthesized id
// scheme ("cp_<index>", "fallback") is stable across releases.
type Checkpoint struct {
	ID           string  `json:"id" db:"id"`
	Label        string  `json:"label" db:"label"`
	Lat          float64 `json:"lat" db:"lat"`
	Lng          float64 `json:"lng" db:"lng"`
	RadiusMeters float64 `json:"radiusMeters" db:"radius_meters"`
}

// Target is a point of interest a user can complete by visiting.
// Targets are authored externally and read-only to this service apart from
// the rating aggregate fields, which fold all reviews for the target.
// If Checkpoints is non-empty it strictly overrides the primary point for
// admission; the primary point remains authoritative only as fallback.
type Target struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Slug         string       `json:"slug" db:"slug"`
	Lat          float64      `json:"lat" db:"lat"`
	Lng          float64      `json:"lng" db:"lng"`
	RadiusMeters float64      `json:"radiusMeters" db:"radius_meters"`
	Checkpoints  []Checkpoint `json:"checkpoints,omitempty" db:"checkpoints"`
	Description  string       `json:"description,omitempty" db:"description"`
	Active       bool         `json:"active" db:"active"`
	Category     Category     `json:"category" db:"category"`
	Region       Region       `json:"region" db:"region"`

	// Rating aggregate, maintained transactionally with review writes.
	// Invariant: always equals the fold of all Review records for the target.
	RatingCount int     `json:"ratingCount" db:"rating_count"`
	RatingSum   int     `json:"ratingSum" db:"rating_sum"`
	AvgRating   float64 `json:"avgRating" db:"avg_rating"`
}

// LocationSample is a single device position reading. AccuracyMeters is nil
// when the platform did not report horizontal accuracy.
type LocationSample struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters *float64  `json:"accuracyMeters,omitempty"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// Completion is the persisted record of a user successfully visiting a Target.
// Its id is derived deterministically as {userId}_{targetId}, which enforces
// at-most-one completion per user per target at the storage-key level.
type Completion struct {
	ID         string `json:"id" db:"id"`
	UserID     string `json:"userId" db:"user_id"`
	TargetID   string `json:"targetId" db:"target_id"`
	TargetSlug string `json:"targetSlug" db:"target_slug"`
	TargetName string `json:"targetName" db:"target_name"`

	CompletedAt time.Time `json:"completedAt" db:"completed_at"`

	// Device sample and gate diagnostics captured at write time.
	Lat              float64  `json:"lat" db:"lat"`
	Lng              float64  `json:"lng" db:"lng"`
	AccuracyMeters   *float64 `json:"accuracyMeters,omitempty" db:"accuracy_meters"`
	DistanceMeters   float64  `json:"distanceMeters" db:"distance_meters"`
	CheckpointID     string   `json:"checkpointId" db:"checkpoint_id"`
	CheckpointLat    float64  `json:"checkpointLat" db:"checkpoint_lat"`
	CheckpointLng    float64  `json:"checkpointLng" db:"checkpoint_lng"`
	CheckpointRadius float64  `json:"checkpointRadius" db:"checkpoint_radius"`

	// Share-bonus sub-state. Mutated at most once, monotonically false to true.
	ShareBonus     bool       `json:"shareBonus" db:"share_bonus"`
	ShareConfirmed bool       `json:"shareConfirmed" db:"share_confirmed"`
	SharedAt       *time.Time `json:"sharedAt,omitempty" db:"shared_at"`
	SharedPlatform string     `json:"sharedPlatform,omitempty" db:"shared_platform"`
}

// Review is a user's 1-5 rating of a target with an optional note.
// Its id is derived as {userId}_{targetId}: at most one review per user per
// target. CreatedAt is preserved across updates.
type Review struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"userId" db:"user_id"`
	TargetID   string    `json:"targetId" db:"target_id"`
	TargetSlug string    `json:"targetSlug" db:"target_slug"`
	TargetName string    `json:"targetName" db:"target_name"`
	Rating     int       `json:"rating" db:"rating"`
	Note       *string   `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// RecordKey derives the deterministic storage key shared by completions and
// reviews. The key collision is the system's primary concurrency-safety
// mechanism, so the format must never change.
func RecordKey(userID, targetID string) string {
	return userID + "_" + targetID
}

// GateRequest is the request body for evaluating the admission gate.
type GateRequest struct {
	TargetID string          `json:"targetId"`
	Sample   *LocationSample `json:"sample"`
}

// CompleteRequest is the request body for recording a completion.
type CompleteRequest struct {
	TargetID string          `json:"targetId"`
	Sample   *LocationSample `json:"sample"`
}

// ShareRequest is the request body for confirming a share bonus.
type ShareRequest struct {
	TargetID string `json:"targetId"`
	Platform string `json:"platform"`
}

// ReviewRequest is the request body for saving a review.
type ReviewRequest struct {
	TargetID string   `json:"targetId"`
	Rating   *float64 `json:"rating"`
	Note     string   `json:"note,omitempty"`
}
