// internal/checkin/recorder.go
// Package checkin implements the completion and review recorders: the
// operations that turn an admitted check-in attempt or a rating into a
// persisted record. Every public operation returns a success value or an
// *errors.Error carrying user-facing text; nothing panics past this boundary
// and a failed write leaves prior state untouched.
package checkin

import (
	"context"
	"log/slog"
	"math"
	"time"

	errordefs "github.com/conequest/conequest-go/internal/errors"
	"github.com/conequest/conequest-go/internal/geo"
	"github.com/conequest/conequest-go/internal/model"
	"github.com/conequest/conequest-go/internal/storage"
)

// MaxNoteLength caps review note text. Longer notes are truncated, not
// rejected.
const MaxNoteLength = 280

// Recorder performs completion and review writes against the store.
// The store's transactional guarantees are the only concurrency control;
// the recorder never retries a failed write on its own.
type Recorder struct {
	store storage.Store
	now   func() time.Time
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CompleteResult reports the outcome of a successful CompleteTarget call.
// AlreadyCompleted is true when a record existed before the call; the stored
// record is returned unchanged in that case.
type CompleteResult struct {
	Completion       model.Completion `json:"completion"`
	AlreadyCompleted bool             `json:"alreadyCompleted"`
}

// CompleteTarget records a completion for (user, target). Preconditions are
// checked in order and the first violation is returned as a tagged failure.
// The write itself is an atomic idempotent create keyed {userId}_{targetId}:
// a second attempt — duplicate tap, retried request, concurrent submit — is
// reported as success without mutating the first record.
func (r *Recorder) CompleteTarget(ctx context.Context, userID string, target *model.Target, sample *model.LocationSample, gate geo.GateResult) (*CompleteResult, error) {
	if userID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_USER, "Missing uid", "")
	}
	if target == nil {
		return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", "")
	}
	if sample == nil || math.IsNaN(sample.Lat) || math.IsNaN(sample.Lng) {
		return nil, errordefs.New(errordefs.CQ_MISSING_LOCATION, "Missing location", "")
	}
	if !gate.Admitted {
		return nil, errordefs.New(errordefs.CQ_NOT_IN_RANGE, "Not in range", "")
	}

	completion := model.Completion{
		ID:         model.RecordKey(userID, target.ID),
		UserID:     userID,
		TargetID:   target.ID,
		TargetSlug: target.Slug,
		TargetName: target.Name,

		CompletedAt: r.now(),

		Lat:              sample.Lat,
		Lng:              sample.Lng,
		AccuracyMeters:   sample.AccuracyMeters,
		DistanceMeters:   gate.DistanceMeters,
		CheckpointID:     gate.Checkpoint.ID,
		CheckpointLat:    gate.Checkpoint.Lat,
		CheckpointLng:    gate.Checkpoint.Lng,
		CheckpointRadius: gate.Checkpoint.RadiusMeters,

		ShareBonus:     false,
		ShareConfirmed: false,
	}

	created, err := r.store.CreateCompletion(ctx, completion)
	if err != nil {
		slog.Error("completion write failed", "user", userID, "target", target.ID, "error", err)
		return nil, errordefs.New(errordefs.CQ_INTERNAL, "Couldn't save your check-in. Try again.", "")
	}

	if !created {
		existing, err := r.store.GetCompletion(ctx, completion.ID)
		if err != nil {
			slog.Error("completion read-back failed", "user", userID, "target", target.ID, "error", err)
			return nil, errordefs.New(errordefs.CQ_INTERNAL, "Couldn't load your check-in. Try again.", "")
		}
		return &CompleteResult{Completion: *existing, AlreadyCompleted: true}, nil
	}

	return &CompleteResult{Completion: completion}, nil
}

// ConfirmShareBonus sets the one-time share bonus on an existing completion.
// The flag is monotonic false->true, so repeat calls are no-ops from the
// caller's perspective.
func (r *Recorder) ConfirmShareBonus(ctx context.Context, userID, targetID, platform string) (*model.Completion, error) {
	if userID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_USER, "Missing uid", "")
	}
	if targetID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", "")
	}

	key := model.RecordKey(userID, targetID)
	if err := r.store.ConfirmShareBonus(ctx, key, platform, r.now()); err != nil {
		if err == storage.ErrNotFound {
			return nil, errordefs.New(errordefs.CQ_NOT_FOUND, "Complete this one before sharing", "")
		}
		slog.Error("share bonus write failed", "user", userID, "target", targetID, "error", err)
		return nil, errordefs.New(errordefs.CQ_INTERNAL, "Couldn't record your share. Try again.", "")
	}

	completion, err := r.store.GetCompletion(ctx, key)
	if err != nil {
		slog.Error("share bonus read-back failed", "user", userID, "target", targetID, "error", err)
		return nil, errordefs.New(errordefs.CQ_INTERNAL, "Couldn't record your share. Try again.", "")
	}
	return completion, nil
}
