// internal/checkin/review.go
package checkin

import (
	"context"
	"log/slog"
	"math"
	"strings"

	errordefs "github.com/conequest/conequest-go/internal/errors"
	"github.com/conequest/conequest-go/internal/model"
	"github.com/conequest/conequest-go/internal/storage"
)

// SaveReview records or updates the user's 1-5 rating of a target, keeping
// the target's rating aggregate in step within the same store transaction.
// A nil or out-of-range rating fails validation; note text is trimmed,
// truncated to MaxNoteLength, and stored as absent when empty. An update
// preserves the review's original creation timestamp.
func (r *Recorder) SaveReview(ctx context.Context, userID, targetID, slug, name string, rating *float64, text string) (*model.Review, error) {
	if userID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_USER, "You must be logged in", "")
	}
	if targetID == "" {
		return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", "")
	}

	rounded, ok := normalizeRating(rating)
	if !ok {
		return nil, errordefs.New(errordefs.CQ_INVALID_RATING, "Pick a rating (1–5)", "")
	}

	note := normalizeNote(text)

	now := r.now()
	review := model.Review{
		ID:         model.RecordKey(userID, targetID),
		UserID:     userID,
		TargetID:   targetID,
		TargetSlug: slug,
		TargetName: name,
		Rating:     rounded,
		Note:       note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	saved, err := r.store.SaveReviewWithAggregate(ctx, review)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, errordefs.New(errordefs.CQ_MISSING_TARGET, "Missing target", "")
		}
		slog.Error("review write failed", "user", userID, "target", targetID, "error", err)
		return nil, errordefs.New(errordefs.CQ_INTERNAL, "Couldn't save your review. Try again.", "")
	}
	return saved, nil
}

// normalizeRating rounds the raw rating to the nearest integer and checks it
// lands in [1,5]. A nil or NaN rating never resolves.
func normalizeRating(rating *float64) (int, bool) {
	if rating == nil || math.IsNaN(*rating) {
		return 0, false
	}
	rounded := int(math.Round(*rating))
	if rounded < 1 || rounded > 5 {
		return 0, false
	}
	return rounded, true
}

// normalizeNote trims the note, truncates it to MaxNoteLength, and maps the
// empty string to absent.
func normalizeNote(text string) *string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if runes := []rune(trimmed); len(runes) > MaxNoteLength {
		trimmed = string(runes[:MaxNoteLength])
	}
	return &trimmed
}
