// Package storage provides unit tests for the in-memory store backend.
package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/conequest/conequest-go/internal/model"
)

func memTarget() model.Target {
	return model.Target{
		ID:           "rangitoto",
		Name:         "Rangitoto",
		Slug:         "rangitoto",
		Lat:          -36.7870,
		Lng:          174.8600,
		RadiusMeters: 80,
		Active:       true,
		Category:     model.CategoryCone,
		Region:       model.RegionHarbour,
	}
}

// TestCreateCompletionConcurrent simulates duplicate concurrent submits:
// exactly one of N racing creates wins and one record exists afterwards.
func TestCreateCompletionConcurrent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	completion := model.Completion{
		ID:          model.RecordKey("u1", "rangitoto"),
		UserID:      "u1",
		TargetID:    "rangitoto",
		CompletedAt: time.Now().UTC(),
	}

	const attempts = 16
	var wg sync.WaitGroup
	created := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CreateCompletion(ctx, completion)
			if err != nil {
				t.Errorf("CreateCompletion failed: %v", err)
				return
			}
			created <- ok
		}()
	}
	wg.Wait()
	close(created)

	wins := 0
	for ok := range created {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("created = %d times, want exactly 1", wins)
	}

	completions, err := store.ListCompletionsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCompletionsByUser failed: %v", err)
	}
	if len(completions) != 1 {
		t.Errorf("stored completions = %d, want 1", len(completions))
	}
}

// TestListActiveTargets verifies inactive targets are filtered and the order
// is stable by name.
func TestListActiveTargets(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	a := memTarget()
	b := memTarget()
	b.ID, b.Name = "browns", "Browns Island"
	c := memTarget()
	c.ID, c.Name, c.Active = "closed", "Closed Cone", false

	for _, target := range []model.Target{a, b, c} {
		if err := store.UpsertTarget(ctx, target); err != nil {
			t.Fatalf("UpsertTarget failed: %v", err)
		}
	}

	targets, err := store.ListActiveTargets(ctx)
	if err != nil {
		t.Fatalf("ListActiveTargets failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("active targets = %d, want 2", len(targets))
	}
	if targets[0].Name != "Browns Island" || targets[1].Name != "Rangitoto" {
		t.Errorf("targets not name-ordered: %q, %q", targets[0].Name, targets[1].Name)
	}
}

// TestUpsertTargetPreservesAggregate verifies a catalog reload does not
// clobber the rating aggregate.
func TestUpsertTargetPreservesAggregate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	target := memTarget()
	if err := store.UpsertTarget(ctx, target); err != nil {
		t.Fatalf("UpsertTarget failed: %v", err)
	}

	review := model.Review{
		ID:       model.RecordKey("u1", target.ID),
		UserID:   "u1",
		TargetID: target.ID,
		Rating:   4,
	}
	if _, err := store.SaveReviewWithAggregate(ctx, review); err != nil {
		t.Fatalf("SaveReviewWithAggregate failed: %v", err)
	}

	// Reload the same target from the catalog with a changed description.
	target.Description = "updated"
	if err := store.UpsertTarget(ctx, target); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	got, err := store.GetTarget(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetTarget failed: %v", err)
	}
	if got.RatingCount != 1 || got.AvgRating != 4.0 {
		t.Errorf("aggregate after reload = (%d, %v), want (1, 4.0)", got.RatingCount, got.AvgRating)
	}
	if got.Description != "updated" {
		t.Errorf("description not updated on reload")
	}
}

// TestDeleteUserData verifies the erasure hook removes the user's records and
// folds their ratings back out of target aggregates.
func TestDeleteUserData(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	target := memTarget()
	if err := store.UpsertTarget(ctx, target); err != nil {
		t.Fatalf("UpsertTarget failed: %v", err)
	}

	for _, u := range []struct {
		id     string
		rating int
	}{{"u1", 5}, {"u2", 3}} {
		review := model.Review{
			ID:       model.RecordKey(u.id, target.ID),
			UserID:   u.id,
			TargetID: target.ID,
			Rating:   u.rating,
		}
		if _, err := store.SaveReviewWithAggregate(ctx, review); err != nil {
			t.Fatalf("SaveReviewWithAggregate failed: %v", err)
		}
		completion := model.Completion{
			ID:       model.RecordKey(u.id, target.ID),
			UserID:   u.id,
			TargetID: target.ID,
		}
		if _, err := store.CreateCompletion(ctx, completion); err != nil {
			t.Fatalf("CreateCompletion failed: %v", err)
		}
	}

	if err := store.DeleteUserData(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUserData failed: %v", err)
	}

	if completions, _ := store.ListCompletionsByUser(ctx, "u1"); len(completions) != 0 {
		t.Errorf("u1 completions remain after erasure")
	}
	if _, err := store.GetReview(ctx, model.RecordKey("u1", target.ID)); err != ErrNotFound {
		t.Errorf("u1 review remains after erasure: err = %v", err)
	}

	got, err := store.GetTarget(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetTarget failed: %v", err)
	}
	if got.RatingCount != 1 || got.AvgRating != 3.0 {
		t.Errorf("aggregate after erasure = (%d, %v), want (1, 3.0)", got.RatingCount, got.AvgRating)
	}

	// Other users untouched.
	if completions, _ := store.ListCompletionsByUser(ctx, "u2"); len(completions) != 1 {
		t.Errorf("u2 completions affected by u1 erasure")
	}
}
