package conformance

import (
	"net/http"
	"testing"

	"github.com/conequest/conequest-go/internal/model"
)

// TestFullLifecycle walks one user through check-in, replay, review, share,
// progress, and badges end to end.
func TestFullLifecycle(t *testing.T) {
	h := NewHarness(t, DefaultTargets())

	// Complete Mt Eden from ~20m away.
	status, env := h.CheckIn(t, "hiker", "mt-eden", -36.8775+0.00018, 174.7645)
	if status != http.StatusOK {
		t.Fatalf("check-in status = %d (%v)", status, env)
	}
	var result struct {
		Completion       model.Completion `json:"completion"`
		AlreadyCompleted bool             `json:"alreadyCompleted"`
	}
	DecodeData(t, env, &result)
	if result.AlreadyCompleted || result.Completion.ID != "hiker_mt-eden" {
		t.Fatalf("completion = %+v", result)
	}

	// A replay from a slightly different spot succeeds without rewriting.
	status, env = h.CheckIn(t, "hiker", "mt-eden", -36.8775+0.0001, 174.7645)
	if status != http.StatusOK {
		t.Fatalf("replay status = %d", status)
	}
	DecodeData(t, env, &result)
	if !result.AlreadyCompleted {
		t.Fatal("replay not flagged")
	}

	// Too far away is rejected with the gate code.
	status, env = h.CheckIn(t, "hiker", "one-tree-hill", -36.8775, 174.7645)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("out-of-range status = %d", status)
	}
	if code := ErrorCode(t, env); code != "CQ_NOT_IN_RANGE" {
		t.Fatalf("out-of-range code = %s", code)
	}

	// Review the completed target.
	status, env = h.Review(t, "hiker", "mt-eden", 4.6, "windy up top")
	if status != http.StatusOK {
		t.Fatalf("review status = %d (%v)", status, env)
	}
	var review model.Review
	DecodeData(t, env, &review)
	if review.Rating != 5 { // 4.6 rounds to 5
		t.Fatalf("review rating = %d", review.Rating)
	}

	// Share the completion.
	status, env = h.Do(t, "hiker", "POST", "/v1/checkin/share",
		map[string]string{"targetId": "mt-eden", "platform": "instagram"})
	if status != http.StatusOK {
		t.Fatalf("share status = %d (%v)", status, env)
	}

	// Progress reflects one of three done and nothing pending review.
	status, env = h.Do(t, "hiker", "GET", "/v1/progress", nil)
	if status != http.StatusOK {
		t.Fatalf("progress status = %d", status)
	}
	var view struct {
		CompletedCount int            `json:"completedCount"`
		TotalCount     int            `json:"totalCount"`
		PendingReview  []model.Target `json:"pendingReview"`
	}
	DecodeData(t, env, &view)
	if view.CompletedCount != 1 || view.TotalCount != 3 {
		t.Fatalf("progress = %+v", view)
	}
	if len(view.PendingReview) != 0 {
		t.Fatalf("pendingReview = %+v", view.PendingReview)
	}

	// Badges: first completion and first share are earned.
	status, env = h.Do(t, "hiker", "GET", "/v1/badges", nil)
	if status != http.StatusOK {
		t.Fatalf("badges status = %d", status)
	}
	var evaluation struct {
		EarnedCount int `json:"earnedCount"`
		Badges      []struct {
			Badge struct {
				ID string `json:"id"`
			} `json:"badge"`
			Earned bool `json:"earned"`
		} `json:"badges"`
	}
	DecodeData(t, env, &evaluation)
	earned := map[string]bool{}
	for _, b := range evaluation.Badges {
		if b.Earned {
			earned[b.Badge.ID] = true
		}
	}
	if !earned["first_steps"] || !earned["first_share"] {
		t.Fatalf("earned = %v", earned)
	}
}

// TestUsersAreIsolated confirms one user's activity never leaks into
// another's progress.
func TestUsersAreIsolated(t *testing.T) {
	h := NewHarness(t, DefaultTargets())

	if status, _ := h.CheckIn(t, "alice", "mt-eden", -36.8775, 174.7645); status != http.StatusOK {
		t.Fatalf("alice check-in failed: %d", status)
	}

	status, env := h.Do(t, "bob", "GET", "/v1/progress", nil)
	if status != http.StatusOK {
		t.Fatalf("bob progress status = %d", status)
	}
	var view struct {
		CompletedCount int `json:"completedCount"`
	}
	DecodeData(t, env, &view)
	if view.CompletedCount != 0 {
		t.Fatalf("bob sees alice's completions: %+v", view)
	}
}
