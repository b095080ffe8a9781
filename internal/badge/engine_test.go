package badge

import (
	"fmt"
	"testing"

	"github.com/conequest/conequest-go/internal/model"
)

func fieldOf(n int) []model.Target {
	targets := make([]model.Target, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, model.Target{
			ID:       fmt.Sprintf("t%d", i),
			Name:     fmt.Sprintf("Target %d", i),
			Category: model.CategoryCone,
			Region:   model.RegionCentral,
			Active:   true,
		})
	}
	return targets
}

func completed(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func progressFor(t *testing.T, ev Evaluation, badgeID string) Progress {
	t.Helper()
	for _, p := range ev.Badges {
		if p.Badge.ID == badgeID {
			return p
		}
	}
	t.Fatalf("badge %q not in evaluation", badgeID)
	return Progress{}
}

func TestCountBadgeProgressLabel(t *testing.T) {
	ev := Evaluate(Input{
		Targets:      fieldOf(10),
		CompletedIDs: completed("t0", "t1", "t2"),
	})

	p := progressFor(t, ev, "warming_up")
	if p.Earned {
		t.Fatal("3 of 5 should not be earned")
	}
	if p.Label == nil || *p.Label != "3 / 5 (need 2 more)" {
		t.Fatalf("label = %v", p.Label)
	}
	if p.DistanceToEarn == nil || *p.DistanceToEarn != 2 {
		t.Fatalf("distanceToEarn = %v", p.DistanceToEarn)
	}

	first := progressFor(t, ev, "first_steps")
	if !first.Earned || first.Label != nil || first.DistanceToEarn != nil {
		t.Fatalf("earned badge should carry no label or distance: %+v", first)
	}
}

func TestCompleteAllVacuouslyFalse(t *testing.T) {
	// No craters exist, so Crater Hunter can never be earned, and it should
	// not surface a 0 / 0 label either.
	ev := Evaluate(Input{
		Targets:      fieldOf(3),
		CompletedIDs: completed("t0", "t1", "t2"),
	})

	p := progressFor(t, ev, "crater_hunter")
	if p.Earned {
		t.Fatal("empty scope must not earn")
	}
	if p.Label != nil || p.DistanceToEarn != nil {
		t.Fatalf("empty scope should have nil label and distance: %+v", p)
	}
}

func TestCompleteAllScoped(t *testing.T) {
	targets := fieldOf(4)
	targets[3].Category = model.CategoryLake

	ev := Evaluate(Input{
		Targets:      targets,
		CompletedIDs: completed("t0", "t1", "t2"),
	})

	if p := progressFor(t, ev, "cone_collector"); !p.Earned {
		t.Fatal("all three cones done, cone_collector should be earned")
	}
	p := progressFor(t, ev, "central_explorer")
	if p.Earned {
		t.Fatal("central region has an unclimbed member")
	}
	if p.Label == nil || *p.Label != "3 / 4" {
		t.Fatalf("label = %v", p.Label)
	}

	ev = Evaluate(Input{Targets: targets, CompletedIDs: completed("t0", "t1", "t2", "t3")})
	if p := progressFor(t, ev, "lake_walker"); !p.Earned {
		t.Fatal("lone lake done, lake_walker should be earned")
	}
	if p := progressFor(t, ev, "field_complete"); !p.Earned {
		t.Fatal("everything done, field_complete should be earned")
	}
}

func TestShareBadges(t *testing.T) {
	ev := Evaluate(Input{
		Targets:      fieldOf(6),
		CompletedIDs: completed("t0", "t1", "t2"),
		SharedIDs:    completed("t0"),
	})

	if p := progressFor(t, ev, "first_share"); !p.Earned {
		t.Fatal("one share earns first_share")
	}
	p := progressFor(t, ev, "influencer")
	if p.Earned {
		t.Fatal("one share does not earn influencer")
	}
	if p.Label == nil || *p.Label != "1 / 5 (need 4 more)" {
		t.Fatalf("label = %v", p.Label)
	}
}

func TestNextUpPicksSmallestDistance(t *testing.T) {
	// 4 of 10 done: warming_up needs 1 more and should beat seasoned (6) and
	// the scoped badges (6).
	ev := Evaluate(Input{
		Targets:      fieldOf(10),
		CompletedIDs: completed("t0", "t1", "t2", "t3"),
	})

	if ev.NextUp == nil {
		t.Fatal("expected a next-up badge")
	}
	if ev.NextUp.Badge.ID != "warming_up" {
		t.Fatalf("nextUp = %s", ev.NextUp.Badge.ID)
	}
	if *ev.NextUp.DistanceToEarn != 1 {
		t.Fatalf("distance = %d", *ev.NextUp.DistanceToEarn)
	}
}

func TestNextUpTieBreaksOnCatalogOrder(t *testing.T) {
	// 3 of 5 done and one share: warming_up needs 2 more, central_explorer
	// needs 2 more. warming_up comes first in the catalog and wins.
	ev := Evaluate(Input{
		Targets:      fieldOf(5),
		CompletedIDs: completed("t0", "t1", "t2"),
		SharedIDs:    completed("t0", "t1", "t2"),
	})

	if ev.NextUp == nil || ev.NextUp.Badge.ID != "warming_up" {
		t.Fatalf("nextUp = %+v", ev.NextUp)
	}
}

func TestRecentlyUnlockedIsCatalogOrderPrefix(t *testing.T) {
	ev := Evaluate(Input{
		Targets:      fieldOf(12),
		CompletedIDs: completed("t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10"),
		SharedIDs:    completed("t0"),
	})

	if len(ev.RecentlyUnlocked) != RecentLimit {
		t.Fatalf("recently unlocked = %d entries", len(ev.RecentlyUnlocked))
	}
	want := []string{"first_steps", "warming_up", "seasoned"}
	for i, def := range ev.RecentlyUnlocked {
		if def.ID != want[i] {
			t.Fatalf("recentlyUnlocked[%d] = %s, want %s", i, def.ID, want[i])
		}
	}
}

func TestUnknownCompletionIDsSkipped(t *testing.T) {
	ev := Evaluate(Input{
		Targets:      fieldOf(5),
		CompletedIDs: completed("t0", "retired-target", "another-ghost"),
	})

	p := progressFor(t, ev, "warming_up")
	if p.Label == nil || *p.Label != "1 / 5 (need 4 more)" {
		t.Fatalf("stale ids must not count: label = %v", p.Label)
	}
}

func TestEmptyStateEarnsNothing(t *testing.T) {
	ev := Evaluate(Input{Targets: fieldOf(5)})
	if ev.EarnedCount != 0 {
		t.Fatalf("earnedCount = %d", ev.EarnedCount)
	}
	if ev.NextUp == nil || ev.NextUp.Badge.ID != "first_steps" {
		t.Fatalf("nextUp = %+v", ev.NextUp)
	}
	if len(ev.RecentlyUnlocked) != 0 {
		t.Fatal("nothing unlocked yet")
	}
}
