// internal/progress/progress.go
// Package progress derives a user's aggregate progress view from an immutable
// snapshot of targets, completions, and reviews. Derive is a pure function:
// it is recomputed from current inputs on every evaluation rather than
// incrementally maintained, so there is no staleness protocol.
package progress

import (
	"sort"

	"github.com/conequest/conequest-go/internal/geo"
	"github.com/conequest/conequest-go/internal/model"
)

// Snapshot is the immutable input to a progress derivation. Location is nil
// when no sample is available; the derivation falls back to deterministic
// name ordering in that case.
type Snapshot struct {
	Targets      []model.Target
	CompletedIDs map[string]bool
	ReviewedIDs  map[string]bool
	Location     *model.LocationSample
}

// NearestUnclimbed identifies the single nearest not-yet-completed target.
// DistanceMeters is nil when the selection fell back to name ordering.
type NearestUnclimbed struct {
	Target         model.Target `json:"target"`
	DistanceMeters *float64     `json:"distanceMeters,omitempty"`
}

// View is the derived progress state consumed by UI clients.
type View struct {
	CompletedCount   int               `json:"completedCount"`
	TotalCount       int               `json:"totalCount"`
	Percent          float64           `json:"percent"`
	NearestUnclimbed *NearestUnclimbed `json:"nearestUnclimbed,omitempty"`
	PendingReview    []model.Target    `json:"pendingReview"`
}

// Derive computes the full progress view for one user.
func Derive(snap Snapshot) View {
	view := View{
		TotalCount:    len(snap.Targets),
		PendingReview: []model.Target{},
	}

	var unclimbed []model.Target
	for _, target := range snap.Targets {
		if snap.CompletedIDs[target.ID] {
			view.CompletedCount++
			if !snap.ReviewedIDs[target.ID] {
				view.PendingReview = append(view.PendingReview, target)
			}
		} else {
			unclimbed = append(unclimbed, target)
		}
	}

	if view.TotalCount > 0 {
		view.Percent = float64(view.CompletedCount) / float64(view.TotalCount)
	}

	sort.Slice(view.PendingReview, func(i, j int) bool {
		return view.PendingReview[i].Name < view.PendingReview[j].Name
	})

	view.NearestUnclimbed = nearestUnclimbed(unclimbed, snap.Location)
	return view
}

// nearestUnclimbed selects the nearest candidate by resolved checkpoint
// distance, tie-broken by name. Without a location it selects the
// alphabetically first candidate, which is stable across re-derivations with
// the same input set.
func nearestUnclimbed(candidates []model.Target, location *model.LocationSample) *NearestUnclimbed {
	if len(candidates) == 0 {
		return nil
	}

	if location == nil {
		best := candidates[0]
		for _, target := range candidates[1:] {
			if target.Name < best.Name {
				best = target
			}
		}
		return &NearestUnclimbed{Target: best}
	}

	best := candidates[0]
	bestDist := geo.ResolveNearest(best, location.Lat, location.Lng).DistanceMeters
	for _, target := range candidates[1:] {
		d := geo.ResolveNearest(target, location.Lat, location.Lng).DistanceMeters
		if d < bestDist || (d == bestDist && target.Name < best.Name) {
			best = target
			bestDist = d
		}
	}
	return &NearestUnclimbed{Target: best, DistanceMeters: &bestDist}
}
