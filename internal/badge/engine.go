// internal/badge/engine.go
package badge

import (
	"fmt"

	"github.com/conequest/conequest-go/internal/model"
)

// RecentLimit caps the recently-unlocked list.
const RecentLimit = 3

// Input is the state a badge evaluation runs over. Targets is the active
// catalog; CompletedIDs and SharedIDs are the user's record keyed by target
// id. Unknown ids (targets no longer in the catalog) are skipped.
type Input struct {
	Targets      []model.Target
	CompletedIDs map[string]bool
	SharedIDs    map[string]bool
}

// Progress describes one badge for display. Label and DistanceToEarn are nil
// once the badge is earned, and nil for goals with an empty scope.
type Progress struct {
	Badge          Definition `json:"badge"`
	Earned         bool       `json:"earned"`
	Label          *string    `json:"label,omitempty"`
	DistanceToEarn *int       `json:"distanceToEarn,omitempty"`
}

// Evaluation is the result of one pass over the catalog.
type Evaluation struct {
	Badges           []Progress   `json:"badges"`
	EarnedCount      int          `json:"earnedCount"`
	NextUp           *Progress    `json:"nextUp,omitempty"`
	RecentlyUnlocked []Definition `json:"recentlyUnlocked,omitempty"`
}

// Evaluate runs the full catalog against in. Pure: no clock, no store.
func Evaluate(in Input) Evaluation {
	completedCount := 0
	sharedCount := 0
	known := make(map[string]model.Target, len(in.Targets))
	for _, t := range in.Targets {
		known[t.ID] = t
	}
	for id := range in.CompletedIDs {
		if in.CompletedIDs[id] && known[id].ID != "" {
			completedCount++
		}
	}
	for id := range in.SharedIDs {
		if in.SharedIDs[id] && known[id].ID != "" {
			sharedCount++
		}
	}

	ev := Evaluation{Badges: make([]Progress, 0, len(Catalog()))}
	for _, def := range Catalog() {
		p, ok := evaluateOne(def, in, completedCount, sharedCount)
		if !ok {
			continue
		}
		ev.Badges = append(ev.Badges, p)
		if p.Earned {
			ev.EarnedCount++
			if len(ev.RecentlyUnlocked) < RecentLimit {
				ev.RecentlyUnlocked = append(ev.RecentlyUnlocked, def)
			}
			continue
		}
		if p.DistanceToEarn == nil {
			continue
		}
		if ev.NextUp == nil || *p.DistanceToEarn < *ev.NextUp.DistanceToEarn {
			next := p
			ev.NextUp = &next
		}
	}
	return ev
}

func evaluateOne(def Definition, in Input, completedCount, sharedCount int) (Progress, bool) {
	switch def.Kind {
	case KindCount:
		return thresholdProgress(def, completedCount, def.Threshold), true
	case KindShareCount:
		return thresholdProgress(def, sharedCount, def.Threshold), true
	case KindAllTargets:
		return scopeProgress(def, in, func(model.Target) bool { return true }), true
	case KindAllCategory:
		return scopeProgress(def, in, func(t model.Target) bool { return t.Category == def.Category }), true
	case KindAllRegion:
		return scopeProgress(def, in, func(t model.Target) bool { return t.Region == def.Region }), true
	default:
		return Progress{}, false
	}
}

// thresholdProgress covers the count families: done out of N, earned at N.
func thresholdProgress(def Definition, done, threshold int) Progress {
	p := Progress{Badge: def}
	if threshold <= 0 || done >= threshold {
		p.Earned = threshold > 0
		return p
	}
	left := threshold - done
	label := fmt.Sprintf("%d / %d (need %d more)", done, threshold, left)
	p.Label = &label
	p.DistanceToEarn = &left
	return p
}

// scopeProgress covers the complete-all families. An empty scope never earns:
// the badge stays locked with no label and no distance.
func scopeProgress(def Definition, in Input, match func(model.Target) bool) Progress {
	p := Progress{Badge: def}
	total, done := 0, 0
	for _, t := range in.Targets {
		if !match(t) {
			continue
		}
		total++
		if in.CompletedIDs[t.ID] {
			done++
		}
	}
	if total == 0 {
		return p
	}
	if done == total {
		p.Earned = true
		return p
	}
	left := total - done
	label := fmt.Sprintf("%d / %d", done, total)
	p.Label = &label
	p.DistanceToEarn = &left
	return p
}
