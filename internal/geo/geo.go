// internal/geo/geo.go
// Package geo implements the geodesic distance primitive, the checkpoint
// resolver, and the admission gate that together decide whether a device
// position qualifies as present at a target.
package geo

import (
	"fmt"
	"math"

	"github.com/conequest/conequest-go/internal/model"
)

const earthRadiusMeters = 6371000.0

// Distance computes the great-circle distance in meters between two
// coordinates given in degrees, using the haversine formula. It is symmetric
// and zero for identical points; callers must guard against NaN inputs.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// NearestCheckpoint is the result of resolving a device position against a
// target's effective checkpoint list.
type NearestCheckpoint struct {
	Checkpoint     model.Checkpoint
	DistanceMeters float64
}

// EffectiveCheckpoints builds the checkpoint list used for admission. A
// non-empty Checkpoints list strictly overrides the target's primary point;
// otherwise a single synthetic "fallback" checkpoint carries the target's own
// point and radius. Missing checkpoint ids and labels are synthesized from
// list position so they stay stable for persisted completion records.
func EffectiveCheckpoints(target model.Target) []model.Checkpoint {
	if len(target.Checkpoints) == 0 {
		return []model.Checkpoint{{
			ID:           "fallback",
			Label:        "Main point",
			Lat:          target.Lat,
			Lng:          target.Lng,
			RadiusMeters: target.RadiusMeters,
		}}
	}

	cps := make([]model.Checkpoint, len(target.Checkpoints))
	for i, cp := range target.Checkpoints {
		if cp.ID == "" {
			cp.ID = fmt.Sprintf("cp_%d", i)
		}
		if cp.Label == "" {
			cp.Label = fmt.Sprintf("Checkpoint %d", i+1)
		}
		cps[i] = cp
	}
	return cps
}

// ResolveNearest returns the minimum-distance effective checkpoint for the
// given device coordinate. Exact distance ties go to the first checkpoint in
// list order. The fallback guarantees at least one candidate, so the result
// is never empty.
func ResolveNearest(target model.Target, lat, lng float64) NearestCheckpoint {
	cps := EffectiveCheckpoints(target)

	best := NearestCheckpoint{
		Checkpoint:     cps[0],
		DistanceMeters: Distance(lat, lng, cps[0].Lat, cps[0].Lng),
	}
	for _, cp := range cps[1:] {
		d := Distance(lat, lng, cp.Lat, cp.Lng)
		if d < best.DistanceMeters {
			best = NearestCheckpoint{Checkpoint: cp, DistanceMeters: d}
		}
	}
	return best
}
