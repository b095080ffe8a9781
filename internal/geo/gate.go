// internal/geo/gate.go
package geo

import (
	"github.com/conequest/conequest-go/internal/model"
)

// DefaultMaxAccuracyMeters is the largest horizontal accuracy reading the
// gate accepts unless overridden.
const DefaultMaxAccuracyMeters = 50.0

// GateResult is the structured admission decision exposed to the completion
// recorder and to UI diagnostics.
type GateResult struct {
	Admitted       bool             `json:"admitted"`
	DistanceMeters float64          `json:"distanceMeters"`
	AccuracyMeters *float64         `json:"accuracyMeters,omitempty"`
	Checkpoint     model.Checkpoint `json:"checkpoint"`
}

// Evaluate combines the nearest-checkpoint distance, the checkpoint radius,
// and the sample's horizontal accuracy into an admission decision.
// Admitted iff distance <= radius AND (accuracy is nil OR accuracy <= max).
// A nil accuracy never blocks admission: not all platforms report accuracy,
// and a completion must not fail purely on missing metadata. Pure function,
// no side effects; maxAccuracy <= 0 selects DefaultMaxAccuracyMeters.
func Evaluate(target model.Target, sample model.LocationSample, maxAccuracy float64) GateResult {
	if maxAccuracy <= 0 {
		maxAccuracy = DefaultMaxAccuracyMeters
	}

	nearest := ResolveNearest(target, sample.Lat, sample.Lng)

	accuracyOK := sample.AccuracyMeters == nil || *sample.AccuracyMeters <= maxAccuracy
	admitted := nearest.DistanceMeters <= nearest.Checkpoint.RadiusMeters && accuracyOK

	return GateResult{
		Admitted:       admitted,
		DistanceMeters: nearest.DistanceMeters,
		AccuracyMeters: sample.AccuracyMeters,
		Checkpoint:     nearest.Checkpoint,
	}
}
