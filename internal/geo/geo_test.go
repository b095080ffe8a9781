// Package geo provides unit tests for the distance primitive, checkpoint
// resolver, and admission gate.
package geo

import (
	"math"
	"testing"

	"github.com/conequest/conequest-go/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

// TestDistanceSymmetryAndZero verifies distance(A,B) == distance(B,A) and
// distance(A,A) == 0 within floating epsilon.
func TestDistanceSymmetryAndZero(t *testing.T) {
	latA, lngA := -36.9003, 174.7005
	latB, lngB := -36.8940, 174.7120

	ab := Distance(latA, lngA, latB, lngB)
	ba := Distance(latB, lngB, latA, lngA)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Distance not symmetric: AB = %v, BA = %v", ab, ba)
	}

	if d := Distance(latA, lngA, latA, lngA); math.Abs(d) > 1e-9 {
		t.Errorf("Distance(A,A) = %v, want 0", d)
	}
}

// TestDistanceKnownSeparation checks the haversine result against a known
// separation: one degree of latitude is roughly 111.2 km.
func TestDistanceKnownSeparation(t *testing.T) {
	d := Distance(-36.0, 174.0, -37.0, 174.0)
	if d < 110000 || d > 112500 {
		t.Errorf("one degree of latitude = %v m, want ~111200 m", d)
	}
}

// TestDistanceMonotonic verifies distance grows with angular separation.
func TestDistanceMonotonic(t *testing.T) {
	near := Distance(-36.9, 174.7, -36.901, 174.7)
	far := Distance(-36.9, 174.7, -36.910, 174.7)
	if near >= far {
		t.Errorf("distance not monotonic: near = %v, far = %v", near, far)
	}
}

// TestFallbackCheckpoint verifies that a target with no checkpoints always
// resolves to the synthetic "fallback" checkpoint equal to the target's own
// point and radius, for any device position.
func TestFallbackCheckpoint(t *testing.T) {
	target := model.Target{
		ID:           "t1",
		Lat:          -36.9003,
		Lng:          174.7005,
		RadiusMeters: 50,
	}

	positions := [][2]float64{
		{-36.9003, 174.7005},
		{-36.0, 174.0},
		{40.0, -74.0},
	}
	for _, p := range positions {
		got := ResolveNearest(target, p[0], p[1])
		if got.Checkpoint.ID != "fallback" {
			t.Errorf("ResolveNearest checkpoint id = %q, want %q", got.Checkpoint.ID, "fallback")
		}
		if got.Checkpoint.Lat != target.Lat || got.Checkpoint.Lng != target.Lng {
			t.Errorf("fallback checkpoint point = (%v,%v), want target point (%v,%v)",
				got.Checkpoint.Lat, got.Checkpoint.Lng, target.Lat, target.Lng)
		}
		if got.Checkpoint.RadiusMeters != target.RadiusMeters {
			t.Errorf("fallback radius = %v, want %v", got.Checkpoint.RadiusMeters, target.RadiusMeters)
		}
	}
}

// TestResolveNearestPicksMinimum verifies the resolver returns the closest
// checkpoint and synthesizes ids and labels for checkpoints missing them.
func TestResolveNearestPicksMinimum(t *testing.T) {
	target := model.Target{
		ID:           "t1",
		Lat:          -36.9,
		Lng:          174.7,
		RadiusMeters: 40,
		Checkpoints: []model.Checkpoint{
			{Lat: -36.95, Lng: 174.75, RadiusMeters: 30},
			{Lat: -36.9001, Lng: 174.7001, RadiusMeters: 25},
		},
	}

	got := ResolveNearest(target, -36.9, 174.7)
	if got.Checkpoint.ID != "cp_1" {
		t.Errorf("nearest checkpoint id = %q, want %q", got.Checkpoint.ID, "cp_1")
	}
	if got.Checkpoint.Label != "Checkpoint 2" {
		t.Errorf("nearest checkpoint label = %q, want %q", got.Checkpoint.Label, "Checkpoint 2")
	}
	if got.Checkpoint.RadiusMeters != 25 {
		t.Errorf("nearest checkpoint radius = %v, want 25", got.Checkpoint.RadiusMeters)
	}
}

// TestResolveNearestTieBreak verifies that on an exact distance tie the first
// checkpoint in list order wins.
func TestResolveNearestTieBreak(t *testing.T) {
	target := model.Target{
		ID: "t1",
		Checkpoints: []model.Checkpoint{
			{ID: "a", Lat: -36.9, Lng: 174.7, RadiusMeters: 10},
			{ID: "b", Lat: -36.9, Lng: 174.7, RadiusMeters: 10},
		},
	}

	got := ResolveNearest(target, -36.89, 174.71)
	if got.Checkpoint.ID != "a" {
		t.Errorf("tie broke to %q, want first-listed %q", got.Checkpoint.ID, "a")
	}
}

// TestGateAdmission walks the admission truth table: in range with good
// accuracy admits, out of range rejects, and a nil accuracy never blocks.
func TestGateAdmission(t *testing.T) {
	// Target with radius 50m, no checkpoints. Offsets below are chosen so the
	// device sits ~40m, ~60m, and ~20m from the target point.
	target := model.Target{
		ID:           "t1",
		Lat:          -36.900,
		Lng:          174.700,
		RadiusMeters: 50,
	}
	// 1 degree latitude ~ 111.2km, so 0.00036 deg ~ 40m.
	cases := []struct {
		name     string
		latOff   float64
		accuracy *float64
		want     bool
	}{
		{"in range, accurate", 0.00036, floatPtr(30), true},
		{"out of range, accurate", 0.00054, floatPtr(10), false},
		{"in range, no accuracy", 0.00018, nil, true},
		{"in range, accuracy too coarse", 0.00036, floatPtr(80), false},
	}

	for _, tc := range cases {
		sample := model.LocationSample{
			Lat:            target.Lat + tc.latOff,
			Lng:            target.Lng,
			AccuracyMeters: tc.accuracy,
		}
		got := Evaluate(target, sample, 0)
		if got.Admitted != tc.want {
			t.Errorf("%s: admitted = %v (distance %.1fm), want %v",
				tc.name, got.Admitted, got.DistanceMeters, tc.want)
		}
	}
}

// TestGateAccuracyFlip verifies admission monotonicity with respect to
// accuracy: with distance fixed inside the radius, flipping accuracy from
// under to over the threshold flips admission.
func TestGateAccuracyFlip(t *testing.T) {
	target := model.Target{ID: "t1", Lat: -36.9, Lng: 174.7, RadiusMeters: 50}
	sample := model.LocationSample{Lat: -36.9001, Lng: 174.7}

	sample.AccuracyMeters = floatPtr(50)
	if got := Evaluate(target, sample, 50); !got.Admitted {
		t.Errorf("accuracy at threshold: admitted = false, want true")
	}

	sample.AccuracyMeters = floatPtr(50.1)
	if got := Evaluate(target, sample, 50); got.Admitted {
		t.Errorf("accuracy over threshold: admitted = true, want false")
	}
}

// TestGateOverride verifies the max-accuracy threshold is overridable.
func TestGateOverride(t *testing.T) {
	target := model.Target{ID: "t1", Lat: -36.9, Lng: 174.7, RadiusMeters: 50}
	sample := model.LocationSample{Lat: -36.9001, Lng: 174.7, AccuracyMeters: floatPtr(75)}

	if got := Evaluate(target, sample, 0); got.Admitted {
		t.Errorf("default threshold: admitted = true, want false at 75m accuracy")
	}
	if got := Evaluate(target, sample, 100); !got.Admitted {
		t.Errorf("raised threshold: admitted = false, want true at 75m accuracy")
	}
}
