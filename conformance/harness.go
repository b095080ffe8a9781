// Package conformance provides a black-box harness exercising the full
// check-in lifecycle over HTTP, the way an API client would.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conequest/conequest-go/internal/event"
	"github.com/conequest/conequest-go/internal/jwks"
	"github.com/conequest/conequest-go/internal/location"
	"github.com/conequest/conequest-go/internal/model"
	"github.com/conequest/conequest-go/internal/server"
	"github.com/conequest/conequest-go/internal/storage"
)

// Harness runs the service behind a real httptest server.
type Harness struct {
	server *httptest.Server
	store  storage.Store
	jwks   *jwks.Client
}

// NewHarness builds a harness on the in-memory store with the given targets
// pre-seeded.
func NewHarness(t *testing.T, targets []model.Target) *Harness {
	t.Helper()

	store := storage.NewMemory()
	for _, target := range targets {
		if err := store.UpsertTarget(context.Background(), target); err != nil {
			t.Fatalf("seed target %s: %v", target.ID, err)
		}
	}

	jwksClient := jwks.NewTestClient("https://id.conformance.test", "conequest")
	tracker := location.NewTracker(nil, time.Minute)
	mux := server.NewMux(store, event.NewNoop(), jwksClient, tracker, server.Options{})

	h := &Harness{
		server: httptest.NewServer(mux),
		store:  store,
		jwks:   jwksClient,
	}
	t.Cleanup(h.server.Close)
	return h
}

// Store exposes the backing store for direct state assertions.
func (h *Harness) Store() storage.Store { return h.store }

// Do sends an authenticated JSON request and decodes the response envelope.
// The returned map holds either the "data" or the "error" member.
func (h *Harness) Do(t *testing.T, userID, method, path string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, h.server.URL+path, &payload)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := h.jwks.MintTestToken(userID, time.Minute)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, envelope
}

// CheckIn submits a completion attempt from the given position.
func (h *Harness) CheckIn(t *testing.T, userID, targetID string, lat, lng float64) (int, map[string]json.RawMessage) {
	t.Helper()
	return h.Do(t, userID, "POST", "/v1/checkin/complete", map[string]interface{}{
		"targetId": targetID,
		"sample": map[string]interface{}{
			"lat":        lat,
			"lng":        lng,
			"capturedAt": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Review submits a rating with an optional note.
func (h *Harness) Review(t *testing.T, userID, targetID string, rating float64, note string) (int, map[string]json.RawMessage) {
	t.Helper()
	return h.Do(t, userID, "POST", "/v1/reviews", map[string]interface{}{
		"targetId": targetID,
		"rating":   rating,
		"note":     note,
	})
}

// DecodeData unmarshals the envelope's data member into out.
func DecodeData(t *testing.T, envelope map[string]json.RawMessage, out interface{}) {
	t.Helper()
	data, ok := envelope["data"]
	if !ok {
		t.Fatalf("no data member in envelope: %v", envelope)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

// ErrorCode extracts the error code from an error envelope.
func ErrorCode(t *testing.T, envelope map[string]json.RawMessage) string {
	t.Helper()
	raw, ok := envelope["error"]
	if !ok {
		t.Fatalf("no error member in envelope: %v", envelope)
	}
	var e struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e.Code
}

// DefaultTargets returns a small field covering multiple categories and
// regions, enough to earn the first badges.
func DefaultTargets() []model.Target {
	mk := func(id, name string, cat model.Category, reg model.Region, lat, lng float64) model.Target {
		return model.Target{
			ID: id, Slug: id, Name: name,
			Lat: lat, Lng: lng, RadiusMeters: 50,
			Active: true, Category: cat, Region: reg,
		}
	}
	return []model.Target{
		mk("mt-eden", "Maungawhau / Mt Eden", model.CategoryCone, model.RegionCentral, -36.8775, 174.7645),
		mk("one-tree-hill", "Maungakiekie / One Tree Hill", model.CategoryCone, model.RegionCentral, -36.9000, 174.7830),
		mk("lake-pupuke", "Pupuke Moana / Lake Pupuke", model.CategoryLake, model.RegionNorth, -36.7805, 174.7665),
	}
}
