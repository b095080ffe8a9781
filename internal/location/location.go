// internal/location/location.go
// Package location tracks the most recent device position reported for a
// user and deduplicates concurrent high-accuracy refreshes against an
// external source.
package location

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conequest/conequest-go/internal/model"
)

// DefaultMinRefreshInterval throttles source lookups per user. Positions
// newer than this are served from the cache.
const DefaultMinRefreshInterval = 15 * time.Second

// ErrNoStream is returned by Follow when the configured Source does not
// support streaming updates.
var ErrNoStream = errors.New("location: source does not stream")

// Source produces a fresh high-accuracy position for a user. Implementations
// are expected to be slow (device round-trip or provider API).
type Source interface {
	Current(ctx context.Context, userID string) (model.LocationSample, error)
}

// Watcher is an optional Source extension for providers that can stream
// position updates. The channel closes when the stream ends.
type Watcher interface {
	Watch(ctx context.Context, userID string) (<-chan model.LocationSample, error)
}

type cached struct {
	sample    model.LocationSample
	refreshed time.Time
}

// Tracker holds last-known samples per user. Samples arrive two ways: pushed
// by request handlers via Record, or pulled from the Source via Refresh.
type Tracker struct {
	src         Source
	minInterval time.Duration
	now         func() time.Time

	group singleflight.Group

	mu   sync.RWMutex
	last map[string]cached
}

func NewTracker(src Source, minInterval time.Duration) *Tracker {
	if minInterval <= 0 {
		minInterval = DefaultMinRefreshInterval
	}
	return &Tracker{
		src:         src,
		minInterval: minInterval,
		now:         time.Now,
		last:        make(map[string]cached),
	}
}

// Valid reports whether a sample carries usable coordinates.
func Valid(s *model.LocationSample) bool {
	if s == nil {
		return false
	}
	if math.IsNaN(s.Lat) || math.IsNaN(s.Lng) {
		return false
	}
	return s.Lat >= -90 && s.Lat <= 90 && s.Lng >= -180 && s.Lng <= 180
}

// Record stores a pushed sample as the user's last-known position. Invalid
// samples are dropped.
func (t *Tracker) Record(userID string, s model.LocationSample) {
	if userID == "" || !Valid(&s) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[userID] = cached{sample: s, refreshed: t.now()}
}

// Last returns a copy of the user's last-known sample, or nil.
func (t *Tracker) Last(userID string) *model.LocationSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.last[userID]
	if !ok {
		return nil
	}
	s := c.sample
	return &s
}

// Refresh returns the user's position, hitting the Source only when the
// cached sample is older than the refresh interval. Concurrent refreshes for
// the same user collapse into one Source call.
func (t *Tracker) Refresh(ctx context.Context, userID string) (*model.LocationSample, error) {
	t.mu.RLock()
	c, ok := t.last[userID]
	t.mu.RUnlock()
	if ok && t.now().Sub(c.refreshed) < t.minInterval {
		s := c.sample
		return &s, nil
	}
	if t.src == nil {
		if ok {
			s := c.sample
			return &s, nil
		}
		return nil, nil
	}

	v, err, _ := t.group.Do(userID, func() (any, error) {
		s, err := t.src.Current(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !Valid(&s) {
			return nil, nil
		}
		t.mu.Lock()
		t.last[userID] = cached{sample: s, refreshed: t.now()}
		t.mu.Unlock()
		return &s, nil
	})
	if err != nil {
		// Stale beats nothing when the source is down.
		if ok {
			s := c.sample
			return &s, nil
		}
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*model.LocationSample), nil
}

// Follow consumes the Source's position stream for a user, recording each
// sample as it arrives. Blocks until the stream closes or ctx is done.
// Returns ErrNoStream when the Source cannot stream.
func (t *Tracker) Follow(ctx context.Context, userID string) error {
	w, ok := t.src.(Watcher)
	if !ok {
		return ErrNoStream
	}
	ch, err := w.Watch(ctx, userID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, open := <-ch:
			if !open {
				return nil
			}
			t.Record(userID, s)
		}
	}
}

// Forget drops the user's cached position.
func (t *Tracker) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, userID)
}
