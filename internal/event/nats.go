// internal/event/nats.go
// Package event publishes check-in lifecycle events to NATS JetStream.
// Consumers use the stream for real-time feeds and audit trails.
package event

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"

	"github.com/conequest/conequest-go/internal/metrics"
	"github.com/conequest/conequest-go/internal/model"
)

// Publisher defines the event publishing operations of the check-in engine.
type Publisher interface {
	// PublishCompletionRecorded fires when a completion is first recorded.
	// Idempotent replays of an existing completion do not publish.
	PublishCompletionRecorded(ctx context.Context, completion model.Completion) error

	// PublishReviewSaved fires on every review create or update.
	PublishReviewSaved(ctx context.Context, review model.Review) error

	// PublishShareConfirmed fires when a share bonus is confirmed.
	PublishShareConfirmed(ctx context.Context, completion model.Completion) error

	// Close closes the publisher connection.
	Close() error
}

// noop is used when NATS is not configured. The service runs fine without
// event streaming; publishes just vanish.
type noop struct{}

func (n *noop) Close() error { return nil }

func (n *noop) PublishCompletionRecorded(ctx context.Context, completion model.Completion) error {
	return nil
}

func (n *noop) PublishReviewSaved(ctx context.Context, review model.Review) error {
	return nil
}

func (n *noop) PublishShareConfirmed(ctx context.Context, completion model.Completion) error {
	return nil
}

// NewNoop returns the no-op publisher. Exported for tests and for callers
// that disable streaming explicitly.
func NewNoop() Publisher { return &noop{} }

// natsPub is the JetStream-backed Publisher.
type natsPub struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	metrics *metrics.Metrics

	// Dedup suppresses replays of the same record key inside a short window,
	// e.g. a client retrying a confirmed share.
	dedup map[string]time.Time
	mutex sync.RWMutex
}

// NewPublisherFromEnv builds a publisher from CQ_NATS_URL. An unset URL or a
// failed connection degrades to the no-op publisher rather than blocking
// startup.
func NewPublisherFromEnv() Publisher {
	url := os.Getenv("CQ_NATS_URL")
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStream(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{
		nc:      nc,
		js:      js,
		metrics: metrics.NewMetrics(),
		dedup:   make(map[string]time.Time),
	}
}

// initStream creates the CQ_CHECKINS stream carrying every check-in event.
func initStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "CQ_CHECKINS",
		Subjects:  []string{"conequest.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create CQ_CHECKINS stream: %w", err)
	}
	return nil
}

// Envelope wraps every published event.
type Envelope struct {
	ID            string      `json:"id"` // ULID, sortable by publish time
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// shouldDedup reports whether key published inside the 2-minute window.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if lastTime, exists := p.dedup[key]; exists {
		return time.Since(lastTime) < 2*time.Minute
	}
	return false
}

func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().Add(-5 * time.Minute)
	for k, t := range p.dedup {
		if t.Before(cutoff) {
			delete(p.dedup, k)
		}
	}
	p.dedup[key] = time.Now()
}

func (p *natsPub) publish(subject, eventType, dedupKey string, payload interface{}) error {
	if p.shouldDedup(dedupKey) {
		return nil
	}
	start := time.Now()

	envelope := Envelope{
		ID:            ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Type:          eventType,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, b); err != nil {
		p.observe(eventType, start, err)
		return err
	}
	p.observe(eventType, start, nil)

	p.updateDedup(dedupKey)
	return nil
}

func (p *natsPub) observe(eventType string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.EventPublishTotal.WithLabelValues(eventType, status).Inc()
	p.metrics.EventPublishDuration.WithLabelValues(eventType, status).Observe(time.Since(start).Seconds())
}

func (p *natsPub) PublishCompletionRecorded(ctx context.Context, completion model.Completion) error {
	return p.publish("conequest.completions.recorded", "conequest.completions.recorded",
		"completion:"+completion.ID, completion)
}

func (p *natsPub) PublishReviewSaved(ctx context.Context, review model.Review) error {
	// Rating is part of the dedup key so a genuine re-rating publishes while
	// a client retry of the same save does not.
	return p.publish("conequest.reviews.saved", "conequest.reviews.saved",
		fmt.Sprintf("review:%s:%d", review.ID, review.Rating), review)
}

func (p *natsPub) PublishShareConfirmed(ctx context.Context, completion model.Completion) error {
	return p.publish("conequest.shares.confirmed", "conequest.shares.confirmed",
		"share:"+completion.ID, completion)
}
