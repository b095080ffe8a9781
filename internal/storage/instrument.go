package storage

import (
	"context"
	"errors"
	"time"

	"github.com/conequest/conequest-go/internal/metrics"
	"github.com/conequest/conequest-go/internal/model"
)

// instrumented wraps a Store and records an operation counter and duration
// for every call. ErrNotFound is reported as its own status since lookups of
// absent records are routine, not failures.
type instrumented struct {
	inner Store
	m     *metrics.Metrics
}

// WithMetrics returns a Store that records prometheus metrics around every
// operation of inner.
func WithMetrics(inner Store) Store {
	return &instrumented{inner: inner, m: metrics.NewMetrics()}
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case errors.Is(err, ErrConflict):
		status = "conflict"
	case err != nil:
		status = "error"
	}
	s.m.StorageOperationTotal.WithLabelValues(op, status).Inc()
	s.m.StorageOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (s *instrumented) UpsertTarget(ctx context.Context, target model.Target) (err error) {
	defer func(start time.Time) { s.observe("upsert_target", start, err) }(time.Now())
	err = s.inner.UpsertTarget(ctx, target)
	return err
}

func (s *instrumented) GetTarget(ctx context.Context, id string) (t *model.Target, err error) {
	defer func(start time.Time) { s.observe("get_target", start, err) }(time.Now())
	t, err = s.inner.GetTarget(ctx, id)
	return t, err
}

func (s *instrumented) ListActiveTargets(ctx context.Context) (ts []model.Target, err error) {
	defer func(start time.Time) { s.observe("list_active_targets", start, err) }(time.Now())
	ts, err = s.inner.ListActiveTargets(ctx)
	return ts, err
}

func (s *instrumented) CreateCompletion(ctx context.Context, completion model.Completion) (created bool, err error) {
	defer func(start time.Time) { s.observe("create_completion", start, err) }(time.Now())
	created, err = s.inner.CreateCompletion(ctx, completion)
	return created, err
}

func (s *instrumented) GetCompletion(ctx context.Context, id string) (c *model.Completion, err error) {
	defer func(start time.Time) { s.observe("get_completion", start, err) }(time.Now())
	c, err = s.inner.GetCompletion(ctx, id)
	return c, err
}

func (s *instrumented) ListCompletionsByUser(ctx context.Context, userID string) (cs []model.Completion, err error) {
	defer func(start time.Time) { s.observe("list_completions_by_user", start, err) }(time.Now())
	cs, err = s.inner.ListCompletionsByUser(ctx, userID)
	return cs, err
}

func (s *instrumented) ConfirmShareBonus(ctx context.Context, id, platform string, at time.Time) (err error) {
	defer func(start time.Time) { s.observe("confirm_share_bonus", start, err) }(time.Now())
	err = s.inner.ConfirmShareBonus(ctx, id, platform, at)
	return err
}

func (s *instrumented) GetReview(ctx context.Context, id string) (r *model.Review, err error) {
	defer func(start time.Time) { s.observe("get_review", start, err) }(time.Now())
	r, err = s.inner.GetReview(ctx, id)
	return r, err
}

func (s *instrumented) ListReviewsByUser(ctx context.Context, userID string) (rs []model.Review, err error) {
	defer func(start time.Time) { s.observe("list_reviews_by_user", start, err) }(time.Now())
	rs, err = s.inner.ListReviewsByUser(ctx, userID)
	return rs, err
}

func (s *instrumented) SaveReviewWithAggregate(ctx context.Context, review model.Review) (r *model.Review, err error) {
	defer func(start time.Time) { s.observe("save_review_with_aggregate", start, err) }(time.Now())
	r, err = s.inner.SaveReviewWithAggregate(ctx, review)
	return r, err
}

func (s *instrumented) DeleteUserData(ctx context.Context, userID string) (err error) {
	defer func(start time.Time) { s.observe("delete_user_data", start, err) }(time.Now())
	err = s.inner.DeleteUserData(ctx, userID)
	return err
}
