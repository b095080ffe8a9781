// internal/storage/memory.go
// Package storage provides implementations of the Store interface for both
// in-memory and PostgreSQL storage backends. Completion and review writes use
// store-level transactional semantics (atomic read-then-conditional-write) as
// the sole concurrency control; there is no client-side locking above this
// layer.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/conequest/conequest-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a record is not found
	ErrConflict = errors.New("conflict")  // Returned when a record already exists
)

// Store defines the document-store operations required by the check-in
// engine: get-by-key, query-by-filter, and transactional read-then-write.
// Implemented by both the in-memory and PostgreSQL backends.
type Store interface {
	// Target operations. Targets are authored externally; UpsertTarget exists
	// for catalog seeding only.
	UpsertTarget(ctx context.Context, target model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	ListActiveTargets(ctx context.Context) ([]model.Target, error)

	// Completion operations. CreateCompletion is the idempotent transactional
	// create: if a record already exists at the completion's key the call is a
	// no-op returning created=false with the stored record untouched.
	CreateCompletion(ctx context.Context, completion model.Completion) (bool, error)
	GetCompletion(ctx context.Context, id string) (*model.Completion, error)
	ListCompletionsByUser(ctx context.Context, userID string) ([]model.Completion, error)
	ConfirmShareBonus(ctx context.Context, id, platform string, at time.Time) error

	// Review operations. SaveReviewWithAggregate upserts the review and folds
	// the target's rating aggregate in the same transaction.
	GetReview(ctx context.Context, id string) (*model.Review, error)
	ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error)
	SaveReviewWithAggregate(ctx context.Context, review model.Review) (*model.Review, error)

	// DeleteUserData removes every completion and review belonging to the
	// user and folds the user's ratings back out of target aggregates.
	// Account-erasure hook.
	DeleteUserData(ctx context.Context, userID string) error
}

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing. All operations run under one
// lock, which gives the same atomicity the postgres backend gets from
// transactions.
type memory struct {
	mu          sync.RWMutex
	targets     map[string]*model.Target     // target id -> target
	completions map[string]*model.Completion // {userId}_{targetId} -> completion
	reviews     map[string]*model.Review     // {userId}_{targetId} -> review
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		targets:     make(map[string]*model.Target),
		completions: make(map[string]*model.Completion),
		reviews:     make(map[string]*model.Review),
	}
}

func (m *memory) UpsertTarget(ctx context.Context, target model.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.targets[target.ID]; ok {
		// Preserve the rating aggregate across catalog reloads.
		target.RatingCount = existing.RatingCount
		target.RatingSum = existing.RatingSum
		target.AvgRating = existing.AvgRating
	}
	targetCopy := target
	m.targets[target.ID] = &targetCopy
	return nil
}

func (m *memory) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target, ok := m.targets[id]
	if !ok {
		return nil, ErrNotFound
	}
	targetCopy := *target
	return &targetCopy, nil
}

func (m *memory) ListActiveTargets(ctx context.Context) ([]model.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make([]model.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.Active {
			targets = append(targets, *t)
		}
	}
	// Stable order for deterministic consumers.
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	return targets, nil
}

func (m *memory) CreateCompletion(ctx context.Context, completion model.Completion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent create: an existing record at the key wins and is never
	// overwritten by a second completion attempt.
	if _, exists := m.completions[completion.ID]; exists {
		return false, nil
	}

	completionCopy := completion
	m.completions[completion.ID] = &completionCopy
	return true, nil
}

func (m *memory) GetCompletion(ctx context.Context, id string) (*model.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	completion, ok := m.completions[id]
	if !ok {
		return nil, ErrNotFound
	}
	completionCopy := *completion
	return &completionCopy, nil
}

func (m *memory) ListCompletionsByUser(ctx context.Context, userID string) ([]model.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var completions []model.Completion
	for _, c := range m.completions {
		if c.UserID == userID {
			completions = append(completions, *c)
		}
	}
	sort.Slice(completions, func(i, j int) bool {
		return completions[i].CompletedAt.Before(completions[j].CompletedAt)
	})
	return completions, nil
}

func (m *memory) ConfirmShareBonus(ctx context.Context, id, platform string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	completion, ok := m.completions[id]
	if !ok {
		return ErrNotFound
	}

	// Monotonic one-way flag; setting true-on-true is a harmless no-op.
	completion.ShareBonus = true
	completion.ShareConfirmed = true
	completion.SharedAt = &at
	completion.SharedPlatform = platform
	return nil
}

func (m *memory) GetReview(ctx context.Context, id string) (*model.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	review, ok := m.reviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	reviewCopy := *review
	return &reviewCopy, nil
}

func (m *memory) ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var reviews []model.Review
	for _, r := range m.reviews {
		if r.UserID == userID {
			reviews = append(reviews, *r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].TargetName < reviews[j].TargetName })
	return reviews, nil
}

func (m *memory) SaveReviewWithAggregate(ctx context.Context, review model.Review) (*model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.targets[review.TargetID]
	if !ok {
		return nil, ErrNotFound
	}

	var prevRating *int
	if existing, exists := m.reviews[review.ID]; exists {
		prevRating = &existing.Rating
		// Never regress the original creation time on update.
		review.CreatedAt = existing.CreatedAt
	}

	count, sum, avg := FoldRating(target.RatingCount, target.RatingSum, target.AvgRating, prevRating, review.Rating)
	target.RatingCount = count
	target.RatingSum = sum
	target.AvgRating = avg

	reviewCopy := review
	m.reviews[review.ID] = &reviewCopy
	result := review
	return &result, nil
}

func (m *memory) DeleteUserData(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.completions {
		if c.UserID == userID {
			delete(m.completions, id)
		}
	}

	for id, r := range m.reviews {
		if r.UserID != userID {
			continue
		}
		if target, ok := m.targets[r.TargetID]; ok {
			count, sum, avg := UnfoldRating(target.RatingCount, target.RatingSum, target.AvgRating, r.Rating)
			target.RatingCount = count
			target.RatingSum = sum
			target.AvgRating = avg
		}
		delete(m.reviews, id)
	}
	return nil
}
