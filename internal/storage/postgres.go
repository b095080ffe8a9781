// internal/storage/postgres.go
// PostgreSQL implementation of the Store interface, intended for production
// use. The deterministic {userId}_{targetId} primary keys plus ON CONFLICT
// handling give idempotent completion creates without advisory locks; review
// writes hold a row lock on the target so the rating aggregate cannot lose
// updates under concurrent reviewers.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conequest/conequest-go/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL storage implementation. It establishes
// a connection pool and initializes the schema.
func NewPostgres(dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &postgres{db: pool}, nil
}

// initSchema creates all required tables and indexes if they don't exist.
func initSchema(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
		-- Targets: authored points of interest, read-mostly
		CREATE TABLE IF NOT EXISTS targets (
		    id TEXT PRIMARY KEY,
		    name TEXT NOT NULL,
		    slug TEXT NOT NULL,
		    lat DOUBLE PRECISION NOT NULL,
		    lng DOUBLE PRECISION NOT NULL,
		    radius_meters DOUBLE PRECISION NOT NULL,
		    checkpoints JSONB,
		    description TEXT NOT NULL DEFAULT '',
		    active BOOLEAN NOT NULL DEFAULT TRUE,
		    category TEXT NOT NULL DEFAULT 'other',
		    region TEXT NOT NULL DEFAULT 'central',
		    rating_count INTEGER NOT NULL DEFAULT 0,
		    rating_sum INTEGER NOT NULL DEFAULT 0,
		    avg_rating DOUBLE PRECISION NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_targets_active ON targets(active);

		-- Completions: keyed {userId}_{targetId}; the primary key enforces
		-- at-most-one completion per user per target
		CREATE TABLE IF NOT EXISTS completions (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    target_id TEXT NOT NULL,
		    target_slug TEXT NOT NULL,
		    target_name TEXT NOT NULL,
		    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    lat DOUBLE PRECISION NOT NULL,
		    lng DOUBLE PRECISION NOT NULL,
		    accuracy_meters DOUBLE PRECISION,
		    distance_meters DOUBLE PRECISION NOT NULL,
		    checkpoint_id TEXT NOT NULL,
		    checkpoint_lat DOUBLE PRECISION NOT NULL,
		    checkpoint_lng DOUBLE PRECISION NOT NULL,
		    checkpoint_radius DOUBLE PRECISION NOT NULL,
		    share_bonus BOOLEAN NOT NULL DEFAULT FALSE,
		    share_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
		    shared_at TIMESTAMP WITH TIME ZONE,
		    shared_platform TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_completions_user ON completions(user_id);
		CREATE INDEX IF NOT EXISTS idx_completions_target ON completions(target_id);

		-- Reviews: keyed {userId}_{targetId}; at most one per user per target
		CREATE TABLE IF NOT EXISTS reviews (
		    id TEXT PRIMARY KEY,
		    user_id TEXT NOT NULL,
		    target_id TEXT NOT NULL REFERENCES targets(id),
		    target_slug TEXT NOT NULL,
		    target_name TEXT NOT NULL,
		    rating INTEGER NOT NULL,
		    note TEXT,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reviews_user ON reviews(user_id);
		CREATE INDEX IF NOT EXISTS idx_reviews_target ON reviews(target_id);
	`

	_, err := db.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool
func (p *postgres) Close() {
	p.db.Close()
}

func (p *postgres) UpsertTarget(ctx context.Context, target model.Target) error {
	checkpointsJSON, err := json.Marshal(target.Checkpoints)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoints: %w", err)
	}

	// Catalog reloads must not clobber the rating aggregate.
	query := `INSERT INTO targets (id, name, slug, lat, lng, radius_meters, checkpoints, description, active, category, region)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (id) DO UPDATE
	          SET name = $2, slug = $3, lat = $4, lng = $5, radius_meters = $6,
	              checkpoints = $7, description = $8, active = $9, category = $10, region = $11`

	_, err = p.db.Exec(ctx, query,
		target.ID, target.Name, target.Slug, target.Lat, target.Lng, target.RadiusMeters,
		checkpointsJSON, target.Description, target.Active, target.Category, target.Region)
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	return nil
}

const targetColumns = `id, name, slug, lat, lng, radius_meters, checkpoints, description, active, category, region, rating_count, rating_sum, avg_rating`

func scanTarget(row pgx.Row) (*model.Target, error) {
	var target model.Target
	var checkpointsJSON []byte

	err := row.Scan(
		&target.ID, &target.Name, &target.Slug, &target.Lat, &target.Lng, &target.RadiusMeters,
		&checkpointsJSON, &target.Description, &target.Active, &target.Category, &target.Region,
		&target.RatingCount, &target.RatingSum, &target.AvgRating)
	if err != nil {
		return nil, err
	}

	if len(checkpointsJSON) > 0 {
		if err := json.Unmarshal(checkpointsJSON, &target.Checkpoints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoints: %w", err)
		}
	}
	return &target, nil
}

func (p *postgres) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id = $1`

	target, err := scanTarget(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return target, nil
}

func (p *postgres) ListActiveTargets(ctx context.Context) ([]model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE active ORDER BY name ASC`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, *target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	return targets, nil
}

func (p *postgres) CreateCompletion(ctx context.Context, completion model.Completion) (bool, error) {
	// ON CONFLICT DO NOTHING makes the create idempotent at the storage key:
	// duplicate submissions race to a single insert and the loser is a no-op.
	query := `INSERT INTO completions (id, user_id, target_id, target_slug, target_name, completed_at,
	              lat, lng, accuracy_meters, distance_meters,
	              checkpoint_id, checkpoint_lat, checkpoint_lng, checkpoint_radius,
	              share_bonus, share_confirmed, shared_at, shared_platform)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	          ON CONFLICT (id) DO NOTHING`

	tag, err := p.db.Exec(ctx, query,
		completion.ID, completion.UserID, completion.TargetID, completion.TargetSlug, completion.TargetName,
		completion.CompletedAt, completion.Lat, completion.Lng, completion.AccuracyMeters, completion.DistanceMeters,
		completion.CheckpointID, completion.CheckpointLat, completion.CheckpointLng, completion.CheckpointRadius,
		completion.ShareBonus, completion.ShareConfirmed, completion.SharedAt, completion.SharedPlatform)
	if err != nil {
		return false, fmt.Errorf("failed to create completion: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const completionColumns = `id, user_id, target_id, target_slug, target_name, completed_at,
	lat, lng, accuracy_meters, distance_meters,
	checkpoint_id, checkpoint_lat, checkpoint_lng, checkpoint_radius,
	share_bonus, share_confirmed, shared_at, shared_platform`

func scanCompletion(row pgx.Row) (*model.Completion, error) {
	var c model.Completion
	err := row.Scan(
		&c.ID, &c.UserID, &c.TargetID, &c.TargetSlug, &c.TargetName, &c.CompletedAt,
		&c.Lat, &c.Lng, &c.AccuracyMeters, &c.DistanceMeters,
		&c.CheckpointID, &c.CheckpointLat, &c.CheckpointLng, &c.CheckpointRadius,
		&c.ShareBonus, &c.ShareConfirmed, &c.SharedAt, &c.SharedPlatform)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *postgres) GetCompletion(ctx context.Context, id string) (*model.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE id = $1`

	completion, err := scanCompletion(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	return completion, nil
}

func (p *postgres) ListCompletionsByUser(ctx context.Context, userID string) ([]model.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE user_id = $1 ORDER BY completed_at ASC`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.Completion
	for rows.Next() {
		completion, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, *completion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completions: %w", err)
	}
	return completions, nil
}

func (p *postgres) ConfirmShareBonus(ctx context.Context, id, platform string, at time.Time) error {
	// Direct field update, no transaction: the flag is monotonic false->true
	// and the record's existence was established by completion.
	query := `UPDATE completions
	          SET share_bonus = TRUE, share_confirmed = TRUE, shared_at = $2, shared_platform = $3
	          WHERE id = $1`

	tag, err := p.db.Exec(ctx, query, id, at, platform)
	if err != nil {
		return fmt.Errorf("failed to confirm share bonus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const reviewColumns = `id, user_id, target_id, target_slug, target_name, rating, note, created_at, updated_at`

func scanReview(row pgx.Row) (*model.Review, error) {
	var r model.Review
	err := row.Scan(
		&r.ID, &r.UserID, &r.TargetID, &r.TargetSlug, &r.TargetName,
		&r.Rating, &r.Note, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *postgres) GetReview(ctx context.Context, id string) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	review, err := scanReview(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return review, nil
}

func (p *postgres) ListReviewsByUser(ctx context.Context, userID string) ([]model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE user_id = $1 ORDER BY target_name ASC`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, *review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

func (p *postgres) SaveReviewWithAggregate(ctx context.Context, review model.Review) (*model.Review, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the target row so concurrent reviewers of the same target
	// serialize on the aggregate.
	var count, sum int
	var avg float64
	err = tx.QueryRow(ctx,
		`SELECT rating_count, rating_sum, avg_rating FROM targets WHERE id = $1 FOR UPDATE`,
		review.TargetID).Scan(&count, &sum, &avg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read target aggregate: %w", err)
	}

	var prevRating *int
	var existingRating int
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT rating, created_at FROM reviews WHERE id = $1 FOR UPDATE`,
		review.ID).Scan(&existingRating, &createdAt)
	if err == nil {
		prevRating = &existingRating
		// Never regress the original creation time on update.
		review.CreatedAt = createdAt
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read existing review: %w", err)
	}

	count, sum, avg = FoldRating(count, sum, avg, prevRating, review.Rating)

	_, err = tx.Exec(ctx,
		`INSERT INTO reviews (id, user_id, target_id, target_slug, target_name, rating, note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET rating = $6, note = $7, target_slug = $4, target_name = $5, updated_at = $9`,
		review.ID, review.UserID, review.TargetID, review.TargetSlug, review.TargetName,
		review.Rating, review.Note, review.CreatedAt, review.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE targets SET rating_count = $2, rating_sum = $3, avg_rating = $4 WHERE id = $1`,
		review.TargetID, count, sum, avg)
	if err != nil {
		return nil, fmt.Errorf("failed to update target aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review: %w", err)
	}

	result := review
	return &result, nil
}

func (p *postgres) DeleteUserData(ctx context.Context, userID string) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT target_id, rating FROM reviews WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to list user reviews: %w", err)
	}
	type userReview struct {
		targetID string
		rating   int
	}
	var userReviews []userReview
	for rows.Next() {
		var r userReview
		if err := rows.Scan(&r.targetID, &r.rating); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan user review: %w", err)
		}
		userReviews = append(userReviews, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating user reviews: %w", err)
	}

	for _, r := range userReviews {
		var count, sum int
		var avg float64
		err = tx.QueryRow(ctx,
			`SELECT rating_count, rating_sum, avg_rating FROM targets WHERE id = $1 FOR UPDATE`,
			r.targetID).Scan(&count, &sum, &avg)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return fmt.Errorf("failed to read target aggregate: %w", err)
		}

		count, sum, avg = UnfoldRating(count, sum, avg, r.rating)
		_, err = tx.Exec(ctx,
			`UPDATE targets SET rating_count = $2, rating_sum = $3, avg_rating = $4 WHERE id = $1`,
			r.targetID, count, sum, avg)
		if err != nil {
			return fmt.Errorf("failed to update target aggregate: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete reviews: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM completions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete completions: %w", err)
	}

	return tx.Commit(ctx)
}
