package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planward/planward/internal/planning/domain"
)

// PostgresPlanRepository persists emitted plans in PostgreSQL.
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPlanRepository creates a new PostgreSQL plan repository.
func NewPostgresPlanRepository(pool *pgxpool.Pool) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool}
}

// Save inserts or updates a plan.
func (r *PostgresPlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	assignments, err := encodeAssignments(plan.Assignments())
	if err != nil {
		return err
	}
	conflicts, err := encodeConflicts(plan.Conflicts())
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO plans (id, window_start, window_end, assignments, conflicts, emitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			assignments = EXCLUDED.assignments,
			conflicts = EXCLUDED.conflicts,
			updated_at = EXCLUDED.updated_at`,
		plan.ID(),
		plan.Window().Start,
		plan.Window().End,
		assignments,
		conflicts,
		plan.EmittedAt(),
		plan.CreatedAt(),
		plan.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// FindByID loads a plan by its ID.
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	row := r.pool.QueryRow(ctx, pgPlanSelect+` WHERE id = $1`, id)
	return scanPgPlan(row)
}

// Latest returns the most recently emitted plan.
func (r *PostgresPlanRepository) Latest(ctx context.Context) (*domain.Plan, error) {
	row := r.pool.QueryRow(ctx, pgPlanSelect+` ORDER BY emitted_at DESC LIMIT 1`)
	return scanPgPlan(row)
}

const pgPlanSelect = `
	SELECT id, window_start, window_end, assignments, conflicts, emitted_at, created_at, updated_at
	FROM plans`

func scanPgPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		id          uuid.UUID
		windowStart time.Time
		windowEnd   time.Time
		assignments []byte
		conflicts   []byte
		emittedAt   time.Time
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &windowStart, &windowEnd, &assignments, &conflicts, &emittedAt, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	decodedAssignments, err := decodeAssignments(assignments)
	if err != nil {
		return nil, err
	}
	decodedConflicts, err := decodeConflicts(conflicts)
	if err != nil {
		return nil, err
	}

	return domain.RehydratePlan(
		id,
		domain.NewTimeRange(windowStart, windowEnd),
		decodedAssignments,
		decodedConflicts,
		emittedAt,
		createdAt,
		updatedAt,
	), nil
}
