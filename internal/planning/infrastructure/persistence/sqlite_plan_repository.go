package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/planning/domain"
)

// SQLitePlanRepository persists emitted plans in SQLite.
type SQLitePlanRepository struct {
	db *sql.DB
}

// NewSQLitePlanRepository creates a new SQLite plan repository.
func NewSQLitePlanRepository(db *sql.DB) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db}
}

// Save inserts or updates a plan.
func (r *SQLitePlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	assignments, err := encodeAssignments(plan.Assignments())
	if err != nil {
		return err
	}
	conflicts, err := encodeConflicts(plan.Conflicts())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plans (id, window_start, window_end, assignments, conflicts, emitted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			assignments = excluded.assignments,
			conflicts = excluded.conflicts,
			updated_at = excluded.updated_at`,
		plan.ID().String(),
		plan.Window().Start,
		plan.Window().End,
		string(assignments),
		string(conflicts),
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
func (r *SQLitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	row := r.db.QueryRowContext(ctx, planSelect+` WHERE id = ?`, id.String())
	return scanPlan(row)
}

// Latest returns the most recently emitted plan.
func (r *SQLitePlanRepository) Latest(ctx context.Context) (*domain.Plan, error) {
	row := r.db.QueryRowContext(ctx, planSelect+` ORDER BY emitted_at DESC LIMIT 1`)
	return scanPlan(row)
}

const planSelect = `
	SELECT id, window_start, window_end, assignments, conflicts, emitted_at, created_at, updated_at
	FROM plans`

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var (
		id          string
		windowStart time.Time
		windowEnd   time.Time
		assignments []byte
		conflicts   []byte
		emittedAt   time.Time
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &windowStart, &windowEnd, &assignments, &conflicts, &emittedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	planID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid plan id %q: %w", id, err)
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
		planID,
		domain.NewTimeRange(windowStart, windowEnd),
		decodedAssignments,
		decodedConflicts,
		emittedAt,
		createdAt,
		updatedAt,
	), nil
}
