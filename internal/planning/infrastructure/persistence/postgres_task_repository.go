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

// PostgresTaskRepository persists tasks in PostgreSQL.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgreSQL task repository.
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

// Save inserts or updates a task.
func (r *PostgresTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	metadata, err := encodeMetadata(task.Metadata())
	if err != nil {
		return err
	}

	var externalID *string
	if v := task.MetadataValue("external_id"); v != "" {
		externalID = &v
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, description, priority, deadline, status, completed_at, metadata, external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			deadline = EXCLUDED.deadline,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			metadata = EXCLUDED.metadata,
			external_id = EXCLUDED.external_id,
			updated_at = EXCLUDED.updated_at`,
		task.ID(),
		task.Title(),
		task.Description(),
		int(task.Priority()),
		task.Deadline(),
		task.Status().String(),
		task.CompletedAt(),
		metadata,
		externalID,
		task.CreatedAt(),
		task.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindByID loads a task by its ID.
func (r *PostgresTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, pgTaskSelect+` WHERE id = $1`, id)
	return scanPgTask(row)
}

// FindByExternalID loads the task linked to an upstream task-store entry.
func (r *PostgresTaskRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, pgTaskSelect+` WHERE external_id = $1`, externalID)
	return scanPgTask(row)
}

// ListActive returns tasks that are still schedulable.
func (r *PostgresTaskRepository) ListActive(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		pgTaskSelect+` WHERE status = ANY($1) ORDER BY created_at`,
		[]string{domain.StatusPending.String(), domain.StatusInProgress.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer rows.Close()
	return collectPgTasks(rows)
}

// ListByStatus returns tasks in the given state.
func (r *PostgresTaskRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		pgTaskSelect+` WHERE status = $1 ORDER BY created_at`, status.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectPgTasks(rows)
}

const pgTaskSelect = `
	SELECT id, title, description, priority, deadline, status, completed_at, metadata, created_at, updated_at
	FROM tasks`

func scanPgTask(row pgx.Row) (*domain.Task, error) {
	var (
		id          uuid.UUID
		title       string
		description string
		priority    int
		deadline    *time.Time
		status      string
		completedAt *time.Time
		metadata    []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &title, &description, &priority, &deadline, &status, &completedAt, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	parsedStatus, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateTask(
		id,
		title,
		description,
		domain.Priority(priority),
		deadline,
		parsedStatus,
		completedAt,
		meta,
		createdAt,
		updatedAt,
	), nil
}

func collectPgTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanPgTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}
