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

// SQLiteTaskRepository persists tasks in SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a new SQLite task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// Save inserts or updates a task.
func (r *SQLiteTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	metadata, err := encodeMetadata(task.Metadata())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, priority, deadline, status, completed_at, metadata, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			priority = excluded.priority,
			deadline = excluded.deadline,
			status = excluded.status,
			completed_at = excluded.completed_at,
			metadata = excluded.metadata,
			external_id = excluded.external_id,
			updated_at = excluded.updated_at`,
		task.ID().String(),
		task.Title(),
		task.Description(),
		int(task.Priority()),
		nullTime(task.Deadline()),
		task.Status().String(),
		nullTime(task.CompletedAt()),
		string(metadata),
		nullString(task.MetadataValue("external_id")),
		task.CreatedAt(),
		task.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindByID loads a task by its ID.
func (r *SQLiteTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id.String())
	return scanTask(row)
}

// FindByExternalID loads the task linked to an upstream task-store entry.
func (r *SQLiteTaskRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, taskSelect+` WHERE external_id = ?`, externalID)
	return scanTask(row)
}

// ListActive returns tasks that are still schedulable.
func (r *SQLiteTaskRepository) ListActive(ctx context.Context) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		taskSelect+` WHERE status IN (?, ?) ORDER BY created_at`,
		domain.StatusPending.String(), domain.StatusInProgress.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListByStatus returns tasks in the given state.
func (r *SQLiteTaskRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		taskSelect+` WHERE status = ? ORDER BY created_at`, status.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

const taskSelect = `
	SELECT id, title, description, priority, deadline, status, completed_at, metadata, created_at, updated_at
	FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		id          string
		title       string
		description string
		priority    int
		deadline    sql.NullTime
		status      string
		completedAt sql.NullTime
		metadata    []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &title, &description, &priority, &deadline, &status, &completedAt, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
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
		taskID,
		title,
		description,
		domain.Priority(priority),
		timePtr(deadline),
		parsedStatus,
		timePtr(completedAt),
		meta,
		createdAt,
		updatedAt,
	), nil
}

func collectTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
