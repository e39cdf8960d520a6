package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planward/planward/internal/planning/domain"
)

// PostgresRecordRepository is the append-only PostgreSQL store of executor
// outcomes.
type PostgresRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordRepository creates a new PostgreSQL execution record
// repository.
func NewPostgresRecordRepository(pool *pgxpool.Pool) *PostgresRecordRepository {
	return &PostgresRecordRepository{pool: pool}
}

// Append stores one execution record. Records are never updated.
func (r *PostgresRecordRepository) Append(ctx context.Context, record domain.ExecutionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO execution_records (id, agent, operation, task_id, rule_id, cause, duration_ms, success, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.Agent,
		record.Operation,
		uuidOrNil(record.TaskID),
		uuidOrNil(record.RuleID),
		string(record.Cause),
		record.Duration.Milliseconds(),
		record.Success,
		record.Error,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}
	return nil
}

// ListSince returns records with a timestamp at or after the given instant,
// oldest first.
func (r *PostgresRecordRepository) ListSince(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent, operation, task_id, rule_id, cause, duration_ms, success, error, timestamp
		FROM execution_records
		WHERE timestamp >= $1
		ORDER BY timestamp`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		var (
			taskID     *uuid.UUID
			ruleID     *uuid.UUID
			cause      string
			durationMS int64
			record     domain.ExecutionRecord
		)
		err := rows.Scan(&record.ID, &record.Agent, &record.Operation, &taskID, &ruleID, &cause, &durationMS, &record.Success, &record.Error, &record.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		if taskID != nil {
			record.TaskID = *taskID
		}
		if ruleID != nil {
			record.RuleID = *ruleID
		}
		record.Cause = domain.ConflictCause(cause)
		record.Duration = time.Duration(durationMS) * time.Millisecond

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution records: %w", err)
	}
	return records, nil
}

func uuidOrNil(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
