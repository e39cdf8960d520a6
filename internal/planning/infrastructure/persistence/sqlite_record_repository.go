package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/planning/domain"
)

// SQLiteRecordRepository is the append-only SQLite store of executor outcomes.
type SQLiteRecordRepository struct {
	db *sql.DB
}

// NewSQLiteRecordRepository creates a new SQLite execution record repository.
func NewSQLiteRecordRepository(db *sql.DB) *SQLiteRecordRepository {
	return &SQLiteRecordRepository{db: db}
}

// Append stores one execution record. Records are never updated.
func (r *SQLiteRecordRepository) Append(ctx context.Context, record domain.ExecutionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO execution_records (id, agent, operation, task_id, rule_id, cause, duration_ms, success, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(),
		record.Agent,
		record.Operation,
		nullUUID(record.TaskID),
		nullUUID(record.RuleID),
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
func (r *SQLiteRecordRepository) ListSince(ctx context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, agent, operation, task_id, rule_id, cause, duration_ms, success, error, timestamp
		FROM execution_records
		WHERE timestamp >= ?
		ORDER BY timestamp`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		var (
			id         string
			taskID     sql.NullString
			ruleID     sql.NullString
			cause      string
			durationMS int64
			record     domain.ExecutionRecord
		)
		err := rows.Scan(&id, &record.Agent, &record.Operation, &taskID, &ruleID, &cause, &durationMS, &record.Success, &record.Error, &record.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		record.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q: %w", id, err)
		}
		record.TaskID, err = parseNullUUID(taskID)
		if err != nil {
			return nil, err
		}
		record.RuleID, err = parseNullUUID(ruleID)
		if err != nil {
			return nil, err
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

func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(s sql.NullString) (uuid.UUID, error) {
	if !s.Valid {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid %q: %w", s.String, err)
	}
	return id, nil
}
