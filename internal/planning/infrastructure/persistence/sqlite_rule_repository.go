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

// SQLiteRuleRepository persists learned rules in SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

// FindByID loads a rule by its ID.
func (r *SQLiteRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id.String())
	return scanRule(row)
}

// ListAll returns every stored rule.
func (r *SQLiteRuleRepository) ListAll(ctx context.Context) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, ruleSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// Save inserts or updates a single rule.
func (r *SQLiteRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	return saveRule(ctx, r.db, rule)
}

// ApplyReview commits the outcome of one review cycle in a single
// transaction. Either every adjustment and proposal lands or none do.
func (r *SQLiteRuleRepository) ApplyReview(ctx context.Context, updated []*domain.Rule, proposed []*domain.Rule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rule := range updated {
		if err := saveRule(ctx, tx, rule); err != nil {
			return err
		}
	}
	for _, rule := range proposed {
		if err := saveRule(ctx, tx, rule); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRule(ctx context.Context, db execer, rule *domain.Rule) error {
	params, err := encodeParams(rule.Params())
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO rules (id, kind, task_tag, params, confidence, last_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			task_tag = excluded.task_tag,
			params = excluded.params,
			confidence = excluded.confidence,
			last_used = excluded.last_used,
			updated_at = excluded.updated_at`,
		rule.ID().String(),
		string(rule.Kind()),
		rule.TaskTag(),
		string(params),
		rule.Confidence(),
		nullTime(rule.LastUsed()),
		rule.CreatedAt(),
		rule.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

const ruleSelect = `
	SELECT id, kind, task_tag, params, confidence, last_used, created_at, updated_at
	FROM rules`

func scanRule(row rowScanner) (*domain.Rule, error) {
	var (
		id         string
		kind       string
		taskTag    string
		params     []byte
		confidence float64
		lastUsed   sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&id, &kind, &taskTag, &params, &confidence, &lastUsed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	ruleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid rule id %q: %w", id, err)
	}
	parsedParams, err := decodeParams(params)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateRule(
		ruleID,
		domain.RuleKind(kind),
		taskTag,
		parsedParams,
		confidence,
		timePtr(lastUsed),
		createdAt,
		updatedAt,
	), nil
}
