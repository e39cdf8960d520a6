package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planward/planward/internal/planning/domain"
)

// PostgresRuleRepository persists learned rules in PostgreSQL.
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

// FindByID loads a rule by its ID.
func (r *PostgresRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	row := r.pool.QueryRow(ctx, pgRuleSelect+` WHERE id = $1`, id)
	return scanPgRule(row)
}

// ListAll returns every stored rule.
func (r *PostgresRuleRepository) ListAll(ctx context.Context) ([]*domain.Rule, error) {
	rows, err := r.pool.Query(ctx, pgRuleSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanPgRule(rows)
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
func (r *PostgresRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	return savePgRule(ctx, r.pool, rule)
}

// ApplyReview commits the outcome of one review cycle in a single
// transaction. Either every adjustment and proposal lands or none do.
func (r *PostgresRuleRepository) ApplyReview(ctx context.Context, updated []*domain.Rule, proposed []*domain.Rule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rule := range updated {
		if err := savePgRule(ctx, tx, rule); err != nil {
			return err
		}
	}
	for _, rule := range proposed {
		if err := savePgRule(ctx, tx, rule); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit review transaction: %w", err)
	}
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func savePgRule(ctx context.Context, db pgExecer, rule *domain.Rule) error {
	params, err := encodeParams(rule.Params())
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO rules (id, kind, task_tag, params, confidence, last_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			task_tag = EXCLUDED.task_tag,
			params = EXCLUDED.params,
			confidence = EXCLUDED.confidence,
			last_used = EXCLUDED.last_used,
			updated_at = EXCLUDED.updated_at`,
		rule.ID(),
		string(rule.Kind()),
		rule.TaskTag(),
		params,
		rule.Confidence(),
		rule.LastUsed(),
		rule.CreatedAt(),
		rule.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

const pgRuleSelect = `
	SELECT id, kind, task_tag, params, confidence, last_used, created_at, updated_at
	FROM rules`

func scanPgRule(row pgx.Row) (*domain.Rule, error) {
	var (
		id         uuid.UUID
		kind       string
		taskTag    string
		params     []byte
		confidence float64
		lastUsed   *time.Time
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := row.Scan(&id, &kind, &taskTag, &params, &confidence, &lastUsed, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	parsedParams, err := decodeParams(params)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateRule(
		id,
		domain.RuleKind(kind),
		taskTag,
		parsedParams,
		confidence,
		lastUsed,
		createdAt,
		updatedAt,
	), nil
}
