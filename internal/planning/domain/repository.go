package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("entity not found")

// TaskRepository defines persistence operations for tasks.
type TaskRepository interface {
	Save(ctx context.Context, task *Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	FindByExternalID(ctx context.Context, externalID string) (*Task, error)
	ListActive(ctx context.Context) ([]*Task, error)
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)
}

// RuleRepository defines persistence operations for learned rules.
// ApplyReview is the only write path that mutates existing rules; its
// changes become visible together or not at all.
type RuleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	ListAll(ctx context.Context) ([]*Rule, error)
	Save(ctx context.Context, rule *Rule) error
	ApplyReview(ctx context.Context, updated []*Rule, proposed []*Rule) error
}

// ExecutionRecordRepository is the append-only store of executor outcomes.
type ExecutionRecordRepository interface {
	Append(ctx context.Context, record ExecutionRecord) error
	ListSince(ctx context.Context, since time.Time) ([]ExecutionRecord, error)
}

// PlanRepository defines persistence operations for emitted plans.
type PlanRepository interface {
	Save(ctx context.Context, plan *Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	Latest(ctx context.Context) (*Plan, error)
}
