package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/planward/planward/internal/shared/domain"
)

var (
	ErrEmptyTitle          = errors.New("task title cannot be empty")
	ErrTaskAlreadyComplete = errors.New("task is already completed")
	ErrTaskCancelled       = errors.New("task is cancelled")
	ErrTaskNotStarted      = errors.New("task has not been started")
)

// Status represents the task lifecycle state.
//
// Transitions are monotonic: Pending -> InProgress -> Completed, with
// Cancelled reachable from Pending or InProgress as a terminal state.
// No transition re-enters Pending.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus creates a Status from its string representation.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, errors.New("unknown task status: " + s)
	}
}

// IsTerminal returns true for states that allow no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Task represents a unit of work flowing through the planning pipeline.
type Task struct {
	sharedDomain.BaseAggregateRoot
	title       string
	description string
	priority    Priority
	deadline    *time.Time
	status      Status
	completedAt *time.Time
	metadata    map[string]string
}

// NewTask creates a new pending task.
func NewTask(title string, priority Priority, deadline *time.Time) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if !priority.IsValid() {
		return nil, ErrInvalidPriority
	}

	t := &Task{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		title:             title,
		priority:          priority,
		deadline:          deadline,
		status:            StatusPending,
		metadata:          make(map[string]string),
	}

	t.AddDomainEvent(NewTaskCreated(t.ID(), t.title, t.priority.String()))

	return t, nil
}

// Getters

func (t *Task) Title() string           { return t.title }
func (t *Task) Description() string     { return t.description }
func (t *Task) Priority() Priority      { return t.priority }
func (t *Task) Deadline() *time.Time    { return t.deadline }
func (t *Task) Status() Status          { return t.status }
func (t *Task) CompletedAt() *time.Time { return t.completedAt }
func (t *Task) IsCompleted() bool       { return t.status == StatusCompleted }
func (t *Task) IsCancelled() bool       { return t.status == StatusCancelled }

// Metadata returns a copy of the task metadata.
func (t *Task) Metadata() map[string]string {
	m := make(map[string]string, len(t.metadata))
	for k, v := range t.metadata {
		m[k] = v
	}
	return m
}

// MetadataValue returns a single metadata value.
func (t *Task) MetadataValue(key string) string {
	return t.metadata[key]
}

// SetDescription updates the task description.
func (t *Task) SetDescription(description string) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	t.description = strings.TrimSpace(description)
	t.Touch()
	return nil
}

// SetPriority updates the task priority.
func (t *Task) SetPriority(priority Priority) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	if !priority.IsValid() {
		return ErrInvalidPriority
	}
	t.priority = priority
	t.Touch()
	return nil
}

// SetDeadline updates the deadline.
func (t *Task) SetDeadline(deadline *time.Time) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	t.deadline = deadline
	t.Touch()
	return nil
}

// SetMetadata stores a metadata key-value pair.
func (t *Task) SetMetadata(key, value string) error {
	if err := t.ensureMutable(); err != nil {
		return err
	}
	t.metadata[key] = value
	t.Touch()
	return nil
}

// Start marks the task as in progress. Called when the task is included
// in an emitted plan.
func (t *Task) Start() error {
	if t.IsCompleted() {
		return ErrTaskAlreadyComplete
	}
	if t.IsCancelled() {
		return ErrTaskCancelled
	}
	if t.status == StatusInProgress {
		return nil // idempotent
	}
	t.status = StatusInProgress
	t.Touch()
	t.AddDomainEvent(NewTaskStarted(t.ID()))
	return nil
}

// Complete marks the task as completed.
func (t *Task) Complete() error {
	if t.IsCompleted() {
		return ErrTaskAlreadyComplete
	}
	if t.IsCancelled() {
		return ErrTaskCancelled
	}
	if t.status != StatusInProgress {
		return ErrTaskNotStarted
	}

	now := time.Now().UTC()
	t.status = StatusCompleted
	t.completedAt = &now
	t.Touch()

	t.AddDomainEvent(NewTaskCompleted(t.ID()))

	return nil
}

// Cancel marks the task as cancelled. Terminal.
func (t *Task) Cancel() error {
	if t.IsCompleted() {
		return ErrTaskAlreadyComplete
	}
	if t.IsCancelled() {
		return nil // idempotent
	}

	t.status = StatusCancelled
	t.Touch()

	t.AddDomainEvent(NewTaskCancelled(t.ID()))

	return nil
}

func (t *Task) ensureMutable() error {
	if t.IsCompleted() {
		return ErrTaskAlreadyComplete
	}
	if t.IsCancelled() {
		return ErrTaskCancelled
	}
	return nil
}

// RehydrateTask recreates a task from persisted state.
func RehydrateTask(
	id uuid.UUID,
	title, description string,
	priority Priority,
	deadline *time.Time,
	status Status,
	completedAt *time.Time,
	metadata map[string]string,
	createdAt, updatedAt time.Time,
) *Task {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Task{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		title:       title,
		description: description,
		priority:    priority,
		deadline:    deadline,
		status:      status,
		completedAt: completedAt,
		metadata:    metadata,
	}
}
