package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord is one append-only audit entry per executor action.
// Consumed by the reviewer as training signal.
type ExecutionRecord struct {
	ID        uuid.UUID
	Agent     string // pipeline stage that performed the action
	Operation string // e.g. "calendar.create", "notify.send"
	TaskID    uuid.UUID
	RuleID    uuid.UUID     // rule that influenced the action, if any
	Cause     ConflictCause // conflict cause associated with the action, if any
	Duration  time.Duration
	Success   bool
	Error     string
	Timestamp time.Time
}

// NewExecutionRecord creates a record for a completed action.
func NewExecutionRecord(agent, operation string, taskID uuid.UUID, duration time.Duration, success bool, errMsg string) ExecutionRecord {
	return ExecutionRecord{
		ID:        uuid.New(),
		Agent:     agent,
		Operation: operation,
		TaskID:    taskID,
		Duration:  duration,
		Success:   success,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// WithRule attaches the rule that influenced the action.
func (r ExecutionRecord) WithRule(ruleID uuid.UUID) ExecutionRecord {
	r.RuleID = ruleID
	return r
}

// WithCause attaches the conflict cause behind the action.
func (r ExecutionRecord) WithCause(cause ConflictCause) ExecutionRecord {
	r.Cause = cause
	return r
}
