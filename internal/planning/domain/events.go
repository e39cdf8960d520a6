package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/planward/planward/internal/shared/domain"
)

const (
	TaskAggregateType = "Task"
	PlanAggregateType = "Plan"
	RuleAggregateType = "Rule"

	RoutingKeyTaskCreated   = "planning.task.created"
	RoutingKeyTaskStarted   = "planning.task.started"
	RoutingKeyTaskCompleted = "planning.task.completed"
	RoutingKeyTaskCancelled = "planning.task.cancelled"
	RoutingKeyPlanEmitted   = "planning.plan.emitted"
	RoutingKeyRulesUpdated  = "planning.rules.updated"
)

// TaskCreated is emitted when a new task enters the pipeline.
type TaskCreated struct {
	sharedDomain.BaseEvent
	TaskID   uuid.UUID `json:"task_id"`
	Title    string    `json:"title"`
	Priority string    `json:"priority"`
}

// NewTaskCreated creates a TaskCreated event.
func NewTaskCreated(taskID uuid.UUID, title, priority string) TaskCreated {
	return TaskCreated{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, TaskAggregateType, RoutingKeyTaskCreated),
		TaskID:    taskID,
		Title:     title,
		Priority:  priority,
	}
}

// TaskStarted is emitted when a task is included in an emitted plan.
type TaskStarted struct {
	sharedDomain.BaseEvent
	TaskID uuid.UUID `json:"task_id"`
}

// NewTaskStarted creates a TaskStarted event.
func NewTaskStarted(taskID uuid.UUID) TaskStarted {
	return TaskStarted{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, TaskAggregateType, RoutingKeyTaskStarted),
		TaskID:    taskID,
	}
}

// TaskCompleted is emitted when an executed action completes a task.
type TaskCompleted struct {
	sharedDomain.BaseEvent
	TaskID uuid.UUID `json:"task_id"`
}

// NewTaskCompleted creates a TaskCompleted event.
func NewTaskCompleted(taskID uuid.UUID) TaskCompleted {
	return TaskCompleted{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, TaskAggregateType, RoutingKeyTaskCompleted),
		TaskID:    taskID,
	}
}

// TaskCancelled is emitted when a task is cancelled.
type TaskCancelled struct {
	sharedDomain.BaseEvent
	TaskID uuid.UUID `json:"task_id"`
}

// NewTaskCancelled creates a TaskCancelled event.
func NewTaskCancelled(taskID uuid.UUID) TaskCancelled {
	return TaskCancelled{
		BaseEvent: sharedDomain.NewBaseEvent(taskID, TaskAggregateType, RoutingKeyTaskCancelled),
		TaskID:    taskID,
	}
}

// PlanEmitted is emitted when the planner produces a new plan.
type PlanEmitted struct {
	sharedDomain.BaseEvent
	PlanID      uuid.UUID `json:"plan_id"`
	Assignments int       `json:"assignments"`
	Conflicts   int       `json:"conflicts"`
}

// NewPlanEmitted creates a PlanEmitted event.
func NewPlanEmitted(planID uuid.UUID, assignments, conflicts int) PlanEmitted {
	return PlanEmitted{
		BaseEvent:   sharedDomain.NewBaseEvent(planID, PlanAggregateType, RoutingKeyPlanEmitted),
		PlanID:      planID,
		Assignments: assignments,
		Conflicts:   conflicts,
	}
}

// RulesUpdated is emitted after a review cycle commits rule changes.
type RulesUpdated struct {
	sharedDomain.BaseEvent
	Adjusted int `json:"adjusted"`
	Proposed int `json:"proposed"`
}

// NewRulesUpdated creates a RulesUpdated event.
func NewRulesUpdated(reviewID uuid.UUID, adjusted, proposed int) RulesUpdated {
	return RulesUpdated{
		BaseEvent: sharedDomain.NewBaseEvent(reviewID, RuleAggregateType, RoutingKeyRulesUpdated),
		Adjusted:  adjusted,
		Proposed:  proposed,
	}
}
