package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/planward/planward/internal/shared/domain"
)

// ConflictCause explains why two tasks could not both be scheduled as-is.
type ConflictCause string

const (
	CauseOverlap          ConflictCause = "overlap"
	CauseCalendarBusy     ConflictCause = "calendar_busy"
	CauseWeatherExclusion ConflictCause = "weather_exclusion"
	CauseNoSlot           ConflictCause = "no_slot"
)

// ConflictResolution records how a detected conflict was handled.
type ConflictResolution string

const (
	ResolutionDeferred   ConflictResolution = "deferred"
	ResolutionUnresolved ConflictResolution = "unresolved"
)

// Conflict describes one scheduling conflict detected while planning and
// how it was resolved.
type Conflict struct {
	TaskID     uuid.UUID
	WinnerID   uuid.UUID // task or external event that kept the slot; Nil for rule exclusions
	Cause      ConflictCause
	Resolution ConflictResolution
	Detail     string
	Slot       TimeRange // the contested slot
}

// Assignment pairs a task with its proposed time slot.
type Assignment struct {
	TaskID    uuid.UUID
	Title     string
	Slot      TimeRange
	Recurring bool // recurring actions leave the task in progress after execution
}

// Plan is an ordered sequence of assignments plus the conflicts detected
// while producing it. Immutable once emitted.
type Plan struct {
	sharedDomain.BaseAggregateRoot
	window      TimeRange
	assignments []Assignment
	conflicts   []Conflict
	emittedAt   time.Time
}

// NewPlan creates a plan from the given assignments and conflicts.
// Returns ErrPlanOverlap when two assignments occupy overlapping slots
// without a conflict entry covering the loser.
func NewPlan(window TimeRange, assignments []Assignment, conflicts []Conflict) (*Plan, error) {
	for i := range assignments {
		for j := i + 1; j < len(assignments); j++ {
			if assignments[i].Slot.Overlaps(assignments[j].Slot) {
				if !conflictCovers(conflicts, assignments[i].TaskID) &&
					!conflictCovers(conflicts, assignments[j].TaskID) {
					return nil, ErrPlanOverlap
				}
			}
		}
	}

	p := &Plan{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		window:            window,
		assignments:       make([]Assignment, len(assignments)),
		conflicts:         make([]Conflict, len(conflicts)),
		emittedAt:         time.Now().UTC(),
	}
	copy(p.assignments, assignments)
	copy(p.conflicts, conflicts)

	p.AddDomainEvent(NewPlanEmitted(p.ID(), len(assignments), len(conflicts)))

	return p, nil
}

func conflictCovers(conflicts []Conflict, taskID uuid.UUID) bool {
	for _, c := range conflicts {
		if c.TaskID == taskID {
			return true
		}
	}
	return false
}

func (p *Plan) Window() TimeRange    { return p.window }
func (p *Plan) EmittedAt() time.Time { return p.emittedAt }

// Assignments returns a copy of the ordered assignments.
func (p *Plan) Assignments() []Assignment {
	out := make([]Assignment, len(p.assignments))
	copy(out, p.assignments)
	return out
}

// Conflicts returns a copy of the detected conflicts.
func (p *Plan) Conflicts() []Conflict {
	out := make([]Conflict, len(p.conflicts))
	copy(out, p.conflicts)
	return out
}

// TaskIDs lists the scheduled task IDs in plan order.
func (p *Plan) TaskIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(p.assignments))
	for i, a := range p.assignments {
		out[i] = a.TaskID
	}
	return out
}

// RehydratePlan recreates a plan from persisted state.
func RehydratePlan(
	id uuid.UUID,
	window TimeRange,
	assignments []Assignment,
	conflicts []Conflict,
	emittedAt time.Time,
	createdAt, updatedAt time.Time,
) *Plan {
	p := &Plan{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		window:      window,
		assignments: make([]Assignment, len(assignments)),
		conflicts:   make([]Conflict, len(conflicts)),
		emittedAt:   emittedAt,
	}
	copy(p.assignments, assignments)
	copy(p.conflicts, conflicts)
	return p
}
