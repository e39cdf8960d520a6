package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/planning/domain"
)

// assignmentRow is the JSON shape of one plan assignment in storage.
type assignmentRow struct {
	TaskID    uuid.UUID `json:"task_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Recurring bool      `json:"recurring,omitempty"`
}

// conflictRow is the JSON shape of one plan conflict in storage.
type conflictRow struct {
	TaskID     uuid.UUID `json:"task_id"`
	WinnerID   uuid.UUID `json:"winner_id,omitempty"`
	Cause      string    `json:"cause"`
	Resolution string    `json:"resolution"`
	Detail     string    `json:"detail,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

func encodeAssignments(assignments []domain.Assignment) ([]byte, error) {
	rows := make([]assignmentRow, len(assignments))
	for i, a := range assignments {
		rows[i] = assignmentRow{
			TaskID:    a.TaskID,
			Title:     a.Title,
			Start:     a.Slot.Start,
			End:       a.Slot.End,
			Recurring: a.Recurring,
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assignments: %w", err)
	}
	return data, nil
}

func decodeAssignments(data []byte) ([]domain.Assignment, error) {
	var rows []assignmentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode assignments: %w", err)
	}
	assignments := make([]domain.Assignment, len(rows))
	for i, r := range rows {
		assignments[i] = domain.Assignment{
			TaskID:    r.TaskID,
			Title:     r.Title,
			Slot:      domain.NewTimeRange(r.Start, r.End),
			Recurring: r.Recurring,
		}
	}
	return assignments, nil
}

func encodeConflicts(conflicts []domain.Conflict) ([]byte, error) {
	rows := make([]conflictRow, len(conflicts))
	for i, c := range conflicts {
		rows[i] = conflictRow{
			TaskID:     c.TaskID,
			WinnerID:   c.WinnerID,
			Cause:      string(c.Cause),
			Resolution: string(c.Resolution),
			Detail:     c.Detail,
			Start:      c.Slot.Start,
			End:        c.Slot.End,
		}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conflicts: %w", err)
	}
	return data, nil
}

func decodeConflicts(data []byte) ([]domain.Conflict, error) {
	var rows []conflictRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode conflicts: %w", err)
	}
	conflicts := make([]domain.Conflict, len(rows))
	for i, r := range rows {
		conflicts[i] = domain.Conflict{
			TaskID:     r.TaskID,
			WinnerID:   r.WinnerID,
			Cause:      domain.ConflictCause(r.Cause),
			Resolution: domain.ConflictResolution(r.Resolution),
			Detail:     r.Detail,
			Slot:       domain.NewTimeRange(r.Start, r.End),
		}
	}
	return conflicts, nil
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]string, error) {
	metadata := make(map[string]string)
	if len(data) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

func encodeParams(params map[string]float64) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule params: %w", err)
	}
	return data, nil
}

func decodeParams(data []byte) (map[string]float64, error) {
	params := make(map[string]float64)
	if len(data) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to decode rule params: %w", err)
	}
	return params, nil
}
