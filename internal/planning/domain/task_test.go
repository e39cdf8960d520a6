package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	deadline := time.Now().Add(24 * time.Hour)

	task, err := NewTask("Write report", PriorityHigh, &deadline)
	require.NoError(t, err)

	assert.Equal(t, "Write report", task.Title())
	assert.Equal(t, PriorityHigh, task.Priority())
	assert.Equal(t, StatusPending, task.Status())
	assert.NotNil(t, task.Deadline())
	assert.Nil(t, task.CompletedAt())
	assert.Len(t, task.DomainEvents(), 1)
}

func TestNewTask_EmptyTitle(t *testing.T) {
	_, err := NewTask("   ", PriorityLow, nil)
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestNewTask_InvalidPriority(t *testing.T) {
	_, err := NewTask("Something", Priority(42), nil)
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestTask_Lifecycle(t *testing.T) {
	task, err := NewTask("Task", PriorityMedium, nil)
	require.NoError(t, err)

	require.NoError(t, task.Start())
	assert.Equal(t, StatusInProgress, task.Status())

	// Start is idempotent
	require.NoError(t, task.Start())
	assert.Equal(t, StatusInProgress, task.Status())

	require.NoError(t, task.Complete())
	assert.Equal(t, StatusCompleted, task.Status())
	assert.NotNil(t, task.CompletedAt())
}

func TestTask_CompleteRequiresStart(t *testing.T) {
	task, err := NewTask("Task", PriorityMedium, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, task.Complete(), ErrTaskNotStarted)
}

func TestTask_CancelIsTerminal(t *testing.T) {
	task, err := NewTask("Task", PriorityLow, nil)
	require.NoError(t, err)

	require.NoError(t, task.Cancel())
	assert.Equal(t, StatusCancelled, task.Status())

	// cancel is idempotent, everything else is rejected
	assert.NoError(t, task.Cancel())
	assert.ErrorIs(t, task.Start(), ErrTaskCancelled)
	assert.ErrorIs(t, task.Complete(), ErrTaskCancelled)
	assert.ErrorIs(t, task.SetPriority(PriorityHigh), ErrTaskCancelled)
}

func TestTask_NoTransitionAfterComplete(t *testing.T) {
	task, err := NewTask("Task", PriorityHigh, nil)
	require.NoError(t, err)
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete())

	assert.ErrorIs(t, task.Start(), ErrTaskAlreadyComplete)
	assert.ErrorIs(t, task.Cancel(), ErrTaskAlreadyComplete)
	assert.ErrorIs(t, task.Complete(), ErrTaskAlreadyComplete)
}

func TestTask_Metadata(t *testing.T) {
	task, err := NewTask("Task", PriorityLow, nil)
	require.NoError(t, err)

	require.NoError(t, task.SetMetadata("external_id", "notion-42"))
	require.NoError(t, task.SetMetadata("tag", "outdoor"))

	assert.Equal(t, "notion-42", task.MetadataValue("external_id"))

	// returned map is a copy
	m := task.Metadata()
	m["tag"] = "indoor"
	assert.Equal(t, "outdoor", task.MetadataValue("tag"))
}

func TestRehydrateTask(t *testing.T) {
	original, err := NewTask("Task", PriorityHigh, nil)
	require.NoError(t, err)
	require.NoError(t, original.Start())

	loaded := RehydrateTask(
		original.ID(),
		original.Title(),
		original.Description(),
		original.Priority(),
		original.Deadline(),
		original.Status(),
		original.CompletedAt(),
		original.Metadata(),
		original.CreatedAt(),
		original.UpdatedAt(),
	)

	assert.Equal(t, original.ID(), loaded.ID())
	assert.Equal(t, StatusInProgress, loaded.Status())
	assert.Empty(t, loaded.DomainEvents())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{"pending", StatusPending},
		{"in_progress", StatusInProgress},
		{"completed", StatusCompleted},
		{"cancelled", StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := ParseStatus(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)
}
