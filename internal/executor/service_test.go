package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planward/planward/internal/planning/domain"
)

type memoryTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemoryTaskRepo(tasks ...*domain.Task) *memoryTaskRepo {
	repo := &memoryTaskRepo{tasks: make(map[uuid.UUID]*domain.Task)}
	for _, task := range tasks {
		repo.tasks[task.ID()] = task
	}
	return repo
}

func (r *memoryTaskRepo) Save(_ context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID()] = task
	return nil
}

func (r *memoryTaskRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func (r *memoryTaskRepo) FindByExternalID(context.Context, string) (*domain.Task, error) {
	return nil, domain.ErrNotFound
}

func (r *memoryTaskRepo) ListActive(context.Context) ([]*domain.Task, error) { return nil, nil }

func (r *memoryTaskRepo) ListByStatus(context.Context, domain.Status) ([]*domain.Task, error) {
	return nil, nil
}

type memoryRecordRepo struct {
	mu      sync.Mutex
	records []domain.ExecutionRecord
}

func (r *memoryRecordRepo) Append(_ context.Context, record domain.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRecordRepo) ListSince(context.Context, time.Time) ([]domain.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), r.records...), nil
}

type fakeCalendar struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]int
	failFor  map[uuid.UUID]int // fail the first N attempts per task
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		attempts: make(map[uuid.UUID]int),
		failFor:  make(map[uuid.UUID]int),
	}
}

func (f *fakeCalendar) CreateEvent(_ context.Context, assignment domain.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[assignment.TaskID]++
	if f.attempts[assignment.TaskID] <= f.failFor[assignment.TaskID] {
		return errors.New("caldav unavailable")
	}
	return nil
}

type fakeNotifier struct {
	sent int
	err  error
}

func (f *fakeNotifier) SendPlanSummary(context.Context, *domain.Plan) error {
	if f.err != nil {
		return f.err
	}
	f.sent++
	return nil
}

func fastConfig() Config {
	return Config{
		ActionTimeout: time.Second,
		Retries:       3,
		Backoff:       time.Millisecond,
		BackoffMax:    5 * time.Millisecond,
	}
}

func buildPlan(t *testing.T, tasks ...*domain.Task) *domain.Plan {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := domain.NewTimeRange(start, start.Add(8*time.Hour))

	assignments := make([]domain.Assignment, len(tasks))
	for i, task := range tasks {
		assignments[i] = domain.Assignment{
			TaskID: task.ID(),
			Title:  task.Title(),
			Slot:   domain.NewTimeRange(start.Add(time.Duration(i)*time.Hour), start.Add(time.Duration(i)*time.Hour+30*time.Minute)),
		}
	}

	plan, err := domain.NewPlan(window, assignments, nil)
	require.NoError(t, err)
	return plan
}

func TestService_Execute(t *testing.T) {
	task, err := domain.NewTask("Write report", domain.PriorityHigh, nil)
	require.NoError(t, err)

	repo := newMemoryTaskRepo(task)
	records := &memoryRecordRepo{}
	calendar := newFakeCalendar()
	notifier := &fakeNotifier{}

	svc := NewService(fastConfig(), repo, records, calendar, notifier)

	summary, err := svc.Execute(context.Background(), buildPlan(t, task))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ActionsExecuted) // calendar + notification
	assert.Equal(t, 0, summary.ActionsFailed)
	assert.Equal(t, 1, summary.TasksCompleted)
	assert.Equal(t, 1, notifier.sent)

	stored, err := repo.FindByID(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status())

	require.Len(t, records.records, 2)
	assert.Equal(t, OpCalendarCreate, records.records[0].Operation)
	assert.True(t, records.records[0].Success)
	assert.Equal(t, AgentName, records.records[0].Agent)
	assert.Equal(t, OpNotifySend, records.records[1].Operation)
}

func TestService_ExecutePartialFailure(t *testing.T) {
	var tasks []*domain.Task
	for _, title := range []string{"One", "Two", "Three"} {
		task, err := domain.NewTask(title, domain.PriorityMedium, nil)
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	repo := newMemoryTaskRepo(tasks...)
	records := &memoryRecordRepo{}
	calendar := newFakeCalendar()
	calendar.failFor[tasks[1].ID()] = 10 // exhausts all retries

	svc := NewService(fastConfig(), repo, records, calendar, &fakeNotifier{})

	summary, err := svc.Execute(context.Background(), buildPlan(t, tasks...))
	require.NoError(t, err) // partial failure is not a run failure

	assert.Equal(t, 3, summary.ActionsExecuted) // two calendar events + notification
	assert.Equal(t, 1, summary.ActionsFailed)
	assert.Equal(t, 2, summary.TasksCompleted)

	// the failed task never transitioned
	failed, err := repo.FindByID(context.Background(), tasks[1].ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, failed.Status())

	// the failure is on record with the attempt count
	var failureRecord *domain.ExecutionRecord
	for i := range records.records {
		if !records.records[i].Success {
			failureRecord = &records.records[i]
		}
	}
	require.NotNil(t, failureRecord)
	assert.Equal(t, tasks[1].ID(), failureRecord.TaskID)
	assert.Contains(t, failureRecord.Error, "after 3 attempts")
}

func TestService_ExecuteRetriesTransientFailure(t *testing.T) {
	task, err := domain.NewTask("Flaky", domain.PriorityLow, nil)
	require.NoError(t, err)

	repo := newMemoryTaskRepo(task)
	calendar := newFakeCalendar()
	calendar.failFor[task.ID()] = 2 // succeeds on the third attempt

	svc := NewService(fastConfig(), repo, &memoryRecordRepo{}, calendar, nil)

	summary, err := svc.Execute(context.Background(), buildPlan(t, task))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ActionsExecuted)
	assert.Equal(t, 3, calendar.attempts[task.ID()])
}

func TestService_ExecuteAllActionsFail(t *testing.T) {
	task, err := domain.NewTask("Doomed", domain.PriorityLow, nil)
	require.NoError(t, err)

	calendar := newFakeCalendar()
	calendar.failFor[task.ID()] = 10

	svc := NewService(fastConfig(), newMemoryTaskRepo(task), &memoryRecordRepo{}, calendar, &fakeNotifier{err: errors.New("telegram down")})

	summary, err := svc.Execute(context.Background(), buildPlan(t, task))
	require.Error(t, err)
	assert.Equal(t, 0, summary.ActionsExecuted)
	assert.Equal(t, 2, summary.ActionsFailed)
}

func TestService_ExecuteRecurringStaysInProgress(t *testing.T) {
	task, err := domain.NewTask("Daily review", domain.PriorityMedium, nil)
	require.NoError(t, err)

	repo := newMemoryTaskRepo(task)
	svc := NewService(fastConfig(), repo, &memoryRecordRepo{}, newFakeCalendar(), nil)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := domain.NewTimeRange(start, start.Add(8*time.Hour))
	plan, err := domain.NewPlan(window, []domain.Assignment{{
		TaskID:    task.ID(),
		Title:     task.Title(),
		Slot:      domain.NewTimeRange(start, start.Add(30*time.Minute)),
		Recurring: true,
	}}, nil)
	require.NoError(t, err)

	summary, err := svc.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TasksCompleted)

	stored, err := repo.FindByID(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status())
}
