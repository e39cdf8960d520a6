package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planward/planward/internal/executor"
	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/internal/reviewer"
	"github.com/planward/planward/pkg/observability"
)

type fakeCollector struct {
	snapshot   *domain.Snapshot
	collectErr error
	changed    bool
	remembered int
	block      chan struct{} // when set, Collect waits until closed
}

func (c *fakeCollector) Collect(ctx context.Context, window domain.TimeRange) (*domain.Snapshot, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.collectErr != nil {
		return nil, c.collectErr
	}
	if c.snapshot == nil {
		c.snapshot = domain.NewSnapshot(window, nil, nil, nil, map[domain.Source]domain.SourceState{
			domain.SourceCalendar: {Fresh: true},
		})
	}
	return c.snapshot, nil
}

func (c *fakeCollector) Changed(context.Context, *domain.Snapshot) bool { return c.changed }

func (c *fakeCollector) Remember(context.Context, *domain.Snapshot) { c.remembered++ }

type fakePlanner struct {
	mu      sync.Mutex
	plan    *domain.Plan
	err     error
	markers []*domain.Rule // rules to MarkUsed when the planner runs
	calls   int
}

func (p *fakePlanner) BuildPlan(_ context.Context, _ *domain.Snapshot, _ []*domain.Task, _ []*domain.Rule) (*domain.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	for _, rule := range p.markers {
		rule.MarkUsed(time.Now())
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

func (p *fakePlanner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeExecutor struct {
	summary *executor.Summary
	err     error
	calls   int
}

func (e *fakeExecutor) Execute(context.Context, *domain.Plan) (*executor.Summary, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.summary, nil
}

type fakeReviewer struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeReviewer) Review(context.Context) (*reviewer.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return &reviewer.Outcome{}, nil
}

func (r *fakeReviewer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memoryTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemoryTaskRepo() *memoryTaskRepo {
	return &memoryTaskRepo{tasks: make(map[uuid.UUID]*domain.Task)}
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

func (r *memoryTaskRepo) FindByExternalID(_ context.Context, externalID string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		if task.MetadataValue("external_id") == externalID {
			return task, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryTaskRepo) ListActive(_ context.Context) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, task := range r.tasks {
		if !task.Status().IsTerminal() {
			out = append(out, task)
		}
	}
	return out, nil
}

func (r *memoryTaskRepo) ListByStatus(_ context.Context, status domain.Status) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Task
	for _, task := range r.tasks {
		if task.Status() == status {
			out = append(out, task)
		}
	}
	return out, nil
}

type memoryPlanRepo struct {
	mu    sync.Mutex
	plans []*domain.Plan
}

func (r *memoryPlanRepo) Save(_ context.Context, plan *domain.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
	return nil
}

func (r *memoryPlanRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, plan := range r.plans {
		if plan.ID() == id {
			return plan, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryPlanRepo) Latest(_ context.Context) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.plans) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.plans[len(r.plans)-1], nil
}

type memoryRuleRepo struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*domain.Rule
}

func newMemoryRuleRepo(rules ...*domain.Rule) *memoryRuleRepo {
	repo := &memoryRuleRepo{rules: make(map[uuid.UUID]*domain.Rule)}
	for _, rule := range rules {
		repo.rules[rule.ID()] = rule
	}
	return repo
}

func (r *memoryRuleRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

func (r *memoryRuleRepo) ListAll(context.Context) ([]*domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (r *memoryRuleRepo) Save(_ context.Context, rule *domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID()] = rule
	return nil
}

func (r *memoryRuleRepo) ApplyReview(_ context.Context, updated, proposed []*domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range updated {
		r.rules[rule.ID()] = rule
	}
	for _, rule := range proposed {
		r.rules[rule.ID()] = rule
	}
	return nil
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

func (r *memoryRecordRepo) ListSince(_ context.Context, since time.Time) ([]domain.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, record := range r.records {
		if !record.Timestamp.Before(since) {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memoryRecordRepo) byOperation(op string) []domain.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, record := range r.records {
		if record.Operation == op {
			out = append(out, record)
		}
	}
	return out
}

type fixture struct {
	runner    *Runner
	collector *fakeCollector
	planner   *fakePlanner
	executor  *fakeExecutor
	reviewer  *fakeReviewer
	tasks     *memoryTaskRepo
	plans     *memoryPlanRepo
	rules     *memoryRuleRepo
	records   *memoryRecordRepo
	metrics   *observability.InMemoryMetrics
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	now := time.Now().UTC()
	window := domain.NewTimeRange(now, now.Add(24*time.Hour))
	plan, err := domain.NewPlan(window, nil, nil)
	require.NoError(t, err)
	plan.ClearDomainEvents()

	f := &fixture{
		collector: &fakeCollector{changed: true},
		planner:   &fakePlanner{plan: plan},
		executor:  &fakeExecutor{summary: &executor.Summary{}},
		reviewer:  &fakeReviewer{},
		tasks:     newMemoryTaskRepo(),
		plans:     &memoryPlanRepo{},
		rules:     newMemoryRuleRepo(),
		records:   &memoryRecordRepo{},
		metrics:   observability.NewInMemoryMetrics(),
	}
	f.runner = NewRunner(cfg, f.collector, f.planner, f.executor, f.reviewer,
		f.tasks, f.plans, f.rules, f.records,
		WithMetrics(f.metrics),
	)
	return f
}

func defaultConfig() Config {
	return Config{
		CollectInterval: time.Hour,
		ReviewInterval:  time.Hour,
		ReviewAtHour:    -1,
		PlanWindow:      24 * time.Hour,
	}
}

func TestRunner_RunOnce(t *testing.T) {
	f := newFixture(t, defaultConfig())

	result, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Skipped)
	assert.NotNil(t, result.Plan)
	assert.Equal(t, 1, f.planner.calls)
	assert.Equal(t, 1, f.executor.calls)
	assert.Equal(t, 1, f.collector.remembered)
	assert.Len(t, f.plans.plans, 1)
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricRunsStarted))
}

func TestRunner_RunOnceSkipsUnchangedSnapshot(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.collector.changed = false

	result, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, 0, f.planner.calls)
	assert.Equal(t, 0, f.executor.calls)
	assert.Equal(t, 0, f.collector.remembered)
	assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricRunsSkipped, observability.T("reason", "unchanged")))
}

func TestRunner_RunOnceRejectsOverlappingRun(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.collector.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		f.runner.RunOnce(context.Background())
		close(done)
	}()

	<-started
	// give the first run a moment to take the lock
	require.Eventually(t, func() bool {
		_, err := f.runner.RunOnce(context.Background())
		return errors.Is(err, domain.ErrConcurrencyViolation)
	}, time.Second, 5*time.Millisecond)

	close(f.collector.block)
	<-done

	// once the first run finished the lock is free again
	_, err := f.runner.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunner_RunOnceSyncsExternalTasks(t *testing.T) {
	f := newFixture(t, defaultConfig())

	now := time.Now().UTC()
	window := domain.NewTimeRange(now, now.Add(24*time.Hour))
	deadline := now.Add(8 * time.Hour)
	f.collector.snapshot = domain.NewSnapshot(window, nil, []domain.ExternalTask{
		{
			ID:       "ext-1",
			Title:    "Write report",
			Priority: domain.PriorityHigh,
			Deadline: &deadline,
			Duration: 45 * time.Minute,
			Tags:     []string{"deep-work", "writing"},
		},
	}, nil, map[domain.Source]domain.SourceState{domain.SourceTasks: {Fresh: true}})

	_, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	task, err := f.tasks.FindByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "Write report", task.Title())
	assert.Equal(t, domain.PriorityHigh, task.Priority())
	assert.Equal(t, "deep-work,writing", task.MetadataValue("tags"))
	assert.Equal(t, "45", task.MetadataValue("duration_minutes"))

	// a second run with lower priority updates the existing task in place
	f.collector.snapshot = domain.NewSnapshot(window, nil, []domain.ExternalTask{
		{ID: "ext-1", Title: "Write report", Priority: domain.PriorityLow},
	}, nil, map[domain.Source]domain.SourceState{domain.SourceTasks: {Fresh: true}})

	_, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	updated, err := f.tasks.FindByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID(), updated.ID())
	assert.Equal(t, domain.PriorityLow, updated.Priority())
}

type fakeTaskWriter struct {
	mu      sync.Mutex
	updates map[string]domain.Status
}

func (w *fakeTaskWriter) UpsertTask(_ context.Context, externalID string, status domain.Status) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updates == nil {
		w.updates = make(map[string]domain.Status)
	}
	w.updates[externalID] = status
	return nil
}

func TestRunner_RunOncePushesTaskStatus(t *testing.T) {
	f := newFixture(t, defaultConfig())
	writer := &fakeTaskWriter{}
	f.runner.taskWriter = writer

	task, err := domain.NewTask("Write report", domain.PriorityMedium, nil)
	require.NoError(t, err)
	require.NoError(t, task.SetMetadata("external_id", "ext-9"))
	require.NoError(t, task.Start())
	require.NoError(t, task.Complete())
	require.NoError(t, f.tasks.Save(context.Background(), task))

	now := time.Now().UTC()
	window := domain.NewTimeRange(now, now.Add(24*time.Hour))
	plan, err := domain.NewPlan(window, []domain.Assignment{
		{TaskID: task.ID(), Title: task.Title(), Slot: domain.NewTimeRange(now, now.Add(time.Hour))},
	}, nil)
	require.NoError(t, err)
	plan.ClearDomainEvents()
	f.planner.plan = plan

	_, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, writer.updates["ext-9"])
}

func TestRunner_RunOnceRecordsDeferrals(t *testing.T) {
	f := newFixture(t, defaultConfig())

	now := time.Now().UTC()
	window := domain.NewTimeRange(now, now.Add(24*time.Hour))
	deferred := uuid.New()
	plan, err := domain.NewPlan(window, nil, []domain.Conflict{
		{
			TaskID:     deferred,
			Cause:      domain.CauseNoSlot,
			Resolution: domain.ResolutionDeferred,
			Detail:     "no free slot in window",
		},
	})
	require.NoError(t, err)
	plan.ClearDomainEvents()
	f.planner.plan = plan

	_, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	records := f.records.byOperation(OpPlanDefer)
	require.Len(t, records, 1)
	assert.Equal(t, deferred, records[0].TaskID)
	assert.Equal(t, domain.CauseNoSlot, records[0].Cause)
	assert.False(t, records[0].Success)
}

func TestRunner_RunOnceRecordsRuleUsage(t *testing.T) {
	f := newFixture(t, defaultConfig())

	rule, err := domain.NewRule(domain.RuleKindPriorityBoost, "urgent", map[string]float64{domain.ParamBoost: 1}, 0.8)
	require.NoError(t, err)
	require.NoError(t, f.rules.Save(context.Background(), rule))
	f.planner.markers = []*domain.Rule{rule}

	_, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	records := f.records.byOperation(OpRuleApply)
	require.Len(t, records, 1)
	assert.Equal(t, rule.ID(), records[0].RuleID)
	assert.True(t, records[0].Success)
}

func TestRunner_RunOnceRecordsPlannerFailure(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.planner.err = domain.ErrConflictUnresolved

	_, err := f.runner.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrConflictUnresolved)

	records := f.records.byOperation(OpPlanBuild)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, 0, f.executor.calls)
}

func TestRunner_RunOnceCollectFailure(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.collector.collectErr = errors.New("caldav unreachable")

	_, err := f.runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caldav unreachable")
	assert.Equal(t, 0, f.planner.calls)
}

func TestRunner_ReviewDelayAnchorsToHour(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReviewAtHour = 22
	f := newFixture(t, cfg)

	morning := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 12*time.Hour+30*time.Minute, f.runner.reviewDelay(morning))

	// already past the anchor, wait until tomorrow
	evening := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 23*time.Hour, f.runner.reviewDelay(evening))

	// exactly on the anchor rolls to the next day
	onTheHour := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 24*time.Hour, f.runner.reviewDelay(onTheHour))
}

func TestRunner_ReviewDelayDisabled(t *testing.T) {
	f := newFixture(t, defaultConfig())

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	assert.Zero(t, f.runner.reviewDelay(now))

	cfg := defaultConfig()
	cfg.ReviewAtHour = 24
	f = newFixture(t, cfg)
	assert.Zero(t, f.runner.reviewDelay(now))
}

func TestRunner_StartRunsBothLoops(t *testing.T) {
	cfg := Config{
		CollectInterval: 20 * time.Millisecond,
		ReviewInterval:  20 * time.Millisecond,
		ReviewAtHour:    -1,
		PlanWindow:      24 * time.Hour,
	}
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.runner.Start(ctx)

	require.Eventually(t, func() bool {
		return f.planner.callCount() >= 2 && f.reviewer.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	f.runner.Stop()
}
