package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/executor"
	"github.com/planward/planward/internal/planner"
	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/internal/reviewer"
	sharedDomain "github.com/planward/planward/internal/shared/domain"
	"github.com/planward/planward/internal/shared/infrastructure/eventbus"
	"github.com/planward/planward/pkg/observability"
)

// Record labels for actions taken by the planning stage of a run.
const (
	plannerAgent = "planner"

	OpPlanBuild = "plan.build"
	OpPlanDefer = "plan.defer"
	OpRuleApply = "rule.apply"
)

// Collector produces snapshots of external state.
type Collector interface {
	Collect(ctx context.Context, window domain.TimeRange) (*domain.Snapshot, error)
	Changed(ctx context.Context, snapshot *domain.Snapshot) bool
	Remember(ctx context.Context, snapshot *domain.Snapshot)
}

// Planner builds plans from snapshots.
type Planner interface {
	BuildPlan(ctx context.Context, snapshot *domain.Snapshot, tasks []*domain.Task, rules []*domain.Rule) (*domain.Plan, error)
}

// Executor performs the side effects of a plan.
type Executor interface {
	Execute(ctx context.Context, plan *domain.Plan) (*executor.Summary, error)
}

// Reviewer runs the learning loop.
type Reviewer interface {
	Review(ctx context.Context) (*reviewer.Outcome, error)
}

// TaskWriter pushes local task state back to the external task store.
type TaskWriter interface {
	UpsertTask(ctx context.Context, externalID string, status domain.Status) error
}

// Config carries the cadence of the two loops. ReviewAtHour anchors the
// first review tick to the next occurrence of that local hour; a value
// outside [0,23] starts the review interval immediately.
type Config struct {
	CollectInterval time.Duration
	ReviewInterval  time.Duration
	ReviewAtHour    int
	PlanWindow      time.Duration
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Skipped bool // snapshot unchanged, nothing replanned
	Plan    *domain.Plan
	Summary *executor.Summary
}

// Runner chains collector, planner, and executor into the periodic pipeline
// and drives the reviewer on its own slower cadence. At most one pipeline
// run is in flight at a time; an overlapping trigger is rejected with
// ErrConcurrencyViolation instead of queueing.
type Runner struct {
	cfg        Config
	collector  Collector
	planner    Planner
	executor   Executor
	reviewer   Reviewer
	tasks      domain.TaskRepository
	plans      domain.PlanRepository
	rules      domain.RuleRepository
	records    domain.ExecutionRecordRepository
	publisher  eventbus.Publisher
	taskWriter TaskWriter
	logger     *slog.Logger
	metrics    observability.Metrics

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures the runner.
type Option func(*Runner)

// WithPublisher emits domain events after each stage commits.
func WithPublisher(publisher eventbus.Publisher) Option {
	return func(r *Runner) { r.publisher = publisher }
}

// WithTaskWriter reports completed tasks back to the external store.
func WithTaskWriter(writer TaskWriter) Option {
	return func(r *Runner) { r.taskWriter = writer }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics observability.Metrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// NewRunner creates a pipeline runner.
func NewRunner(
	cfg Config,
	collector Collector,
	plannerStage Planner,
	executorStage Executor,
	reviewerStage Reviewer,
	tasks domain.TaskRepository,
	plans domain.PlanRepository,
	rules domain.RuleRepository,
	records domain.ExecutionRecordRepository,
	opts ...Option,
) *Runner {
	r := &Runner{
		cfg:       cfg,
		collector: collector,
		planner:   plannerStage,
		executor:  executorStage,
		reviewer:  reviewerStage,
		tasks:     tasks,
		plans:     plans,
		rules:     rules,
		records:   records,
		publisher: eventbus.NewNoopPublisher(nil),
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the collect loop and the review loop. Both run until Stop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.collectLoop(ctx)

	if r.reviewer != nil && r.cfg.ReviewInterval > 0 {
		r.wg.Add(1)
		go r.reviewLoop(ctx)
	}

	r.logger.Info("pipeline started",
		"collect_interval", r.cfg.CollectInterval,
		"review_interval", r.cfg.ReviewInterval,
	)
}

// Stop shuts down both loops and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("pipeline stopped")
}

func (r *Runner) collectLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.CollectInterval)
	defer ticker.Stop()

	r.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

func (r *Runner) reviewLoop(ctx context.Context) {
	defer r.wg.Done()

	if wait := r.reviewDelay(time.Now()); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-time.After(wait):
			r.reviewAndLog(ctx)
		}
	}

	ticker := time.NewTicker(r.cfg.ReviewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reviewAndLog(ctx)
		}
	}
}

// reviewDelay returns how long to wait before the first review so it lands
// on the configured local hour. Zero when no hour is configured.
func (r *Runner) reviewDelay(now time.Time) time.Duration {
	hour := r.cfg.ReviewAtHour
	if hour < 0 || hour > 23 {
		return 0
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (r *Runner) reviewAndLog(ctx context.Context) {
	if _, err := r.reviewer.Review(ctx); err != nil && !errors.Is(err, domain.ErrReviewInProgress) {
		r.logger.Error("review cycle failed", "error", err)
	}
}

func (r *Runner) runAndLog(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrConcurrencyViolation) {
		r.logger.Error("pipeline run failed", "error", err)
	}
}

// RunOnce executes one collect-plan-execute cycle. A second call while a
// run is in flight returns ErrConcurrencyViolation immediately.
func (r *Runner) RunOnce(ctx context.Context) (*RunResult, error) {
	if !r.runMu.TryLock() {
		r.metrics.Counter(observability.MetricRunsSkipped, 1, observability.T("reason", "in_flight"))
		return nil, domain.ErrConcurrencyViolation
	}
	defer r.runMu.Unlock()

	ctx = observability.NewRunContext(ctx, observability.CorrelationIDFromContext(ctx))
	runStart := time.Now()
	r.metrics.Counter(observability.MetricRunsStarted, 1)

	logger := r.logger.With(observability.RunIDKey, observability.RunIDFromContext(ctx))

	window := domain.NewTimeRange(runStart.UTC(), runStart.UTC().Add(r.cfg.PlanWindow))

	snapshot, err := r.collector.Collect(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	if !r.collector.Changed(ctx, snapshot) {
		r.metrics.Counter(observability.MetricRunsSkipped, 1, observability.T("reason", "unchanged"))
		logger.Info("snapshot unchanged, skipping plan")
		return &RunResult{Skipped: true}, nil
	}

	if err := r.syncTasks(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("sync tasks: %w", err)
	}

	active, err := r.tasks.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}

	rules, err := r.rules.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	plan, err := r.planner.BuildPlan(ctx, snapshot, active, rules)
	if err != nil {
		r.appendRecord(ctx, domain.NewExecutionRecord(plannerAgent, OpPlanBuild, uuid.Nil, time.Since(runStart), false, err.Error()))
		return nil, fmt.Errorf("build plan: %w", err)
	}

	if err := r.plans.Save(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	r.publishEvents(ctx, plan.DomainEvents())
	plan.ClearDomainEvents()

	r.recordPlanOutcome(ctx, plan, rules, runStart)

	summary, err := r.executor.Execute(ctx, plan)
	if err != nil {
		return &RunResult{Plan: plan, Summary: summary}, fmt.Errorf("execute plan: %w", err)
	}

	r.pushTaskStatus(ctx, plan)
	r.collector.Remember(ctx, snapshot)

	logger.Info("pipeline run completed",
		"assignments", len(plan.Assignments()),
		"conflicts", len(plan.Conflicts()),
		"executed", summary.ActionsExecuted,
		"failed", summary.ActionsFailed,
		"duration_ms", time.Since(runStart).Milliseconds(),
	)

	return &RunResult{Plan: plan, Summary: summary}, nil
}

// RunReview triggers one review cycle outside the periodic schedule.
func (r *Runner) RunReview(ctx context.Context) (*reviewer.Outcome, error) {
	return r.reviewer.Review(ctx)
}

// syncTasks upserts the snapshot's external tasks into the local store.
// Known tasks refresh priority and deadline; unknown tasks are created with
// their scheduling metadata.
func (r *Runner) syncTasks(ctx context.Context, snapshot *domain.Snapshot) error {
	for _, ext := range snapshot.ExternalTasks() {
		existing, err := r.tasks.FindByExternalID(ctx, ext.ID)
		switch {
		case err == nil:
			if existing.Status().IsTerminal() {
				continue
			}
			if err := existing.SetPriority(ext.Priority); err != nil {
				return err
			}
			if err := existing.SetDeadline(ext.Deadline); err != nil {
				return err
			}
			if err := r.tasks.Save(ctx, existing); err != nil {
				return err
			}
		case errors.Is(err, domain.ErrNotFound):
			task, err := domain.NewTask(ext.Title, ext.Priority, ext.Deadline)
			if err != nil {
				return fmt.Errorf("create task for %s: %w", ext.ID, err)
			}
			if err := task.SetDescription(ext.Description); err != nil {
				return err
			}
			if err := task.SetMetadata("external_id", ext.ID); err != nil {
				return err
			}
			if len(ext.Tags) > 0 {
				if err := task.SetMetadata(planner.MetadataTags, strings.Join(ext.Tags, ",")); err != nil {
					return err
				}
			}
			if ext.Duration > 0 {
				minutes := int(ext.Duration / time.Minute)
				if err := task.SetMetadata(planner.MetadataDurationMinutes, strconv.Itoa(minutes)); err != nil {
					return err
				}
			}
			if err := r.tasks.Save(ctx, task); err != nil {
				return err
			}
			r.publishEvents(ctx, task.DomainEvents())
			task.ClearDomainEvents()
		default:
			return err
		}
	}
	return nil
}

// recordPlanOutcome leaves the audit trail the reviewer learns from: one
// record per deferred task carrying the conflict cause, and one record per
// rule the planner consulted this run.
func (r *Runner) recordPlanOutcome(ctx context.Context, plan *domain.Plan, rules []*domain.Rule, runStart time.Time) {
	for _, conflict := range plan.Conflicts() {
		record := domain.NewExecutionRecord(plannerAgent, OpPlanDefer, conflict.TaskID, 0, false, conflict.Detail).
			WithCause(conflict.Cause)
		r.appendRecord(ctx, record)
	}

	for _, rule := range rules {
		used := rule.LastUsed()
		if used == nil || used.Before(runStart) {
			continue
		}
		r.appendRecord(ctx, domain.NewExecutionRecord(plannerAgent, OpRuleApply, uuid.Nil, 0, true, "").WithRule(rule.ID()))
		if err := r.rules.Save(ctx, rule); err != nil {
			r.logger.Error("failed to save rule usage", "rule_id", rule.ID(), "error", err)
		}
	}
}

// pushTaskStatus mirrors the post-execution state of externally sourced
// tasks back to their store. Best effort, a failed update does not fail
// the run.
func (r *Runner) pushTaskStatus(ctx context.Context, plan *domain.Plan) {
	if r.taskWriter == nil {
		return
	}
	for _, taskID := range plan.TaskIDs() {
		task, err := r.tasks.FindByID(ctx, taskID)
		if err != nil {
			continue
		}
		externalID := task.MetadataValue("external_id")
		if externalID == "" || task.Status() == domain.StatusPending {
			continue
		}
		if err := r.taskWriter.UpsertTask(ctx, externalID, task.Status()); err != nil {
			r.logger.Warn("failed to push task status",
				"external_id", externalID,
				"status", task.Status().String(),
				"error", err,
			)
		}
	}
}

func (r *Runner) appendRecord(ctx context.Context, record domain.ExecutionRecord) {
	if err := r.records.Append(ctx, record); err != nil {
		r.logger.Error("failed to append execution record",
			"operation", record.Operation,
			"error", err,
		)
	}
}

func (r *Runner) publishEvents(ctx context.Context, events []sharedDomain.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := eventbus.PublishEvents(ctx, r.publisher, events); err != nil {
		r.logger.Warn("failed to publish events", "error", err)
	}
}
