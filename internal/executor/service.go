package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/pkg/observability"
)

// AgentName tags execution records written by this stage.
const AgentName = "executor"

// Operation names used in execution records.
const (
	OpCalendarCreate = "calendar.create"
	OpNotifySend     = "notify.send"
)

// CalendarWriter schedules plan assignments on the external calendar.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, assignment domain.Assignment) error
}

// Notifier delivers plan summaries and alerts to the user.
type Notifier interface {
	SendPlanSummary(ctx context.Context, plan *domain.Plan) error
}

// Summary aggregates the outcome of executing one plan.
type Summary struct {
	ActionsExecuted int
	ActionsFailed   int
	TasksCompleted  int
	Failures        []error
}

// Config carries the retry and timeout policy for actions.
type Config struct {
	ActionTimeout time.Duration // per attempt
	Retries       int           // total attempts per action
	Backoff       time.Duration // initial delay between attempts
	BackoffMax    time.Duration
}

// Service executes emitted plans against the external side effects. Each
// action runs with a per-attempt timeout, bounded retries, and a circuit
// breaker per target, and leaves one execution record regardless of outcome.
// A failing action never aborts the rest of the plan.
type Service struct {
	cfg      Config
	tasks    domain.TaskRepository
	records  domain.ExecutionRecordRepository
	calendar CalendarWriter
	notifier Notifier
	logger   *slog.Logger
	metrics  observability.Metrics

	calendarBreaker *gobreaker.CircuitBreaker[struct{}]
	notifyBreaker   *gobreaker.CircuitBreaker[struct{}]
}

// Option configures the executor service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates an executor. calendar and notifier may be nil when the
// corresponding integration is not configured; their actions are skipped.
func NewService(
	cfg Config,
	tasks domain.TaskRepository,
	records domain.ExecutionRecordRepository,
	calendar CalendarWriter,
	notifier Notifier,
	opts ...Option,
) *Service {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}

	s := &Service{
		cfg:             cfg,
		tasks:           tasks,
		records:         records,
		calendar:        calendar,
		notifier:        notifier,
		logger:          slog.Default(),
		metrics:         observability.NoopMetrics{},
		calendarBreaker: newBreaker("calendar"),
		notifyBreaker:   newBreaker("notify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// Execute performs the side effects of a plan: one calendar event per
// assignment, task state transitions, and a single summary notification.
// It returns an error only when the plan had actions and every one failed.
func (s *Service) Execute(ctx context.Context, plan *domain.Plan) (*Summary, error) {
	timer := observability.StartTimer("executor.execute").
		WithLogger(s.logger).
		WithMetrics(s.metrics)

	summary := &Summary{}

	for _, assignment := range plan.Assignments() {
		s.executeAssignment(ctx, assignment, summary)
	}

	if s.notifier != nil {
		record := s.runAction(ctx, OpNotifySend, uuid.Nil, s.notifyBreaker, func(ctx context.Context) error {
			return s.notifier.SendPlanSummary(ctx, plan)
		})
		s.appendRecord(ctx, record)
		s.track(record, summary)
	}

	if summary.ActionsExecuted == 0 && summary.ActionsFailed > 0 {
		err := fmt.Errorf("every action failed: %w", errors.Join(summary.Failures...))
		timer.StopWithError(err)
		return summary, err
	}

	timer.Stop()
	s.logger.Info("plan executed",
		"executed", summary.ActionsExecuted,
		"failed", summary.ActionsFailed,
		"completed_tasks", summary.TasksCompleted,
	)
	return summary, nil
}

func (s *Service) executeAssignment(ctx context.Context, assignment domain.Assignment, summary *Summary) {
	if s.calendar != nil {
		record := s.runAction(ctx, OpCalendarCreate, assignment.TaskID, s.calendarBreaker, func(ctx context.Context) error {
			return s.calendar.CreateEvent(ctx, assignment)
		})
		s.appendRecord(ctx, record)
		s.track(record, summary)
		if !record.Success {
			return
		}
	}

	if err := s.transitionTask(ctx, assignment); err != nil {
		s.logger.Error("task transition failed",
			"task_id", assignment.TaskID,
			"error", err,
		)
		summary.Failures = append(summary.Failures, err)
		return
	}
	if !assignment.Recurring {
		summary.TasksCompleted++
	}
}

// transitionTask starts the scheduled task and completes it unless the
// assignment is recurring. Recurring work stays in progress across runs.
func (s *Service) transitionTask(ctx context.Context, assignment domain.Assignment) error {
	task, err := s.tasks.FindByID(ctx, assignment.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", assignment.TaskID, err)
	}

	if err := task.Start(); err != nil {
		return fmt.Errorf("start task %s: %w", assignment.TaskID, err)
	}
	if !assignment.Recurring {
		if err := task.Complete(); err != nil {
			return fmt.Errorf("complete task %s: %w", assignment.TaskID, err)
		}
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return fmt.Errorf("save task %s: %w", assignment.TaskID, err)
	}
	return nil
}

// runAction executes fn with the per-attempt timeout, bounded retries with
// exponential backoff, and the target's circuit breaker.
func (s *Service) runAction(
	ctx context.Context,
	operation string,
	taskID uuid.UUID,
	breaker *gobreaker.CircuitBreaker[struct{}],
	fn func(ctx context.Context) error,
) domain.ExecutionRecord {
	start := time.Now()
	backoff := s.cfg.Backoff

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		_, err := breaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
			defer cancel()
			return struct{}{}, fn(attemptCtx)
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			break
		}
		if attempt < s.cfg.Retries {
			s.metrics.Counter(observability.MetricActionRetries, 1, observability.T("operation", operation))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff *= 2
			if s.cfg.BackoffMax > 0 && backoff > s.cfg.BackoffMax {
				backoff = s.cfg.BackoffMax
			}
		}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = (&domain.ActionFailedError{
			Operation: operation,
			TaskID:    taskID.String(),
			Attempts:  s.cfg.Retries,
			Err:       lastErr,
		}).Error()
	}

	return domain.NewExecutionRecord(AgentName, operation, taskID, time.Since(start), lastErr == nil, errMsg)
}

func (s *Service) appendRecord(ctx context.Context, record domain.ExecutionRecord) {
	if s.records == nil {
		return
	}
	if err := s.records.Append(ctx, record); err != nil {
		s.logger.Error("failed to append execution record",
			"operation", record.Operation,
			"error", err,
		)
	}
}

func (s *Service) track(record domain.ExecutionRecord, summary *Summary) {
	tags := []observability.Tag{observability.T("operation", record.Operation)}
	if record.Success {
		summary.ActionsExecuted++
		s.metrics.Counter(observability.MetricActionsExecuted, 1, tags...)
		return
	}
	summary.ActionsFailed++
	summary.Failures = append(summary.Failures, errors.New(record.Error))
	s.metrics.Counter(observability.MetricActionFailures, 1, tags...)
	s.logger.Warn("action failed",
		"operation", record.Operation,
		"task_id", record.TaskID,
		"error", record.Error,
	)
}
