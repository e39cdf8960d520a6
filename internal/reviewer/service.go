package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/planward/planward/internal/planning/domain"
	sharedDomain "github.com/planward/planward/internal/shared/domain"
	"github.com/planward/planward/internal/shared/infrastructure/eventbus"
	"github.com/planward/planward/pkg/observability"
)

// AgentName tags execution records written by this stage.
const AgentName = "reviewer"

// Outcome summarizes one review cycle.
type Outcome struct {
	RecordsReviewed int
	RulesAdjusted   int
	RulesProposed   int
}

// Config carries the learning parameters.
type Config struct {
	Lookback        time.Duration // how far back to read execution records
	ConfidenceStep  float64       // confidence delta per adjustment
	ProposalMinHits int           // recurring-cause threshold for new rules
}

// Service is the learning loop. It reads the execution records of the past
// period, shifts rule confidence toward observed outcomes, and proposes new
// rules for conflict causes that keep recurring. All changes of one cycle
// are committed atomically; a failed commit leaves the rule set untouched.
type Service struct {
	cfg       Config
	rules     domain.RuleRepository
	records   domain.ExecutionRecordRepository
	publisher eventbus.Publisher
	logger    *slog.Logger
	metrics   observability.Metrics

	inFlight atomic.Bool
}

// Option configures the reviewer service.
type Option func(*Service)

// WithPublisher emits a RulesUpdated event after each committed cycle.
func WithPublisher(publisher eventbus.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates a reviewer.
func NewService(cfg Config, rules domain.RuleRepository, records domain.ExecutionRecordRepository, opts ...Option) *Service {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.ConfidenceStep <= 0 {
		cfg.ConfidenceStep = 0.05
	}
	if cfg.ProposalMinHits <= 0 {
		cfg.ProposalMinHits = 3
	}

	s := &Service{
		cfg:     cfg,
		rules:   rules,
		records: records,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Review runs one learning cycle. Only one cycle may be in flight at a
// time; a concurrent call returns ErrReviewInProgress.
func (s *Service) Review(ctx context.Context) (*Outcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrReviewInProgress
	}
	defer s.inFlight.Store(false)

	timer := observability.StartTimer("reviewer.review").
		WithLogger(s.logger).
		WithMetrics(s.metrics)

	records, err := s.records.ListSince(ctx, time.Now().Add(-s.cfg.Lookback))
	if err != nil {
		timer.StopWithError(err)
		return nil, fmt.Errorf("load execution records: %w", err)
	}

	rules, err := s.rules.ListAll(ctx)
	if err != nil {
		timer.StopWithError(err)
		return nil, fmt.Errorf("load rules: %w", err)
	}

	updated := s.adjustConfidence(rules, records)
	proposed := s.proposeRules(rules, records)

	if len(updated) > 0 || len(proposed) > 0 {
		if err := s.rules.ApplyReview(ctx, updated, proposed); err != nil {
			timer.StopWithError(err)
			return nil, fmt.Errorf("commit review: %w", err)
		}
	}

	outcome := &Outcome{
		RecordsReviewed: len(records),
		RulesAdjusted:   len(updated),
		RulesProposed:   len(proposed),
	}

	s.metrics.Counter(observability.MetricRulesAdjusted, int64(outcome.RulesAdjusted))
	s.metrics.Counter(observability.MetricRulesProposed, int64(outcome.RulesProposed))

	if s.publisher != nil && (outcome.RulesAdjusted > 0 || outcome.RulesProposed > 0) {
		event := domain.NewRulesUpdated(uuid.New(), outcome.RulesAdjusted, outcome.RulesProposed)
		if err := eventbus.PublishEvents(ctx, s.publisher, []sharedDomain.DomainEvent{event}); err != nil {
			s.logger.Warn("failed to publish rules update", "error", err)
		}
	}

	timer.Stop()
	s.logger.Info("review cycle completed",
		"records", outcome.RecordsReviewed,
		"adjusted", outcome.RulesAdjusted,
		"proposed", outcome.RulesProposed,
	)

	return outcome, nil
}

// adjustConfidence shifts each rule toward the outcome of the actions it
// influenced. Rules without linked records this period are left alone.
func (s *Service) adjustConfidence(rules []*domain.Rule, records []domain.ExecutionRecord) []*domain.Rule {
	linked := make(map[uuid.UUID][2]int) // successes, failures
	for _, record := range records {
		if record.RuleID == uuid.Nil {
			continue
		}
		counts := linked[record.RuleID]
		if record.Success {
			counts[0]++
		} else {
			counts[1]++
		}
		linked[record.RuleID] = counts
	}

	var updated []*domain.Rule
	for _, rule := range rules {
		counts, ok := linked[rule.ID()]
		if !ok {
			continue
		}
		if counts[0] >= counts[1] {
			rule.AdjustConfidence(s.cfg.ConfidenceStep)
		} else {
			rule.AdjustConfidence(-s.cfg.ConfidenceStep)
		}
		updated = append(updated, rule)
	}
	return updated
}

// proposeRules drafts low-confidence rules for conflict causes that recur
// often enough, unless a rule of the matching kind already exists.
func (s *Service) proposeRules(rules []*domain.Rule, records []domain.ExecutionRecord) []*domain.Rule {
	hits := make(map[domain.ConflictCause]int)
	for _, record := range records {
		if record.Success || record.Cause == "" {
			continue
		}
		hits[record.Cause]++
	}

	existing := make(map[domain.RuleKind]bool, len(rules))
	for _, rule := range rules {
		existing[rule.Kind()] = true
	}

	var proposed []*domain.Rule
	for cause, count := range hits {
		if count < s.cfg.ProposalMinHits {
			continue
		}
		rule := s.draftRule(cause)
		if rule == nil || existing[rule.Kind()] {
			continue
		}
		existing[rule.Kind()] = true
		proposed = append(proposed, rule)

		s.logger.Info("rule proposed",
			"cause", string(cause),
			"hits", count,
			"kind", string(rule.Kind()),
		)
	}
	return proposed
}

// draftRule maps a recurring conflict cause to a starter rule. Proposals
// start at low confidence and have to earn their way up.
func (s *Service) draftRule(cause domain.ConflictCause) *domain.Rule {
	switch cause {
	case domain.CauseWeatherExclusion:
		rule, err := domain.NewRule(domain.RuleKindWeatherExclusion, "outdoor", map[string]float64{
			domain.ParamRainThreshold: 0.5,
		}, 0.3)
		if err != nil {
			return nil
		}
		return rule
	case domain.CauseOverlap, domain.CauseNoSlot, domain.CauseCalendarBusy:
		rule, err := domain.NewRule(domain.RuleKindPreferredWindow, "", map[string]float64{
			domain.ParamWindowStartHours: 8,
			domain.ParamWindowEndHours:   12,
		}, 0.3)
		if err != nil {
			return nil
		}
		return rule
	default:
		return nil
	}
}
