package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/pkg/observability"
)

const (
	// MetadataTags holds the comma separated task tags in task metadata.
	MetadataTags = "tags"
	// MetadataDurationMinutes holds the estimated duration in task metadata.
	MetadataDurationMinutes = "duration_minutes"

	defaultTaskDuration = 30 * time.Minute
)

// Config carries the scheduling parameters of the engine.
type Config struct {
	WorkdayStart    time.Duration // offset from midnight
	WorkdayEnd      time.Duration // offset from midnight
	SlotGap         time.Duration // minimum gap between placed assignments
	ConfidenceFloor float64       // rules below this confidence are ignored
}

// Engine turns a snapshot, the active tasks, and the learned rules into a
// conflict-free plan. It holds no state between runs; everything it needs
// arrives as arguments.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics observability.Metrics
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics observability.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// NewEngine creates a planning engine.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidate is a task enriched with the scheduling attributes the engine
// derives from metadata and rules.
type candidate struct {
	task     *domain.Task
	duration time.Duration
	tags     []string
	weight   float64
	window   *dailyWindow // non-nil when a preferred_window rule applies
}

type dailyWindow struct {
	start time.Duration
	end   time.Duration
}

// BuildPlan produces a plan for the snapshot window. Tasks are placed by
// effective priority, then earliest deadline, then age. Calendar busy blocks
// and already placed assignments are never double booked; tasks that cannot
// be placed are deferred with a recorded conflict. A high priority task with
// a deadline inside the window that cannot be placed at all makes the run
// fail with ErrConflictUnresolved.
func (e *Engine) BuildPlan(ctx context.Context, snapshot *domain.Snapshot, tasks []*domain.Task, rules []*domain.Rule) (*domain.Plan, error) {
	timer := observability.StartTimer("planner.build_plan").
		WithLogger(e.logger).
		WithMetrics(e.metrics)

	window := snapshot.Window()
	active := e.applicableRules(rules)

	candidates := make([]candidate, 0, len(tasks))
	var conflicts []domain.Conflict

	for _, task := range tasks {
		if task.Status().IsTerminal() {
			continue
		}
		c := e.buildCandidate(task, active)

		if excluded, rule := e.weatherExcluded(snapshot, c, active); excluded {
			rule.MarkUsed(time.Now())
			conflicts = append(conflicts, domain.Conflict{
				TaskID:     task.ID(),
				Cause:      domain.CauseWeatherExclusion,
				Resolution: domain.ResolutionDeferred,
				Detail:     fmt.Sprintf("rain probability %.2f over threshold", snapshot.Weather().RainProbability),
				Slot:       window,
			})
			continue
		}

		candidates = append(candidates, c)
	}

	sortCandidates(candidates)

	busy := snapshot.BusyBlocks()
	occupied := make([]domain.TimeRange, len(busy))
	copy(occupied, busy)

	var (
		assignments []domain.Assignment
		unresolved  bool
	)

	for _, c := range candidates {
		slot, ok := e.findSlot(window, occupied, c)
		if ok {
			assignments = append(assignments, domain.Assignment{
				TaskID: c.task.ID(),
				Title:  c.task.Title(),
				Slot:   slot,
			})
			occupied = insertSorted(occupied, slot)
			continue
		}

		conflict := e.deferral(window, busy, assignments, c)
		if conflict.Resolution == domain.ResolutionUnresolved {
			unresolved = true
		}
		conflicts = append(conflicts, conflict)
	}

	e.metrics.Counter(observability.MetricConflictsDetected, int64(len(conflicts)))
	deferred := 0
	for _, c := range conflicts {
		if c.Resolution == domain.ResolutionDeferred {
			deferred++
		}
	}
	e.metrics.Counter(observability.MetricTasksDeferred, int64(deferred))

	if unresolved {
		err := fmt.Errorf("%d assignments placed, hard conflict remains: %w", len(assignments), domain.ErrConflictUnresolved)
		timer.StopWithError(err)
		return nil, err
	}

	plan, err := domain.NewPlan(window, assignments, conflicts)
	if err != nil {
		timer.StopWithError(err)
		return nil, err
	}

	e.metrics.Counter(observability.MetricPlansEmitted, 1)
	timer.Stop()

	e.logger.Info("plan built",
		"assignments", len(assignments),
		"conflicts", len(conflicts),
		"window_start", window.Start,
		"window_end", window.End,
	)

	return plan, nil
}

// applicableRules filters out rules below the confidence floor.
func (e *Engine) applicableRules(rules []*domain.Rule) []*domain.Rule {
	out := make([]*domain.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Confidence() >= e.cfg.ConfidenceFloor {
			out = append(out, rule)
		}
	}
	return out
}

func (e *Engine) buildCandidate(task *domain.Task, rules []*domain.Rule) candidate {
	c := candidate{
		task:     task,
		duration: defaultTaskDuration,
		weight:   float64(task.Priority().Weight()),
	}

	if v := task.MetadataValue(MetadataDurationMinutes); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			c.duration = time.Duration(minutes) * time.Minute
		}
	}
	if v := task.MetadataValue(MetadataTags); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				c.tags = append(c.tags, tag)
			}
		}
	}

	for _, rule := range rules {
		if !rule.AppliesTo(c.tags...) {
			continue
		}
		switch rule.Kind() {
		case domain.RuleKindPriorityBoost:
			c.weight += rule.Param(domain.ParamBoost, 0)
			rule.MarkUsed(time.Now())
		case domain.RuleKindPreferredWindow:
			c.window = &dailyWindow{
				start: time.Duration(rule.Param(domain.ParamWindowStartHours, 0) * float64(time.Hour)),
				end:   time.Duration(rule.Param(domain.ParamWindowEndHours, 24) * float64(time.Hour)),
			}
			rule.MarkUsed(time.Now())
		}
	}

	return c
}

func (e *Engine) weatherExcluded(snapshot *domain.Snapshot, c candidate, rules []*domain.Rule) (bool, *domain.Rule) {
	weather := snapshot.Weather()
	if weather == nil {
		return false, nil
	}
	for _, rule := range rules {
		if rule.Kind() != domain.RuleKindWeatherExclusion {
			continue
		}
		if !rule.AppliesTo(c.tags...) {
			continue
		}
		if weather.RainProbability >= rule.Param(domain.ParamRainThreshold, 0.5) {
			return true, rule
		}
	}
	return false, nil
}

// sortCandidates orders by effective weight descending, then earliest
// deadline (tasks without a deadline last), then creation time.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		ad, bd := a.task.Deadline(), b.task.Deadline()
		switch {
		case ad != nil && bd != nil && !ad.Equal(*bd):
			return ad.Before(*bd)
		case ad != nil && bd == nil:
			return true
		case ad == nil && bd != nil:
			return false
		}
		return a.task.CreatedAt().Before(b.task.CreatedAt())
	})
}

// findSlot returns the earliest free slot for the candidate inside the plan
// window, respecting workday bounds, the candidate's preferred daily window,
// and the minimum gap around occupied ranges.
func (e *Engine) findSlot(window domain.TimeRange, occupied []domain.TimeRange, c candidate) (domain.TimeRange, bool) {
	dayStart, dayEnd := e.cfg.WorkdayStart, e.cfg.WorkdayEnd
	if c.window != nil {
		if c.window.start > dayStart {
			dayStart = c.window.start
		}
		if c.window.end < dayEnd {
			dayEnd = c.window.end
		}
	}
	if dayEnd-dayStart < c.duration {
		return domain.TimeRange{}, false
	}

	for day := window.Start.Truncate(24 * time.Hour); day.Before(window.End); day = day.Add(24 * time.Hour) {
		from := day.Add(dayStart)
		until := day.Add(dayEnd)
		if from.Before(window.Start) {
			from = window.Start
		}
		if until.After(window.End) {
			until = window.End
		}
		if !from.Before(until) {
			continue
		}

		if slot, ok := fitInDay(occupied, from, until, c.duration, e.cfg.SlotGap); ok {
			return slot, true
		}
	}

	return domain.TimeRange{}, false
}

// fitInDay scans the gaps between occupied ranges within [from, until].
func fitInDay(occupied []domain.TimeRange, from, until time.Time, duration, gap time.Duration) (domain.TimeRange, bool) {
	cursor := from
	for _, occ := range occupied {
		if !occ.End.After(cursor) {
			continue
		}
		if !occ.Start.Before(until) {
			break
		}
		if occ.Start.Sub(cursor) >= duration {
			return domain.NewTimeRange(cursor, cursor.Add(duration)), true
		}
		next := occ.End.Add(gap)
		if next.After(cursor) {
			cursor = next
		}
	}
	if until.Sub(cursor) >= duration {
		return domain.NewTimeRange(cursor, cursor.Add(duration)), true
	}
	return domain.TimeRange{}, false
}

// deferral classifies why the candidate could not be placed. When the task
// would not fit even with an empty schedule (calendar blocks alone cover its
// allowed time) the cause is the calendar; otherwise other assignments won
// the contest. A high priority task with a deadline inside the window stays
// unresolved and fails the run.
func (e *Engine) deferral(window domain.TimeRange, busy []domain.TimeRange, assignments []domain.Assignment, c candidate) domain.Conflict {
	conflict := domain.Conflict{
		TaskID:     c.task.ID(),
		Resolution: domain.ResolutionDeferred,
		Slot:       window,
	}

	if _, fitsAroundCalendar := e.findSlot(window, busy, c); fitsAroundCalendar {
		conflict.Cause = domain.CauseOverlap
		conflict.Detail = "no slot left after higher priority assignments"
		if len(assignments) > 0 {
			conflict.WinnerID = assignments[len(assignments)-1].TaskID
		}
	} else if len(busy) > 0 {
		conflict.Cause = domain.CauseCalendarBusy
		conflict.Detail = "calendar busy blocks cover the available time"
	} else {
		conflict.Cause = domain.CauseNoSlot
		conflict.Detail = "task does not fit in the planning window"
	}

	deadline := c.task.Deadline()
	if c.task.Priority() == domain.PriorityHigh && deadline != nil && window.Contains(*deadline) {
		conflict.Resolution = domain.ResolutionUnresolved
	}

	return conflict
}

func insertSorted(occupied []domain.TimeRange, slot domain.TimeRange) []domain.TimeRange {
	i := sort.Search(len(occupied), func(i int) bool {
		return occupied[i].Start.After(slot.Start)
	})
	occupied = append(occupied, domain.TimeRange{})
	copy(occupied[i+1:], occupied[i:])
	occupied[i] = slot
	return occupied
}
