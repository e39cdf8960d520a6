package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/planward/planward/internal/shared/domain"
)

var (
	ErrInvalidRuleKind      = errors.New("invalid rule kind")
	ErrConfidenceOutOfRange = errors.New("rule confidence must be within [0,1]")
)

// RuleKind identifies the class of learned heuristic.
type RuleKind string

const (
	// RuleKindWeatherExclusion keeps matching tasks off the schedule when
	// rain probability exceeds the rule's threshold.
	RuleKindWeatherExclusion RuleKind = "weather_exclusion"
	// RuleKindPreferredWindow restricts matching tasks to a daily window.
	RuleKindPreferredWindow RuleKind = "preferred_window"
	// RuleKindPriorityBoost raises the effective priority of matching tasks.
	RuleKindPriorityBoost RuleKind = "priority_boost"
)

// IsValid returns true for known rule kinds.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindWeatherExclusion, RuleKindPreferredWindow, RuleKindPriorityBoost:
		return true
	default:
		return false
	}
}

// Rule parameter keys. Values are numeric; durations are hours from midnight.
const (
	ParamRainThreshold    = "rain_threshold"     // 0..1
	ParamWindowStartHours = "window_start_hours" // e.g. 9
	ParamWindowEndHours   = "window_end_hours"   // e.g. 12
	ParamBoost            = "boost"              // priority weight delta
)

// Rule is a learned heuristic guiding planning decisions. The reviewer is
// the sole writer of confidence; the planner only reads rules.
type Rule struct {
	sharedDomain.BaseAggregateRoot
	kind       RuleKind
	taskTag    string // metadata tag selecting the tasks this rule applies to; empty matches all
	params     map[string]float64
	confidence float64
	lastUsed   *time.Time
}

// NewRule creates a rule with the given kind, selector tag, and parameters.
func NewRule(kind RuleKind, taskTag string, params map[string]float64, confidence float64) (*Rule, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidRuleKind
	}
	if confidence < 0 || confidence > 1 {
		return nil, ErrConfidenceOutOfRange
	}

	r := &Rule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		kind:              kind,
		taskTag:           taskTag,
		params:            make(map[string]float64, len(params)),
		confidence:        confidence,
	}
	for k, v := range params {
		r.params[k] = v
	}
	return r, nil
}

func (r *Rule) Kind() RuleKind       { return r.kind }
func (r *Rule) TaskTag() string      { return r.taskTag }
func (r *Rule) Confidence() float64  { return r.confidence }
func (r *Rule) LastUsed() *time.Time { return r.lastUsed }

// Params returns a copy of the rule parameters.
func (r *Rule) Params() map[string]float64 {
	out := make(map[string]float64, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// Param returns a single parameter with a fallback default.
func (r *Rule) Param(key string, def float64) float64 {
	if v, ok := r.params[key]; ok {
		return v
	}
	return def
}

// AppliesTo reports whether the rule selects a task carrying the given tags.
// A rule without a tag applies to every task.
func (r *Rule) AppliesTo(tags ...string) bool {
	if r.taskTag == "" {
		return true
	}
	for _, tag := range tags {
		if tag == r.taskTag {
			return true
		}
	}
	return false
}

// MarkUsed records that the planner consulted this rule.
func (r *Rule) MarkUsed(at time.Time) {
	at = at.UTC()
	r.lastUsed = &at
	r.Touch()
}

// AdjustConfidence shifts the confidence by delta, clamped to [0,1].
// Only the reviewer calls this.
func (r *Rule) AdjustConfidence(delta float64) {
	r.confidence += delta
	if r.confidence < 0 {
		r.confidence = 0
	}
	if r.confidence > 1 {
		r.confidence = 1
	}
	r.Touch()
}

// RehydrateRule recreates a rule from persisted state.
func RehydrateRule(
	id uuid.UUID,
	kind RuleKind,
	taskTag string,
	params map[string]float64,
	confidence float64,
	lastUsed *time.Time,
	createdAt, updatedAt time.Time,
) *Rule {
	if params == nil {
		params = make(map[string]float64)
	}
	return &Rule{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)),
		kind:       kind,
		taskTag:    taskTag,
		params:     params,
		confidence: confidence,
		lastUsed:   lastUsed,
	}
}
