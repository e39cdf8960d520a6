package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRule(t *testing.T) {
	rule, err := NewRule(RuleKindWeatherExclusion, "outdoor", map[string]float64{
		ParamRainThreshold: 0.6,
	}, 0.8)
	require.NoError(t, err)

	assert.Equal(t, RuleKindWeatherExclusion, rule.Kind())
	assert.Equal(t, "outdoor", rule.TaskTag())
	assert.InDelta(t, 0.8, rule.Confidence(), 1e-9)
	assert.InDelta(t, 0.6, rule.Param(ParamRainThreshold, 0), 1e-9)
	assert.InDelta(t, 0.5, rule.Param("missing", 0.5), 1e-9)
	assert.Nil(t, rule.LastUsed())
}

func TestNewRule_Validation(t *testing.T) {
	_, err := NewRule("bogus", "", nil, 0.5)
	assert.ErrorIs(t, err, ErrInvalidRuleKind)

	_, err = NewRule(RuleKindPriorityBoost, "", nil, 1.5)
	assert.ErrorIs(t, err, ErrConfidenceOutOfRange)

	_, err = NewRule(RuleKindPriorityBoost, "", nil, -0.1)
	assert.ErrorIs(t, err, ErrConfidenceOutOfRange)
}

func TestRule_AdjustConfidenceClamps(t *testing.T) {
	rule, err := NewRule(RuleKindPreferredWindow, "deep-work", map[string]float64{
		ParamWindowStartHours: 9,
		ParamWindowEndHours:   12,
	}, 0.95)
	require.NoError(t, err)

	rule.AdjustConfidence(0.2)
	assert.Equal(t, 1.0, rule.Confidence())

	rule.AdjustConfidence(-2)
	assert.Equal(t, 0.0, rule.Confidence())
}

func TestRule_AppliesTo(t *testing.T) {
	tagged, err := NewRule(RuleKindWeatherExclusion, "outdoor", nil, 0.9)
	require.NoError(t, err)

	assert.True(t, tagged.AppliesTo("outdoor"))
	assert.True(t, tagged.AppliesTo("errand", "outdoor"))
	assert.False(t, tagged.AppliesTo("indoor"))
	assert.False(t, tagged.AppliesTo())

	universal, err := NewRule(RuleKindPriorityBoost, "", nil, 0.9)
	require.NoError(t, err)
	assert.True(t, universal.AppliesTo())
	assert.True(t, universal.AppliesTo("anything"))
}

func TestRule_MarkUsed(t *testing.T) {
	rule, err := NewRule(RuleKindPriorityBoost, "", map[string]float64{ParamBoost: 1}, 0.7)
	require.NoError(t, err)

	now := time.Now()
	rule.MarkUsed(now)

	require.NotNil(t, rule.LastUsed())
	assert.WithinDuration(t, now.UTC(), *rule.LastUsed(), time.Second)
}

func TestRehydrateRule(t *testing.T) {
	original, err := NewRule(RuleKindWeatherExclusion, "outdoor", map[string]float64{ParamRainThreshold: 0.5}, 0.4)
	require.NoError(t, err)

	loaded := RehydrateRule(
		original.ID(),
		original.Kind(),
		original.TaskTag(),
		original.Params(),
		original.Confidence(),
		original.LastUsed(),
		original.CreatedAt(),
		original.UpdatedAt(),
	)

	assert.Equal(t, original.ID(), loaded.ID())
	assert.Equal(t, original.Kind(), loaded.Kind())
	assert.InDelta(t, original.Confidence(), loaded.Confidence(), 1e-9)
}
