package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planward/planward/internal/planning/domain"
	"github.com/planward/planward/internal/shared/infrastructure/database/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteTaskRepository_SaveAndFind(t *testing.T) {
	repo := NewSQLiteTaskRepository(testDB(t))
	ctx := context.Background()

	deadline := time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)
	task, err := domain.NewTask("Prepare quarterly summary", domain.PriorityHigh, &deadline)
	require.NoError(t, err)
	require.NoError(t, task.SetMetadata("external_id", "store-17"))
	require.NoError(t, task.SetMetadata("tag", "deep-work"))

	require.NoError(t, repo.Save(ctx, task))

	loaded, err := repo.FindByID(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, task.Title(), loaded.Title())
	assert.Equal(t, domain.PriorityHigh, loaded.Priority())
	assert.Equal(t, domain.StatusPending, loaded.Status())
	require.NotNil(t, loaded.Deadline())
	assert.WithinDuration(t, deadline, *loaded.Deadline(), time.Second)
	assert.Equal(t, "deep-work", loaded.MetadataValue("tag"))

	byExternal, err := repo.FindByExternalID(ctx, "store-17")
	require.NoError(t, err)
	assert.Equal(t, task.ID(), byExternal.ID())
}

func TestSQLiteTaskRepository_SaveIsUpsert(t *testing.T) {
	repo := NewSQLiteTaskRepository(testDB(t))
	ctx := context.Background()

	task, err := domain.NewTask("Water plants", domain.PriorityLow, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, task))

	require.NoError(t, task.Start())
	require.NoError(t, repo.Save(ctx, task))

	loaded, err := repo.FindByID(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, loaded.Status())
}

func TestSQLiteTaskRepository_NotFound(t *testing.T) {
	repo := NewSQLiteTaskRepository(testDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteTaskRepository_ListActive(t *testing.T) {
	repo := NewSQLiteTaskRepository(testDB(t))
	ctx := context.Background()

	pending, err := domain.NewTask("Pending", domain.PriorityMedium, nil)
	require.NoError(t, err)
	started, err := domain.NewTask("Started", domain.PriorityMedium, nil)
	require.NoError(t, err)
	require.NoError(t, started.Start())
	done, err := domain.NewTask("Done", domain.PriorityMedium, nil)
	require.NoError(t, err)
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete())

	for _, task := range []*domain.Task{pending, started, done} {
		require.NoError(t, repo.Save(ctx, task))
	}

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	completed, err := repo.ListByStatus(ctx, domain.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID(), completed[0].ID())
}

func TestSQLiteRuleRepository_ApplyReview(t *testing.T) {
	repo := NewSQLiteRuleRepository(testDB(t))
	ctx := context.Background()

	existing, err := domain.NewRule(domain.RuleKindWeatherExclusion, "outdoor", map[string]float64{
		domain.ParamRainThreshold: 0.6,
	}, 0.5)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, existing))

	existing.AdjustConfidence(0.05)
	proposed, err := domain.NewRule(domain.RuleKindPreferredWindow, "deep-work", map[string]float64{
		domain.ParamWindowStartHours: 9,
		domain.ParamWindowEndHours:   12,
	}, 0.3)
	require.NoError(t, err)

	require.NoError(t, repo.ApplyReview(ctx, []*domain.Rule{existing}, []*domain.Rule{proposed}))

	rules, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	adjusted, err := repo.FindByID(ctx, existing.ID())
	require.NoError(t, err)
	assert.InDelta(t, 0.55, adjusted.Confidence(), 1e-9)

	added, err := repo.FindByID(ctx, proposed.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.RuleKindPreferredWindow, added.Kind())
	assert.InDelta(t, 9, added.Param(domain.ParamWindowStartHours, 0), 1e-9)
}

func TestSQLiteRuleRepository_ApplyReviewCancelledContext(t *testing.T) {
	repo := NewSQLiteRuleRepository(testDB(t))
	ctx := context.Background()

	rule, err := domain.NewRule(domain.RuleKindPriorityBoost, "", map[string]float64{domain.ParamBoost: 1}, 0.8)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, rule))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	rule.AdjustConfidence(-0.5)
	err = repo.ApplyReview(cancelled, []*domain.Rule{rule}, nil)
	require.Error(t, err)

	// nothing committed
	stored, err := repo.FindByID(ctx, rule.ID())
	require.NoError(t, err)
	assert.InDelta(t, 0.8, stored.Confidence(), 1e-9)
}

func TestSQLitePlanRepository_RoundTrip(t *testing.T) {
	repo := NewSQLitePlanRepository(testDB(t))
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := domain.NewTimeRange(start, start.Add(8*time.Hour))
	winner := domain.Assignment{TaskID: uuid.New(), Title: "A", Slot: domain.NewTimeRange(start, start.Add(time.Hour))}
	loser := domain.Assignment{TaskID: uuid.New(), Title: "B", Slot: domain.NewTimeRange(start, start.Add(time.Hour))}
	conflicts := []domain.Conflict{{
		TaskID:     loser.TaskID,
		WinnerID:   winner.TaskID,
		Cause:      domain.CauseOverlap,
		Resolution: domain.ResolutionDeferred,
		Slot:       winner.Slot,
	}}

	plan, err := domain.NewPlan(window, []domain.Assignment{winner, loser}, conflicts)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, plan))

	loaded, err := repo.FindByID(ctx, plan.ID())
	require.NoError(t, err)
	require.Len(t, loaded.Assignments(), 2)
	require.Len(t, loaded.Conflicts(), 1)
	assert.Equal(t, winner.TaskID, loaded.Conflicts()[0].WinnerID)
	assert.Equal(t, domain.CauseOverlap, loaded.Conflicts()[0].Cause)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, plan.ID(), latest.ID())
}

func TestSQLitePlanRepository_LatestEmpty(t *testing.T) {
	repo := NewSQLitePlanRepository(testDB(t))

	_, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteRecordRepository_AppendAndListSince(t *testing.T) {
	repo := NewSQLiteRecordRepository(testDB(t))
	ctx := context.Background()

	taskID := uuid.New()
	ruleID := uuid.New()

	ok := domain.NewExecutionRecord("executor", "calendar.create", taskID, 120*time.Millisecond, true, "").
		WithRule(ruleID)
	failed := domain.NewExecutionRecord("executor", "notify.send", taskID, 40*time.Millisecond, false, "telegram: timeout").
		WithCause(domain.CauseNoSlot)

	require.NoError(t, repo.Append(ctx, ok))
	require.NoError(t, repo.Append(ctx, failed))

	records, err := repo.ListSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "calendar.create", records[0].Operation)
	assert.Equal(t, ruleID, records[0].RuleID)
	assert.True(t, records[0].Success)
	assert.Equal(t, 120*time.Millisecond, records[0].Duration)

	assert.Equal(t, domain.CauseNoSlot, records[1].Cause)
	assert.Equal(t, "telegram: timeout", records[1].Error)
	assert.Equal(t, uuid.Nil, records[1].RuleID)

	none, err := repo.ListSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
