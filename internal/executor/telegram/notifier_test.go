package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planward/planward/internal/planning/domain"
)

func samplePlan(t *testing.T) *domain.Plan {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	window := domain.NewTimeRange(start, start.Add(8*time.Hour))

	assignments := []domain.Assignment{
		{TaskID: uuid.New(), Title: "Write report", Slot: domain.NewTimeRange(start, start.Add(time.Hour))},
		{TaskID: uuid.New(), Title: "Water plants", Slot: domain.NewTimeRange(start.Add(2*time.Hour), start.Add(2*time.Hour+30*time.Minute))},
	}
	deferredID := uuid.New()
	conflicts := []domain.Conflict{{
		TaskID:     deferredID,
		Cause:      domain.CauseNoSlot,
		Resolution: domain.ResolutionDeferred,
		Slot:       window,
	}}

	plan, err := domain.NewPlan(window, assignments, conflicts)
	require.NoError(t, err)
	return plan
}

func TestNotifier_SendPlanSummary(t *testing.T) {
	var received sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, "test-token", "chat-42", server.Client())

	err := notifier.SendPlanSummary(context.Background(), samplePlan(t))
	require.NoError(t, err)

	assert.Equal(t, "chat-42", received.ChatID)
	assert.Contains(t, received.Text, "09:00 - 10:00  Write report")
	assert.Contains(t, received.Text, "11:00 - 11:30  Water plants")
	assert.Contains(t, received.Text, "Deferred: 1 task(s)")
}

func TestNotifier_SendAlertRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, "test-token", "bad-chat", server.Client())

	err := notifier.SendAlert(context.Background(), "heads up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestFormatPlan_Empty(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan, err := domain.NewPlan(domain.NewTimeRange(start, start.Add(24*time.Hour)), nil, nil)
	require.NoError(t, err)

	text := FormatPlan(plan)
	assert.Contains(t, text, "Nothing scheduled.")
}
