package store

import (
	"context"
	"testing"
	"time"

	"oee-copilot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestSQLiteRoundTrip_StatusLogs(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	day1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.InsertLogs(ctx, []models.StatusLogEntry{
		{EquipmentName: "Machine A", Status: "running", Date: day1, DurationMinutes: 100},
		{EquipmentName: "Machine A", Status: "down", Date: day2, DurationMinutes: 20, Reason: "Belt"},
	})
	require.NoError(t, err)

	// 再インポートは全件置き換え
	n, err := s.InsertLogs(ctx, []models.StatusLogEntry{
		{EquipmentName: "Machine B", Status: "running", Date: day1, DurationMinutes: 30},
		{EquipmentName: "Machine B", Status: "down", Date: day2, DurationMinutes: 10, Reason: "-"},
		{EquipmentName: "Machine C", Status: "idle", Date: day2, DurationMinutes: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	logs, err := s.QueryRecentLogs(ctx, 2, true)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, day2, logs[0].Date)

	stats, err := s.LogStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRows)
	assert.Equal(t, 2, stats.ByEquipment["Machine B"])
}

func TestSQLiteRoundTrip_Sessions(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "sess-1", models.RoleUser, "Show me the pareto")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "sess-1", models.RoleAssistant, "Belt is the top reason.")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "sess-1", models.RoleUser, "why?")
	require.NoError(t, err)

	session, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Show me the pareto", session.Title)

	all, err := s.QueryMessages(ctx, "sess-1", true, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Show me the pareto", all[0].Content)
	assert.Equal(t, "why?", all[2].Content)

	latest, err := s.QueryMessages(ctx, "sess-1", false, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "why?", latest[0].Content)

	recent, err := s.QueryRecentMessages(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.RoleAssistant, recent[0].Role)

	other, err := s.CreateSession(ctx, "Line 3")
	require.NoError(t, err)
	require.NoError(t, s.RenameSession(ctx, "sess-1", "Pareto review"))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].ID)
	assert.Equal(t, "Pareto review", sessions[0].Title)
	assert.Equal(t, other.ID, sessions[1].ID)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
