package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/models"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := OpenSessionStore(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionCreateAndReload(t *testing.T) {
	store := openTestStore(t)

	session, err := store.GetOrCreate("")
	require.NoError(t, err)
	require.NotEmpty(t, session.SessionID)
	assert.Empty(t, session.Turns)

	require.NoError(t, store.AppendTurn(session, models.SessionTurn{
		Query:     "005930 차트",
		Answer:    "차트 데이터입니다",
		Worker:    "chart",
		Timestamp: time.Now().UTC(),
	}))

	reloaded, err := store.Get(session.SessionID)
	require.NoError(t, err)
	require.Len(t, reloaded.Turns, 1)
	assert.Equal(t, "chart", reloaded.Turns[0].Worker)
	assert.True(t, reloaded.UpdatedAt.After(reloaded.CreatedAt) || reloaded.UpdatedAt.Equal(reloaded.CreatedAt))
}

func TestGetOrCreateWithExistingID(t *testing.T) {
	store := openTestStore(t)

	first, err := store.GetOrCreate("")
	require.NoError(t, err)

	second, err := store.GetOrCreate(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestGetOrCreateUnknownIDCreatesFresh(t *testing.T) {
	store := openTestStore(t)

	session, err := store.GetOrCreate("sess_does_not_exist")
	require.NoError(t, err)
	assert.NotEqual(t, "sess_does_not_exist", session.SessionID)
}

func TestGetUnknownSessionFails(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get("missing")
	assert.Error(t, err)
}

func TestExtractDateRange(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	start, end := extractDateRange("2024.01.02부터 2024-06-28까지 005930 차트", now)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC), end)

	start, end = extractDateRange("2025년 3월 2일 이후 주가", now)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	start, end = extractDateRange("요즘 차트 어때", now)
	assert.Equal(t, now.AddDate(0, -3, 0), start)
	assert.Equal(t, now, end)
}
