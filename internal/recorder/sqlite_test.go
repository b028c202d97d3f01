package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func count(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	require.NoError(t, r.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSQLiteRecorder_Records(t *testing.T) {
	r := openTemp(t)
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.RecordCycle(&CycleEvent{StartedAt: start, Duration: 3 * time.Second, Liquid: 40, Watchlist: 10, Alerts: 1}))
	require.NoError(t, r.RecordAlert(&AlertEvent{Action: "created", AlertID: "a1", Symbol: "PEPEUSDT", Direction: "short", Probability: 0.9}))
	require.NoError(t, r.RecordClose(&CloseEvent{PositionID: "a1", Symbol: "PEPEUSDT", RealizedPct: 2.5, Reason: "target reached", OpenedAt: start, ExitTime: start.Add(time.Hour)}))

	assert.Equal(t, 1, count(t, r, "cycles"))
	assert.Equal(t, 1, count(t, r, "alert_events"))
	assert.Equal(t, 1, count(t, r, "position_closes"))

	var ms int64
	require.NoError(t, r.db.QueryRow("SELECT duration_ms FROM cycles").Scan(&ms))
	assert.Equal(t, int64(3000), ms)
}

func TestSQLiteRecorder_WinRate(t *testing.T) {
	r := openTemp(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for _, pct := range []float64{2.1, -1.0, 0.4} {
		require.NoError(t, r.RecordClose(&CloseEvent{Symbol: "X", RealizedPct: pct}))
	}
	total, winners, err := r.WinRate(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, winners)

	total, _, err = r.WinRate(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSQLiteRecorder_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	r, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	require.NoError(t, r.RecordCycle(&CycleEvent{StartedAt: time.Now()}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, count(t, r, "cycles"))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordCycle(&CycleEvent{}))
	assert.NoError(t, r.RecordAlert(&AlertEvent{}))
	assert.NoError(t, r.RecordClose(&CloseEvent{}))
	assert.NoError(t, r.Close())
}
