package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaxHunter/internal/model"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, shadow bool) *Store {
	t.Helper()
	s := NewStore(Config{
		DataDir:        t.TempDir(),
		AlertsFile:     "alerts.json",
		OpenFile:       "open_positions.json",
		ClosedFile:     "closed_positions.json",
		ReopenWindow:   48 * time.Hour,
		ShadowRejected: shadow,
		LockTimeout:    time.Second,
		LockStale:      time.Minute,
	})
	s.now = func() time.Time { return now }
	return s
}

func alert(id, symbol string, dir model.Direction) model.Alert {
	return model.Alert{
		ID:            id,
		Symbol:        symbol,
		Direction:     dir,
		EntryPrice:    100,
		Probability:   0.9,
		SuggestedSize: 250,
		Risk:          model.RiskLevels{ATR: 2, StopLoss: 102, TakeProfit: 97},
		Scenario:      "climax",
		Timeframe:     model.TF1h,
		CreatedAt:     now,
	}
}

func TestCreateAlertRejectsDuplicateSymbol(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()

	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)
	_, err = s.CreateAlert(ctx, alert("a2", "PEPEUSDT", model.Short))
	require.ErrorIs(t, err, ErrDuplicateAlert)

	alerts, err := s.Alerts()
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
}

func TestAcceptThenClose(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()

	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)

	pos, err := s.Accept(ctx, "a1", 101)
	require.NoError(t, err)
	assert.Equal(t, 101.0, pos.EntryPrice)
	assert.Equal(t, model.StateAccepted, pos.State)

	alerts, _ := s.Alerts()
	assert.Empty(t, alerts)

	rec, err := s.Close(ctx, pos.ID, 98.98, "")
	require.NoError(t, err)
	require.NotNil(t, rec.RealizedPct)
	assert.InDelta(t, 2.0, *rec.RealizedPct, 1e-9)
	assert.Equal(t, ReasonManual, rec.ExitReason)

	open, _ := s.OpenPositions()
	assert.Empty(t, open)
	closed, _ := s.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, pos.ID, closed[0].ID)
}

func TestCloseLongRealizedSign(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "SOLUSDT", model.Long))
	require.NoError(t, err)
	pos, err := s.Accept(ctx, "a1", 0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pos.EntryPrice)

	exitAt := now.Add(-time.Hour)
	rec, err := s.CloseAt(ctx, pos.ID, 95, exitAt, "reversal with structure loss")
	require.NoError(t, err)
	assert.InDelta(t, -5.0, *rec.RealizedPct, 1e-9)
	assert.Equal(t, exitAt, *rec.ExitTime)
}

func TestAcceptRefusesSecondPositionForSymbol(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)
	_, err = s.Accept(ctx, "a1", 0)
	require.NoError(t, err)

	_, err = s.CreateAlert(ctx, alert("a2", "PEPEUSDT", model.Short))
	require.NoError(t, err)
	_, err = s.Accept(ctx, "a2", 0)
	require.ErrorIs(t, err, ErrDuplicatePosition)

	alerts, _ := s.Alerts()
	assert.Len(t, alerts, 1, "failed accept must keep the alert")
}

func TestRejectMovesToLedgerWithoutExit(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)

	consumed, err := s.Reject(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "PEPEUSDT", consumed.Symbol)
	assert.Equal(t, model.Short, consumed.Direction)

	alerts, _ := s.Alerts()
	assert.Empty(t, alerts)
	closed, _ := s.ClosedPositions()
	require.Len(t, closed, 1)
	assert.Nil(t, closed[0].ExitPrice)
	assert.Nil(t, closed[0].RealizedPct)
	assert.Equal(t, model.StateRejectedVirtual, closed[0].State)

	_, err = s.Close(ctx, "a1", 90, "")
	require.ErrorIs(t, err, ErrNotFound)
	closed, _ = s.ClosedPositions()
	assert.Len(t, closed, 1)
}

func TestRejectWithShadowTracking(t *testing.T) {
	s := newTestStore(t, true)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)

	_, err = s.Reject(ctx, "a1")
	require.NoError(t, err)
	open, _ := s.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, model.StateRejectedVirtual, open[0].State)

	rec, err := s.Close(ctx, "a1", 97, "target reached")
	require.NoError(t, err)
	assert.Equal(t, model.StateRejectedVirtual, rec.State)
	assert.InDelta(t, 3.0, *rec.RealizedPct, 1e-9)
}

func TestVoidLeavesNoRecord(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)

	consumed, err := s.Void(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "PEPEUSDT", consumed.Symbol)
	alerts, _ := s.Alerts()
	open, _ := s.OpenPositions()
	closed, _ := s.ClosedPositions()
	assert.Empty(t, alerts)
	assert.Empty(t, open)
	assert.Empty(t, closed)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()

	_, err := s.Accept(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Reject(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Void(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Close(ctx, "nope", 1, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Reopen(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenRoundTrip(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)
	original, err := s.Accept(ctx, "a1", 101)
	require.NoError(t, err)
	_, err = s.Close(ctx, original.ID, 99, "")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(47 * time.Hour) }
	reopened, err := s.Reopen(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, *original, *reopened)

	open, _ := s.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, *original, open[0])
	closed, _ := s.ClosedPositions()
	assert.Empty(t, closed)
}

func TestReopenOutsideWindow(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)
	pos, err := s.Accept(ctx, "a1", 0)
	require.NoError(t, err)
	_, err = s.Close(ctx, pos.ID, 99, "")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(49 * time.Hour) }
	_, err = s.Reopen(ctx, pos.ID)
	require.ErrorIs(t, err, ErrReopenExpired)
	closed, _ := s.ClosedPositions()
	assert.Len(t, closed, 1)
}

func TestStatePersistsAsJSONArrays(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	_, err := s.CreateAlert(ctx, alert("a1", "PEPEUSDT", model.Short))
	require.NoError(t, err)

	reloaded := NewStore(s.cfg)
	alerts, err := reloaded.Alerts()
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "PEPEUSDT", alerts[0].Symbol)

	data, err := os.ReadFile(filepath.Join(s.cfg.DataDir, "alerts.json"))
	require.NoError(t, err)
	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "a1", raw[0]["id"])

	entries, err := os.ReadDir(s.cfg.DataDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
		assert.NotEqual(t, ".store.lock", e.Name())
	}
}

func TestClosedSince(t *testing.T) {
	s := newTestStore(t, false)
	ctx := context.Background()
	for i, sym := range []string{"AUSDT", "BUSDT"} {
		id := string(rune('a' + i))
		_, err := s.CreateAlert(ctx, alert(id, sym, model.Long))
		require.NoError(t, err)
		_, err = s.Accept(ctx, id, 0)
		require.NoError(t, err)
		_, err = s.CloseAt(ctx, id, 101, now.Add(time.Duration(-48+i*47)*time.Hour), "")
		require.NoError(t, err)
	}
	recent, err := s.ClosedSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "BUSDT", recent[0].Symbol)
}
