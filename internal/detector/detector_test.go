package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/model"
)

var start = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Timeframe:              model.TF5m,
		Limit:                  100,
		Lookback:               3,
		VolumeMultiple:         2.0,
		ChangePct:              1.5,
		ReversalTimeframe:      model.TF15m,
		ReversalWindow:         30 * time.Minute,
		ReversalVolumeMultiple: 2.5,
		WickMultiple:           1.5,
	}
}

func at(min int, o, h, l, c, v float64) model.Candle {
	return model.Candle{Time: start.Add(time.Duration(min) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// climaxSeries is 21 closed 5m bars (10:00-11:40) ending in a bullish 15m
// bucket followed by a high-volume bearish engulfing bucket, plus a forming
// bar at 11:45.
func climaxSeries() []model.Candle {
	var bars []model.Candle
	for m := 0; m < 75; m += 5 {
		bars = append(bars, at(m, 100, 100.2, 99.9, 100.1, 10))
	}
	bars = append(bars,
		at(75, 100, 101.2, 99.9, 101, 10),
		at(80, 101, 101.6, 100.9, 101.5, 10),
		at(85, 101.5, 102.1, 101.4, 102, 10),
		at(90, 102.5, 103, 100.9, 101, 100),
		at(95, 101, 101.1, 99.9, 100, 100),
		at(100, 100, 100.1, 99.4, 99.5, 100),
		at(105, 99.5, 200, 10, 180, 100000),
	)
	return bars
}

func TestAnalyzeFindsAccelerationAndEngulfing(t *testing.T) {
	m := collector.NewMockFetcher()
	m.SetBars("PEPEUSDT", model.TF5m, climaxSeries())
	now := start.Add(104 * time.Minute)

	res, err := New(testConfig(), m).Analyze(context.Background(), []string{"PEPEUSDT"}, now)
	require.NoError(t, err)

	require.Len(t, res.Accelerations, 1)
	acc := res.Accelerations[0]
	assert.InDelta(t, (99.5-102.5)/102.5, acc.ChangePct, 1e-12)
	assert.InDelta(t, 10.0, acc.VolumeMultiple, 1e-12)
	assert.True(t, acc.IsStrong)
	assert.InDelta(t, 99.5, acc.LastClose, 1e-12)

	require.Len(t, res.Reversals, 1)
	assert.Equal(t, model.BearishEngulfing, res.Reversals[0].Pattern)
	assert.Equal(t, start.Add(90*time.Minute), res.Reversals[0].CandleTime)
	assert.Empty(t, res.Skipped)
}

func TestAnalyzeSkipsFailedSymbolsAndDedupes(t *testing.T) {
	m := collector.NewMockFetcher()
	m.SetBars("PEPEUSDT", model.TF5m, climaxSeries())
	m.Errors["DOWNUSDT"] = errors.New("502")
	now := start.Add(104 * time.Minute)

	res, err := New(testConfig(), m).Analyze(context.Background(), []string{"DOWNUSDT", "PEPEUSDT", "PEPEUSDT"}, now)
	require.NoError(t, err)
	assert.Len(t, res.Reversals, 1)
	assert.Len(t, res.Accelerations, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, model.SkipFetchFailed, res.Skipped[0].Reason)
}

func TestAnalyzeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testConfig(), collector.NewMockFetcher()).Analyze(ctx, []string{"X"}, start)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccelerateNeedsHistoryAndBaseline(t *testing.T) {
	cfg := testConfig()
	_, reason := Accelerate("X", climaxSeries()[:3], cfg)
	assert.Equal(t, model.SkipInsufficientData, reason)

	flat := []model.Candle{at(0, 1, 1, 1, 1, 0), at(5, 1, 1, 1, 1, 0), at(10, 1, 1, 1, 1, 5), at(15, 1, 1, 1, 1, 5), at(20, 1, 1, 1, 1, 5)}
	_, reason = Accelerate("X", flat, cfg)
	assert.Equal(t, model.SkipZeroBaseline, reason)
}

func TestAccelerateWeakMove(t *testing.T) {
	bars := []model.Candle{
		at(0, 100, 100, 100, 100, 10),
		at(5, 100, 100, 100, 100, 10),
		at(10, 100, 101, 100, 100.5, 40),
		at(15, 100.5, 101, 100, 100.8, 40),
		at(20, 100.8, 101, 100, 101, 40),
	}
	cand, reason := Accelerate("X", bars, testConfig())
	require.Empty(t, reason)
	assert.InDelta(t, 4.0, cand.VolumeMultiple, 1e-12)
	assert.InDelta(t, 0.01, cand.ChangePct, 1e-12)
	assert.False(t, cand.IsStrong, "a one percent move is below the threshold")
	assert.InDelta(t, 0.04, cand.Score, 1e-12)
}

func TestReversalsWickRejection(t *testing.T) {
	cfg := testConfig()
	now := start.Add(44 * time.Minute)
	bars := []model.Candle{
		at(0, 100, 100.2, 99.8, 100, 10),
		at(15, 100, 100.2, 99.8, 100.1, 10),
		at(30, 100, 103, 99.9, 100.5, 100),
	}
	sigs, reason := Reversals("X", bars, now, cfg)
	require.Empty(t, reason)
	require.Len(t, sigs, 1)
	assert.Equal(t, model.BearishWickRejection, sigs[0].Pattern)

	bars[2] = at(30, 100, 100.6, 97, 100.5, 100)
	sigs, _ = Reversals("X", bars, now, cfg)
	require.Len(t, sigs, 1)
	assert.Equal(t, model.BullishWickRejection, sigs[0].Pattern)

	bars[2] = at(30, 100, 103, 97, 100.5, 100)
	sigs, _ = Reversals("X", bars, now, cfg)
	require.Len(t, sigs, 1)
	assert.Equal(t, model.BearishWickRejection, sigs[0].Pattern)

	bars[2] = at(30, 100, 103, 97, 100, 100)
	sigs, _ = Reversals("X", bars, now, cfg)
	assert.Empty(t, sigs, "doji has no body to compare against")
}

func TestReversalsEngulfingAndWickTogether(t *testing.T) {
	now := start.Add(44 * time.Minute)
	bars := []model.Candle{
		at(0, 100, 100.2, 99.8, 100, 10),
		at(15, 100, 101.1, 99.9, 101, 10),
		at(30, 101.5, 106, 99.4, 99.5, 100),
	}
	sigs, _ := Reversals("X", bars, now, testConfig())
	require.Len(t, sigs, 2)
	assert.Equal(t, model.BearishEngulfing, sigs[0].Pattern)
	assert.Equal(t, model.BearishWickRejection, sigs[1].Pattern)
}

func TestReversalsRequireVolumeAndBaseline(t *testing.T) {
	now := start.Add(44 * time.Minute)
	bars := []model.Candle{
		at(0, 100, 100.2, 99.8, 100, 10),
		at(15, 100, 100.2, 99.8, 100.1, 10),
		at(30, 100, 103, 99.9, 100.5, 25),
	}
	sigs, reason := Reversals("X", bars, now, testConfig())
	assert.Empty(t, reason)
	assert.Empty(t, sigs, "volume 25 is not above 2.5x baseline 10")

	bars[0].Volume = 0
	_, reason = Reversals("X", bars, now, testConfig())
	assert.Equal(t, model.SkipZeroBaseline, reason)
}

func TestResultRankings(t *testing.T) {
	r := &Result{
		Accelerations: []model.AccelerationCandidate{{Symbol: "A", Score: 1}, {Symbol: "B", Score: 3}, {Symbol: "C", Score: 2}},
		Reversals: []model.ReversalSignal{
			{Symbol: "A", CandleTime: start},
			{Symbol: "B", CandleTime: start.Add(time.Hour)},
			{Symbol: "A", CandleTime: start.Add(2 * time.Hour)},
		},
	}
	top := r.TopAccelerations(2)
	assert.Equal(t, "B", top[0].Symbol)
	assert.Equal(t, "C", top[1].Symbol)

	latest := r.LatestReversals(5)
	require.Len(t, latest, 3)
	assert.Equal(t, start.Add(2*time.Hour), latest[0].CandleTime)

	forA := r.ReversalsFor("A")
	require.Len(t, forA, 2)
	assert.True(t, forA[0].CandleTime.After(forA[1].CandleTime))
}

func TestResultPatternForSkipsDisagreeingSignals(t *testing.T) {
	r := &Result{Reversals: []model.ReversalSignal{
		{Symbol: "A", CandleTime: start, Pattern: model.BearishEngulfing},
		{Symbol: "A", CandleTime: start.Add(15 * time.Minute), Pattern: model.BearishWickRejection},
		{Symbol: "A", CandleTime: start.Add(30 * time.Minute), Pattern: model.BullishWickRejection},
		{Symbol: "B", CandleTime: start.Add(time.Hour), Pattern: model.BullishEngulfing},
	}}

	assert.Equal(t, model.BearishWickRejection, r.PatternFor("A", true), "newest agreeing signal wins over a newer disagreeing one")
	assert.Equal(t, model.BullishWickRejection, r.PatternFor("A", false))
	assert.Equal(t, model.PatternKind(""), r.PatternFor("B", true))
	assert.Equal(t, model.PatternKind(""), r.PatternFor("C", false))
}
