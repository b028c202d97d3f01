package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaxHunter/internal/model"
)

var entryTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func candle(i int, o, h, l, c, v float64) model.Candle {
	return model.Candle{Time: entryTime.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// warmup is a full volume window of quiet candles up to and including the
// entry candle.
func warmup() []model.Candle {
	var out []model.Candle
	for i := -19; i <= 0; i++ {
		out = append(out, candle(i, 100, 100.5, 99.5, 100, 100))
	}
	return out
}

func position(dir model.Direction, scenario string) model.Position {
	return model.Position{ID: "p1", Symbol: "PEPEUSDT", Direction: dir, EntryPrice: 100, Scenario: scenario, OpenedAt: entryTime, State: model.StateAccepted}
}

// longIntent is a firm bullish candle on heavy volume.
var longIntent = candle(1, 100, 101.1, 99.95, 101, 300)

func TestEvaluate_TrailingWithoutVolume(t *testing.T) {
	candles := append(warmup(), longIntent, candle(2, 101, 104.7, 100.9, 104.6, 50))

	d := New(DefaultConfig()).Evaluate(position(model.Long, "climax"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTrailing, d.Reason)
	assert.Equal(t, 104.6, d.ExitPrice)
	assert.InDelta(t, 4.6, d.ChangePct, 1e-9)
	assert.Equal(t, 2, d.Candles)
	assert.Equal(t, entryTime.Add(2*time.Hour), d.ExitTime)
}

func TestEvaluate_TargetBeatsLowerRules(t *testing.T) {
	e := New(DefaultConfig())

	quiet := append(warmup(), longIntent, candle(2, 101, 103.7, 100.9, 103.6, 50))
	d := e.Evaluate(position(model.Long, "climax"), quiet)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTarget, d.Reason, "3.6 is past the target but inside the trailing gap")

	loud := append(warmup(), longIntent, candle(2, 101, 104.7, 100.9, 104.6, 1000))
	d = e.Evaluate(position(model.Long, "climax"), loud)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTarget, d.Reason, "heavy volume keeps the trail from firing")
}

func TestEvaluate_ProfitableWithoutIntent(t *testing.T) {
	candles := append(warmup(), candle(1, 100, 101.1, 99.95, 101, 100))
	d := New(DefaultConfig()).Evaluate(position(model.Long, "climax"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonNoIntent, d.Reason)
	assert.Equal(t, 1, d.Candles)
}

func TestEvaluate_ReversalWithStructureLoss(t *testing.T) {
	candles := append(warmup(), candle(1, 100, 100.1, 98.9, 99, 100))
	d := New(DefaultConfig()).Evaluate(position(model.Long, "climax"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonStructure, d.Reason)
	assert.InDelta(t, -1.0, d.ChangePct, 1e-9)
}

func TestEvaluate_TimeStop(t *testing.T) {
	candles := warmup()
	for i := 1; i <= 8; i++ {
		candles = append(candles, candle(i, 100, 100.1, 99.7, 99.8, 100))
	}
	d := New(DefaultConfig()).Evaluate(position(model.Long, "climax"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTimeStop, d.Reason)
	assert.Equal(t, 6, d.Candles)
	assert.Equal(t, entryTime.Add(6*time.Hour), d.ExitTime)
}

func TestEvaluate_ScenarioWidensTrail(t *testing.T) {
	shortIntent := candle(1, 100, 100.05, 98.9, 99, 300)
	candles := append(warmup(), shortIntent, candle(2, 99, 99.1, 94.9, 95, 50))

	e := New(DefaultConfig())
	d := e.Evaluate(position(model.Short, "climax"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTrailing, d.Reason)
	assert.InDelta(t, 5.0, d.ChangePct, 1e-9)

	d = e.Evaluate(position(model.Short, "bearish_engulfing"), candles)
	require.NotNil(t, d)
	assert.Equal(t, ReasonTarget, d.Reason)
	assert.Equal(t, 1.8, d.Scenario.TrailingGap)
}

func TestEvaluate_UnresolvedAndPreEntryIgnored(t *testing.T) {
	e := New(DefaultConfig())
	pos := position(model.Long, "climax")

	assert.Nil(t, e.Evaluate(pos, warmup()))
	assert.Nil(t, e.Evaluate(pos, append(warmup(), longIntent)))

	spiky := []model.Candle{candle(-1, 100, 120, 99, 120, 1), candle(0, 120, 121, 80, 80, 1)}
	assert.Nil(t, e.Evaluate(pos, spiky))
	assert.Nil(t, e.Evaluate(pos, nil))
}

func TestEvaluate_VolumeRulesNeedFullWindow(t *testing.T) {
	short := warmup()[15:]
	e := New(DefaultConfig())

	d := e.Evaluate(position(model.Long, "climax"), append(short, longIntent))
	require.NotNil(t, d)
	assert.Equal(t, ReasonNoIntent, d.Reason, "heavy volume is not intent without a full window")

	d = e.Evaluate(position(model.Long, "climax"), append(short, longIntent, candle(2, 101, 104.7, 100.9, 104.6, 50)))
	require.NotNil(t, d)
	assert.Equal(t, ReasonNoIntent, d.Reason)
	assert.Equal(t, 1, d.Candles)
}

func TestEvaluate_Deterministic(t *testing.T) {
	candles := append(warmup(), longIntent, candle(2, 101, 104.7, 100.9, 104.6, 50))
	e := New(DefaultConfig())
	first := e.Evaluate(position(model.Long, "climax"), candles)
	for i := 0; i < 5; i++ {
		again := e.Evaluate(position(model.Long, "climax"), candles)
		require.NotNil(t, again)
		assert.Equal(t, *first, *again)
	}
}

func TestScenarioFor(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, Scenario{Target: 3.5, TrailingGap: 1.0}, e.ScenarioFor("climax"))
	assert.Equal(t, 0.8, e.ScenarioFor("pullback_ema21").TrailingGap)
	assert.Equal(t, 1.2, e.ScenarioFor("bullish_wick_rejection").TrailingGap)
}
