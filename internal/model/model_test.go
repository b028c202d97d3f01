package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealizedPct(t *testing.T) {
	tests := []struct {
		name        string
		dir         Direction
		entry, exit float64
		want        float64
	}{
		{"long win", Long, 100, 104, 4},
		{"long loss", Long, 100, 98, -2},
		{"short win", Short, 100, 95, 5},
		{"short loss", Short, 100, 101, -1},
		{"zero entry", Long, 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RealizedPct(tt.dir, tt.entry, tt.exit), 1e-9)
		})
	}
}

func TestClosedDropsFormingBar(t *testing.T) {
	assert.Nil(t, Closed(nil))
	bars := []Candle{{Close: 1}, {Close: 2}, {Close: 3}}
	got := Closed(bars)
	assert.Len(t, got, 2)
	assert.InDelta(t, 2, got[1].Close, 1e-9)
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, TF5m.Duration())
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Equal(t, 24*time.Hour, TF1d.Duration())
	assert.Zero(t, Timeframe("7m").Duration())
}

func TestDirectionAndPattern(t *testing.T) {
	assert.InDelta(t, 1, Long.Sign(), 0)
	assert.InDelta(t, -1, Short.Sign(), 0)
	assert.True(t, BearishWickRejection.Bearish())
	assert.False(t, BullishEngulfing.Bearish())

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := ReversalSignal{Symbol: "BTCUSDT", CandleTime: at, Pattern: BearishEngulfing}
	assert.Equal(t, "BTCUSDT|bearish_engulfing|2024-03-01T12:00:00Z", s.Key())
}
