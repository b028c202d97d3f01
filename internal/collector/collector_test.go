package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ClimaxHunter/internal/model"
)

func binanceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","contractType":"PERPETUAL","quoteAsset":"USDT","status":"TRADING"},
			{"symbol":"ETHUSDT_250328","contractType":"CURRENT_QUARTER","quoteAsset":"USDT","status":"TRADING"}
		]}`))
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"65000.5","priceChangePercent":"2.5","quoteVolume":"123456789"},
			{"symbol":"ETHUSDT_250328","lastPrice":"3000","priceChangePercent":"-1","quoteVolume":"1000"}
		]`))
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","lastFundingRate":"0.0001"}]`))
	})
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BADUSDT" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		// served newest first to check ordering
		_, _ = w.Write([]byte(`[
			[1700003600000,"2","3","1","2.5","20",1700007199999],
			[1700000000000,"1","2","0.5","1.5","10",1700003599999]
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceFetchTickers(t *testing.T) {
	srv := binanceServer(t)
	f := NewBinanceFetcher(srv.URL, "", 5*time.Second)

	tickers, err := f.FetchTickers(testContext(t))
	require.NoError(t, err)
	require.Len(t, tickers, 2)

	btc := tickers[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, "USDT", btc.QuoteAsset)
	assert.True(t, btc.Perpetual)
	assert.InDelta(t, 65000.5, btc.Last, 1e-9)
	assert.InDelta(t, 123456789, btc.QuoteVolume, 1e-9)
	assert.InDelta(t, 2.5, btc.Percentage, 1e-9)
	assert.InDelta(t, 0.0001, btc.FundingRate, 1e-12)

	assert.False(t, tickers[1].Perpetual)
	assert.Zero(t, tickers[1].FundingRate)
}

func TestBinanceFetchOHLCV(t *testing.T) {
	srv := binanceServer(t)
	f := NewBinanceFetcher(srv.URL, "", 5*time.Second)

	bars, err := f.FetchOHLCV(testContext(t), "BTCUSDT", model.TF1h, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bars[0].Time)
	assert.InDelta(t, 1.5, bars[0].Close, 1e-9)
	assert.InDelta(t, 20, bars[1].Volume, 1e-9)

	_, err = f.FetchOHLCV(testContext(t), "BADUSDT", model.TF1h, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestMockFetcherLimit(t *testing.T) {
	m := NewMockFetcher()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []model.Candle
	for i := 0; i < 5; i++ {
		bars = append(bars, model.Candle{Time: base.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}
	m.SetBars("X", model.TF1h, bars)

	got, err := m.FetchOHLCV(testContext(t), "X", model.TF1h, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 4, got[1].Close, 1e-9)

	_, err = m.FetchOHLCV(testContext(t), "X", model.TF4h, 2)
	assert.Error(t, err)
	assert.Equal(t, []string{"X|1h", "X|4h"}, m.Calls)
}

func TestGuardedTripsBreaker(t *testing.T) {
	m := NewMockFetcher()
	m.Errors["DEAD"] = errors.New("boom")
	g := NewGuarded(m, GuardOptions{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := g.FetchOHLCV(testContext(t), "DEAD", model.TF1h, 10)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen.String(), g.State())

	_, err := g.FetchOHLCV(testContext(t), "DEAD", model.TF1h, 10)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, m.Calls, 2)
}

func TestGuardedPassesThrough(t *testing.T) {
	m := NewMockFetcher()
	m.Tickers = []model.Ticker{{Symbol: "BTCUSDT"}}
	g := NewGuarded(m, GuardOptions{})

	got, err := g.FetchTickers(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, m.Tickers, got)
	assert.Equal(t, "mock", g.Name())
	assert.Equal(t, gobreaker.StateClosed.String(), g.State())
}

func TestGuardedHonoursContext(t *testing.T) {
	m := NewMockFetcher()
	g := NewGuarded(m, GuardOptions{CallDelay: time.Hour})

	// first call consumes the burst token
	_, _ = g.FetchTickers(testContext(t))

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	_, err := g.FetchTickers(ctx)
	assert.Error(t, err)
}
