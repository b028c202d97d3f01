package collector

import (
	"context"
	"fmt"
	"sync"

	"ClimaxHunter/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu      sync.Mutex
	Tickers []model.Ticker
	Bars    map[string][]model.Candle // keyed by symbol+"|"+timeframe
	Errors  map[string]error          // keyed by symbol
	TickErr error
	Calls   []string
}

// NewMockFetcher creates an empty MockFetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Bars: map[string][]model.Candle{}, Errors: map[string]error{}}
}

func (m *MockFetcher) Name() string { return "mock" }

// SetBars registers bars for symbol and timeframe.
func (m *MockFetcher) SetBars(symbol string, tf model.Timeframe, bars []model.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bars[symbol+"|"+string(tf)] = bars
}

func (m *MockFetcher) FetchTickers(_ context.Context) ([]model.Ticker, error) {
	if m.TickErr != nil {
		return nil, m.TickErr
	}
	return m.Tickers, nil
}

func (m *MockFetcher) FetchOHLCV(_ context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, symbol+"|"+string(tf))
	if err := m.Errors[symbol]; err != nil {
		return nil, err
	}
	bars, ok := m.Bars[symbol+"|"+string(tf)]
	if !ok {
		return nil, fmt.Errorf("mock: no bars for %s %s", symbol, tf)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}
