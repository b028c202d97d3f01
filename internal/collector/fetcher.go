package collector

import (
	"context"

	"ClimaxHunter/internal/model"
)

// Fetcher is the candle source boundary. Every call may fail transiently;
// callers treat a failure as "skip this symbol this cycle".
type Fetcher interface {
	// FetchTickers returns the universe in exchange order.
	FetchTickers(ctx context.Context) ([]model.Ticker, error)
	// FetchOHLCV returns up to limit bars in chronological order. The last
	// bar may still be forming.
	FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error)
	Name() string
}
