package collector

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"ClimaxHunter/internal/model"
)

// Guarded paces every call through a rate limiter and trips a circuit breaker
// when the source keeps failing, so a dead exchange fails fast instead of
// stalling the whole cycle on timeouts.
type Guarded struct {
	next    Fetcher
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// GuardOptions configures Guarded.
type GuardOptions struct {
	CallDelay           time.Duration // minimum spacing between calls
	ConsecutiveFailures uint32        // failures that open the breaker
	OpenTimeout         time.Duration // how long the breaker stays open
}

// NewGuarded wraps next.
func NewGuarded(next Fetcher, opts GuardOptions) *Guarded {
	limit := rate.Inf
	if opts.CallDelay > 0 {
		limit = rate.Every(opts.CallDelay)
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 60 * time.Second
	}
	st := gobreaker.Settings{
		Name:     next.Name(),
		Interval: 60 * time.Second,
		Timeout:  opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
	}
	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) FetchTickers(ctx context.Context) ([]model.Ticker, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.FetchTickers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]model.Ticker), nil
}

func (g *Guarded) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.FetchOHLCV(ctx, symbol, tf, limit)
	})
	if err != nil {
		return nil, err
	}
	return out.([]model.Candle), nil
}

// State reports the breaker state, for status output.
func (g *Guarded) State() string { return g.breaker.State().String() }
