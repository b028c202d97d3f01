package radar

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/model"
)

// Config tunes Phase 1.
type Config struct {
	QuoteAsset     string          `yaml:"quote_asset" default:"USDT"`
	MinQuoteVolume float64         `yaml:"min_quote_volume" default:"5000000" validate:"gte=0"`
	WatchlistSize  int             `yaml:"watchlist_size" default:"10" validate:"gt=0"`
	Timeframe      model.Timeframe `yaml:"timeframe" default:"5m"`
	FetchLimit     int             `yaml:"fetch_limit" default:"3" validate:"gte=2"`
	HistorySize    int             `yaml:"history_size" default:"4" validate:"gte=2"`
}

// Result is one radar pass.
type Result struct {
	Liquid    int
	Watchlist []model.MomentumCandidate
	Skipped   []model.SymbolOutcome
	// Tickers holds the universe snapshot of every liquid symbol.
	Tickers map[string]model.Ticker
}

// Symbols returns the watchlist symbols in rank order.
func (r *Result) Symbols() []string {
	out := make([]string, len(r.Watchlist))
	for i, c := range r.Watchlist {
		out[i] = c.Symbol
	}
	return out
}

// Radar filters the universe by liquidity and ranks it by the momentum of the
// most recent closed candle.
type Radar struct {
	cfg     Config
	fetcher collector.Fetcher
}

// New creates a Radar.
func New(cfg Config, fetcher collector.Fetcher) *Radar {
	return &Radar{cfg: cfg, fetcher: fetcher}
}

// Scan runs one Phase 1 pass. A universe fetch failure aborts the pass;
// per-symbol failures only skip that symbol. The returned History is a new
// generation; hist itself is left untouched and may be nil.
func (r *Radar) Scan(ctx context.Context, hist *History) (*Result, *History, error) {
	if hist == nil {
		hist = NewHistory(r.cfg.HistorySize)
	}
	next := hist.clone()

	tickers, err := r.fetcher.FetchTickers(ctx)
	if err != nil {
		return nil, hist, fmt.Errorf("fetch universe: %w", err)
	}
	liquid := r.liquid(tickers)
	res := &Result{Liquid: len(liquid), Tickers: make(map[string]model.Ticker, len(liquid))}
	if len(liquid) == 0 {
		log.Info().Msg("radar: no liquid symbols")
		return res, next, nil
	}

	candidates := make([]model.MomentumCandidate, 0, len(liquid))
	for _, t := range liquid {
		sym := t.Symbol
		res.Tickers[sym] = t
		if err := ctx.Err(); err != nil {
			return nil, hist, err
		}
		bars, err := r.fetcher.FetchOHLCV(ctx, sym, r.cfg.Timeframe, r.cfg.FetchLimit)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("radar: fetch failed")
			res.Skipped = append(res.Skipped, model.SymbolOutcome{Symbol: sym, Reason: model.SkipFetchFailed, Err: err})
			continue
		}
		if len(bars) < 2 {
			res.Skipped = append(res.Skipped, model.SymbolOutcome{Symbol: sym, Reason: model.SkipInsufficientData})
			continue
		}
		closed := model.Closed(bars)
		mom, ok := momentum(closed[len(closed)-1])
		if !ok {
			res.Skipped = append(res.Skipped, model.SymbolOutcome{Symbol: sym, Reason: model.SkipInvalidPrice})
			continue
		}
		next.merge(sym, closed)
		candidates = append(candidates, model.MomentumCandidate{
			Symbol:       sym,
			MomentumPct:  mom,
			Acceleration: next.acceleration(sym),
		})
	}

	res.Watchlist = Rank(candidates, r.cfg.WatchlistSize)
	log.Debug().Int("liquid", res.Liquid).Int("watchlist", len(res.Watchlist)).
		Int("skipped", len(res.Skipped)).Msg("radar: scan complete")
	return res, next, nil
}

func (r *Radar) liquid(tickers []model.Ticker) []model.Ticker {
	var out []model.Ticker
	for _, t := range tickers {
		if !t.Perpetual {
			continue
		}
		if r.cfg.QuoteAsset != "" && !strings.EqualFold(t.QuoteAsset, r.cfg.QuoteAsset) {
			continue
		}
		if t.QuoteVolume > r.cfg.MinQuoteVolume {
			out = append(out, t)
		}
	}
	return out
}

// Rank orders candidates by absolute momentum, descending, keeping input order
// among ties, and returns at most n of them.
func Rank(candidates []model.MomentumCandidate, n int) []model.MomentumCandidate {
	ranked := append([]model.MomentumCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].MomentumPct) > math.Abs(ranked[j].MomentumPct)
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// momentum is the percent body move of one candle.
func momentum(c model.Candle) (float64, bool) {
	if c.Open <= 0 {
		return 0, false
	}
	return (c.Close - c.Open) / c.Open * 100, true
}

