package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"ClimaxHunter/internal/model"
)

const binanceFuturesURL = "https://fapi.binance.com"

// BinanceFetcher implements Fetcher against the Binance USDT-M futures REST API.
type BinanceFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewBinanceFetcher creates a fetcher with optional proxy support.
func NewBinanceFetcher(baseURL, proxyURL string, timeout time.Duration) *BinanceFetcher {
	if baseURL == "" {
		baseURL = binanceFuturesURL
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &BinanceFetcher{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *BinanceFetcher) Name() string { return "binance-usdm" }

type binanceSymbol struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	QuoteAsset   string `json:"quoteAsset"`
	Status       string `json:"status"`
}

type binanceTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

type binancePremium struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
}

// FetchTickers joins exchange info, 24h tickers and premium index into one
// snapshot per symbol, preserving the 24h ticker order.
func (f *BinanceFetcher) FetchTickers(ctx context.Context) ([]model.Ticker, error) {
	var info struct {
		Symbols []binanceSymbol `json:"symbols"`
	}
	if err := f.getJSON(ctx, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	meta := make(map[string]binanceSymbol, len(info.Symbols))
	for _, s := range info.Symbols {
		meta[s.Symbol] = s
	}

	var raw []binanceTicker
	if err := f.getJSON(ctx, "/fapi/v1/ticker/24hr", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch tickers: %w", err)
	}

	var premiums []binancePremium
	funding := make(map[string]float64)
	if err := f.getJSON(ctx, "/fapi/v1/premiumIndex", nil, &premiums); err == nil {
		for _, p := range premiums {
			funding[p.Symbol] = parseFloat(p.LastFundingRate)
		}
	}

	tickers := make([]model.Ticker, 0, len(raw))
	for _, t := range raw {
		m := meta[t.Symbol]
		tickers = append(tickers, model.Ticker{
			Symbol:      t.Symbol,
			QuoteAsset:  m.QuoteAsset,
			Perpetual:   m.ContractType == "PERPETUAL" && (m.Status == "" || m.Status == "TRADING"),
			Last:        parseFloat(t.LastPrice),
			QuoteVolume: parseFloat(t.QuoteVolume),
			Percentage:  parseFloat(t.PriceChangePercent),
			FundingRate: funding[t.Symbol],
		})
	}
	return tickers, nil
}

// FetchOHLCV reads /fapi/v1/klines. Each kline is an array whose first six
// entries are open time (ms), open, high, low, close and volume.
func (f *BinanceFetcher) FetchOHLCV(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := f.getJSON(ctx, "/fapi/v1/klines", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, tf, err)
	}

	bars := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			return nil, fmt.Errorf("decode kline time: %w", err)
		}
		bars = append(bars, model.Candle{
			Time:   time.UnixMilli(openMs).UTC(),
			Open:   rawFloat(k[1]),
			High:   rawFloat(k[2]),
			Low:    rawFloat(k[3]),
			Close:  rawFloat(k[4]),
			Volume: rawFloat(k[5]),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func (f *BinanceFetcher) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := f.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func rawFloat(m json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return parseFloat(s)
	}
	var v float64
	_ = json.Unmarshal(m, &v)
	return v
}
