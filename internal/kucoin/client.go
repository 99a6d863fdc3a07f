// Package kucoin provides the market data gateway backed by the KuCoin public REST API.
package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/pumpwatch/internal/logger"
	"github.com/rewired-gh/pumpwatch/internal/models"
)

const successCode = "200000"

// ClientConfig holds the tunable parameters of the client.
type ClientConfig struct {
	QuoteCurrency     string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	OrderBookDepth    int
}

// Client provides access to the KuCoin market data endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	config     ClientConfig
}

// NewClient creates a new KuCoin client.
func NewClient(baseURL string, timeout time.Duration, config ClientConfig) *Client {
	if config.QuoteCurrency == "" {
		config.QuoteCurrency = "USDT"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.OrderBookDepth <= 0 {
		config.OrderBookDepth = 20
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		config:  config,
	}
}

// envelope is the response wrapper shared by every KuCoin endpoint.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type symbolInfo struct {
	Symbol        string `json:"symbol"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	EnableTrading bool   `json:"enableTrading"`
}

type marketStats struct {
	Symbol   string `json:"symbol"`
	Last     string `json:"last"`
	VolValue string `json:"volValue"`
}

type tradeEntry struct {
	Sequence string `json:"sequence"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Side     string `json:"side"`
	Time     int64  `json:"time"` // nanoseconds
}

type orderBook struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"`
	Bids     [][]string `json:"bids"` // [price, size]
	Asks     [][]string `json:"asks"`
}

// ListLiquidSymbols returns the tradable symbols quoted in the configured
// currency whose quote volume exceeds minQuoteVolume. A symbol whose ticker
// cannot be fetched is logged and skipped.
func (c *Client) ListLiquidSymbols(ctx context.Context, minQuoteVolume float64) ([]string, error) {
	var infos []symbolInfo
	if err := c.get(ctx, "/api/v2/symbols", nil, &infos); err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}

	var symbols []string
	var candidates, skipped int
	for _, info := range infos {
		if !info.EnableTrading || info.QuoteCurrency != c.config.QuoteCurrency {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		candidates++

		ticker, err := c.FetchTicker(ctx, info.Symbol)
		if err != nil {
			skipped++
			logger.Warn("Failed to fetch ticker for %s during listing: %v", info.Symbol, err)
			continue
		}
		if ticker.QuoteVolume > minQuoteVolume {
			symbols = append(symbols, info.Symbol)
		}
	}

	logger.Debug("Listed %d liquid symbols from %d %s candidates (%d skipped)",
		len(symbols), candidates, c.config.QuoteCurrency, skipped)
	return symbols, nil
}

// FetchTicker returns the last price and 24h quote volume for symbol.
func (c *Client) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	var stats marketStats
	if err := c.get(ctx, "/api/v1/market/stats", url.Values{"symbol": {symbol}}, &stats); err != nil {
		return models.Ticker{}, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	last, err := parseNumber("last", stats.Last)
	if err != nil {
		return models.Ticker{}, err
	}
	volume, err := parseNumber("volValue", stats.VolValue)
	if err != nil {
		return models.Ticker{}, err
	}

	ticker := models.Ticker{Symbol: symbol, LastPrice: last, QuoteVolume: volume}
	if err := ticker.Validate(); err != nil {
		return models.Ticker{}, fmt.Errorf("invalid ticker: %w", err)
	}
	return ticker, nil
}

// FetchRecentTrades returns the most recent public trades for symbol.
func (c *Client) FetchRecentTrades(ctx context.Context, symbol string) ([]models.Trade, error) {
	var entries []tradeEntry
	if err := c.get(ctx, "/api/v1/market/histories", url.Values{"symbol": {symbol}}, &entries); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}

	trades := make([]models.Trade, 0, len(entries))
	for _, e := range entries {
		price, err := parseNumber("price", e.Price)
		if err != nil {
			return nil, err
		}
		size, err := parseNumber("size", e.Size)
		if err != nil {
			return nil, err
		}
		trades = append(trades, models.Trade{
			ID:    e.Sequence,
			Price: price,
			Size:  size,
			Side:  e.Side,
			Time:  time.Unix(0, e.Time),
		})
	}
	return trades, nil
}

// FetchOrderBook returns the bid side of the order book for symbol, best first.
func (c *Client) FetchOrderBook(ctx context.Context, symbol string) ([]models.BidLevel, error) {
	path := "/api/v1/market/orderbook/level2_20"
	if c.config.OrderBookDepth > 20 {
		path = "/api/v1/market/orderbook/level2_100"
	}

	var book orderBook
	if err := c.get(ctx, path, url.Values{"symbol": {symbol}}, &book); err != nil {
		return nil, fmt.Errorf("failed to fetch order book: %w", err)
	}

	bids := make([]models.BidLevel, 0, len(book.Bids))
	for _, level := range book.Bids {
		if len(level) < 2 {
			return nil, fmt.Errorf("malformed bid level: %v", level)
		}
		price, err := parseNumber("bid price", level[0])
		if err != nil {
			return nil, err
		}
		size, err := parseNumber("bid size", level[1])
		if err != nil {
			return nil, err
		}
		bids = append(bids, models.BidLevel{Price: price, Size: size})
	}
	if len(bids) > c.config.OrderBookDepth {
		bids = bids[:c.config.OrderBookDepth]
	}
	return bids, nil
}

// parseNumber converts a KuCoin decimal string. Empty means the field was missing or null.
func parseNumber(field, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing field %s", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// get performs a rate-limited GET with retry and decodes the envelope's data into target.
func (c *Client) get(ctx context.Context, path string, params url.Values, target interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	body, err := c.doRequest(ctx, u.String())
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != successCode {
		return fmt.Errorf("api error %s: %s", env.Code, env.Msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("response has no data")
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

// statusError is a non-200 HTTP response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// doRequest performs HTTP request with rate limiting and exponential backoff.
// Only transport errors, 429 and 5xx are retried.
func (c *Client) doRequest(ctx context.Context, urlStr string) ([]byte, error) {
	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			serr := &statusError{StatusCode: resp.StatusCode, Body: truncate(string(b), 200)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		body = b
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 200 * time.Millisecond
	strategy.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(c.config.MaxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
