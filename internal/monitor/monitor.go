// Package monitor scores market snapshots and drives the periodic scan over the symbol universe.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/pumpwatch/internal/history"
	"github.com/rewired-gh/pumpwatch/internal/logger"
	"github.com/rewired-gh/pumpwatch/internal/models"
)

// Gateway is the market data source.
type Gateway interface {
	ListLiquidSymbols(ctx context.Context, minQuoteVolume float64) ([]string, error)
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
	FetchRecentTrades(ctx context.Context, symbol string) ([]models.Trade, error)
	FetchOrderBook(ctx context.Context, symbol string) ([]models.BidLevel, error)
}

// Notifier pushes a text message to an external channel.
type Notifier interface {
	Send(text string) error
}

// AlertLog is the durable, append-only alert record.
type AlertLog interface {
	AddAlert(alert *models.Alert) error
}

type Config struct {
	Score           ScoreConfig
	AlertThreshold  int
	MinQuoteVolume  float64
	Workers         int
	ScanInterval    time.Duration
	RefreshInterval time.Duration
	RequestTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Score:           DefaultScoreConfig(),
		AlertThreshold:  5,
		MinQuoteVolume:  100000,
		Workers:         10,
		ScanInterval:    15 * time.Second,
		RefreshInterval: time.Hour,
		RequestTimeout:  10 * time.Second,
	}
}

// Universe is an immutable set of monitored symbols.
type Universe struct {
	Symbols     []string
	RefreshedAt time.Time
}

// CycleStats summarizes one pass over the universe.
type CycleStats struct {
	Symbols   int
	Evaluated int
	Failed    int
	Alerts    []models.Alert
	Duration  time.Duration
}

type Monitor struct {
	gateway  Gateway
	history  *history.Store
	scorer   Scorer
	alertLog AlertLog
	notifier Notifier
	config   Config

	universe atomic.Pointer[Universe]

	mu         sync.Mutex
	cycleCount int
	lastCycle  CycleStats

	now func() time.Time
}

// New creates a monitor. alertLog and notifier may be nil.
func New(gateway Gateway, store *history.Store, alertLog AlertLog, notifier Notifier, config Config) *Monitor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	m := &Monitor{
		gateway:  gateway,
		history:  store,
		scorer:   NewScorer(config.Score),
		alertLog: alertLog,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
	m.universe.Store(&Universe{})
	return m
}

// Universe returns the current universe. Callers must not modify it.
func (m *Monitor) Universe() *Universe {
	return m.universe.Load()
}

// RefreshUniverse replaces the universe with the symbols the gateway reports
// above the liquidity floor. The swap is atomic; on error the old universe stays.
func (m *Monitor) RefreshUniverse(ctx context.Context) error {
	listed, err := m.gateway.ListLiquidSymbols(ctx, m.config.MinQuoteVolume)
	if err != nil {
		return fmt.Errorf("failed to refresh universe: %w", err)
	}

	seen := make(map[string]struct{}, len(listed))
	symbols := make([]string, 0, len(listed))
	for _, s := range listed {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	m.universe.Store(&Universe{Symbols: symbols, RefreshedAt: m.now()})
	logger.Info("Universe refreshed: %d symbols above %.0f quote volume", len(symbols), m.config.MinQuoteVolume)
	return nil
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (m *Monitor) fetchSnapshot(ctx context.Context, symbol string) (models.Snapshot, error) {
	timeout := m.config.RequestTimeout

	ticker, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (models.Ticker, error) {
		return m.gateway.FetchTicker(ctx, symbol)
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch ticker: %w", err)
	}
	trades, err := callWithTimeout(ctx, timeout, func(ctx context.Context) ([]models.Trade, error) {
		return m.gateway.FetchRecentTrades(ctx, symbol)
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch trades: %w", err)
	}
	bids, err := callWithTimeout(ctx, timeout, func(ctx context.Context) ([]models.BidLevel, error) {
		return m.gateway.FetchOrderBook(ctx, symbol)
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("fetch order book: %w", err)
	}

	return models.Snapshot{Ticker: ticker, Trades: trades, Bids: bids}, nil
}

// EvaluateSymbol fetches a snapshot for symbol, records it in the history and
// scores it. It returns a non-nil alert only when the score reaches the
// threshold. On error the history is left untouched.
func (m *Monitor) EvaluateSymbol(ctx context.Context, symbol string) (*models.Alert, error) {
	snap, err := m.fetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	window := m.history.Observe(symbol, snap.Ticker.LastPrice, snap.Ticker.QuoteVolume)
	result := m.scorer.Evaluate(snap, window)
	if result.Score > 0 {
		logger.Debug("Scored %s: score=%d reasons=%v", symbol, result.Score, result.Reasons)
	}
	if !result.Alerting(m.config.AlertThreshold) {
		return nil, nil
	}

	return &models.Alert{
		ID:         uuid.New().String(),
		DetectedAt: m.now().UTC(),
		Symbol:     symbol,
		Score:      result.Score,
		Reasons:    result.Reasons,
	}, nil
}

// RunCycle evaluates every symbol once on a bounded worker pool, waits for all
// of them, then dispatches the alerts. Per-symbol failures are logged and counted.
func (m *Monitor) RunCycle(ctx context.Context, symbols []string) CycleStats {
	start := time.Now()
	stats := CycleStats{Symbols: len(symbols)}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(m.config.Workers)
	for _, symbol := range symbols {
		symbol := symbol
		p.Go(func() {
			alert, err := m.EvaluateSymbol(ctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				logger.Warn("Error evaluating %s: %v", symbol, err)
				return
			}
			stats.Evaluated++
			if alert != nil {
				stats.Alerts = append(stats.Alerts, *alert)
			}
		})
	}
	p.Wait()

	sort.Slice(stats.Alerts, func(i, j int) bool {
		if stats.Alerts[i].Score != stats.Alerts[j].Score {
			return stats.Alerts[i].Score > stats.Alerts[j].Score
		}
		return stats.Alerts[i].Symbol < stats.Alerts[j].Symbol
	})
	for i := range stats.Alerts {
		m.dispatch(&stats.Alerts[i])
	}

	stats.Duration = time.Since(start)

	m.mu.Lock()
	m.cycleCount++
	m.lastCycle = stats
	m.mu.Unlock()

	return stats
}

// dispatch records and forwards one alert. The log write and the notification
// are independent: a failure of one does not prevent the other.
func (m *Monitor) dispatch(alert *models.Alert) {
	text := FormatAlert(alert)
	logger.Warn("%s", text)

	if m.alertLog != nil {
		if err := m.alertLog.AddAlert(alert); err != nil {
			logger.Error("Failed to record alert for %s: %v", alert.Symbol, err)
		}
	}
	if m.notifier != nil {
		if err := m.notifier.Send(text); err != nil {
			logger.Error("Failed to send notification for %s: %v", alert.Symbol, err)
		}
	}
}

// Run refreshes the universe, then scans it every ScanInterval until ctx is
// cancelled, refreshing it again once RefreshInterval has passed. A cycle in
// flight when ctx is cancelled runs to completion. Run returns nil on
// cancellation and the error of a failed universe refresh otherwise.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.RefreshUniverse(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("Monitor stopped before the first scan")
			return nil
		}
		return err
	}

	for {
		if ctx.Err() != nil {
			logger.Info("Monitor stopped")
			return nil
		}

		u := m.Universe()
		logger.Info("Checking %d symbols", len(u.Symbols))
		stats := m.RunCycle(context.WithoutCancel(ctx), u.Symbols)
		logger.Info("Cycle completed in %v: %d evaluated, %d failed, %d alerts",
			stats.Duration, stats.Evaluated, stats.Failed, len(stats.Alerts))

		if ctx.Err() != nil {
			logger.Info("Monitor stopped")
			return nil
		}

		if m.now().Sub(m.Universe().RefreshedAt) > m.config.RefreshInterval {
			logger.Info("Refreshing symbol universe")
			if err := m.RefreshUniverse(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		// the sleep is not shortened by the cycle's duration
		timer := time.NewTimer(m.config.ScanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Status returns a human readable summary of the monitor's state.
func (m *Monitor) Status() string {
	u := m.Universe()
	m.mu.Lock()
	count, last := m.cycleCount, m.lastCycle
	m.mu.Unlock()

	refreshed := "never"
	if !u.RefreshedAt.IsZero() {
		refreshed = u.RefreshedAt.UTC().Format(models.TimeLayout)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Universe: %d symbols (refreshed %s)\n", len(u.Symbols), refreshed)
	fmt.Fprintf(&b, "History: %d symbols tracked, %d samples each\n", m.history.Len(), m.history.Capacity())
	fmt.Fprintf(&b, "Cycles: %d\n", count)
	if count > 0 {
		fmt.Fprintf(&b, "Last cycle: %d evaluated, %d failed, %d alerts in %v",
			last.Evaluated, last.Failed, len(last.Alerts), last.Duration.Round(time.Millisecond))
	}
	return b.String()
}

// FormatAlert renders an alert as a single notification line.
func FormatAlert(a *models.Alert) string {
	return fmt.Sprintf("[%s] 🚨 ALERT on %s: Score=%d | Reasons: %s",
		a.DetectedAt.UTC().Format(models.TimeLayout), a.Symbol, a.Score, strings.Join(a.Reasons, ", "))
}
