// Package models defines the core domain entities: tickers, trades, order book levels, snapshots, and alerts.
package models

import (
	"errors"
	"time"
)

// Ticker is the latest ticker reading for one symbol.
// QuoteVolume is denominated in the quote currency over the exchange's reporting window.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	QuoteVolume float64 `json:"quote_volume"`
}

// Validate checks ticker field constraints.
func (t *Ticker) Validate() error {
	if t.Symbol == "" {
		return errors.New("ticker symbol must not be empty")
	}
	if t.LastPrice <= 0 {
		return errors.New("ticker last price must be positive")
	}
	if t.QuoteVolume < 0 {
		return errors.New("ticker quote volume must not be negative")
	}
	return nil
}

// Trade is one public trade print. Only the count matters for scoring.
type Trade struct {
	ID    string    `json:"id"`
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Side  string    `json:"side"`
	Time  time.Time `json:"time"`
}

// BidLevel is one price level on the bid side of the order book.
type BidLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns price times size in quote units.
func (b BidLevel) Notional() float64 {
	return b.Price * b.Size
}

// Snapshot is the market data gathered for one symbol in one evaluation.
// Bids are ordered best first.
type Snapshot struct {
	Ticker Ticker
	Trades []Trade
	Bids   []BidLevel
}
