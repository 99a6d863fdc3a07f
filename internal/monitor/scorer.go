package monitor

import (
	"fmt"

	"github.com/rewired-gh/pumpwatch/internal/history"
	"github.com/rewired-gh/pumpwatch/internal/models"
)

// Rule weights.
const (
	VolumeSpikeWeight = 2
	TradeBurstWeight  = 1
	PriceDriftWeight  = 1
	StackingWeight    = 2
)

// ScoreConfig holds the tunable thresholds of the scoring rules.
type ScoreConfig struct {
	VolumeSpikeMultiplier float64
	TradeBurstThreshold   int
	StackingThreshold     int
	BidDepth              int
	NotionalFloor         float64
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		VolumeSpikeMultiplier: 5,
		TradeBurstThreshold:   10,
		StackingThreshold:     5,
		BidDepth:              10,
		NotionalFloor:         50,
	}
}

// Result is the outcome of scoring one snapshot. Reasons follow rule order.
type Result struct {
	Score   int
	Reasons []string
}

// Alerting reports whether the score reaches threshold.
func (r Result) Alerting(threshold int) bool {
	return r.Score >= threshold
}

// Scorer applies the heuristic rules. It holds no state besides its config.
type Scorer struct {
	config ScoreConfig
}

func NewScorer(config ScoreConfig) Scorer {
	return Scorer{config: config}
}

// Evaluate scores snap against window, which must already contain the
// sample taken from snap. Every rule is applied; contributions add up.
func (s Scorer) Evaluate(snap models.Snapshot, window history.Window) Result {
	var r Result
	last := snap.Ticker.LastPrice
	volume := snap.Ticker.QuoteVolume

	if window.Len() > 0 {
		avg := mean(window.Volumes)
		if volume > avg*s.config.VolumeSpikeMultiplier {
			r.Score += VolumeSpikeWeight
			r.Reasons = append(r.Reasons, fmt.Sprintf("Volume spike (Current: %.2f, Avg: %.2f)", volume, avg))
		}
	}

	if n := len(snap.Trades); n > s.config.TradeBurstThreshold {
		r.Score += TradeBurstWeight
		r.Reasons = append(r.Reasons, fmt.Sprintf("Trade burst: %d trades", n))
	}

	// drift is measured against the oldest retained sample, upward only
	if window.Len() > 1 {
		delta := last - window.Prices[0]
		if delta > 0 {
			r.Score += PriceDriftWeight
			r.Reasons = append(r.Reasons, fmt.Sprintf("Price increase: +%.4f", delta))
		}
	}

	if stacked := s.stackedBids(snap.Bids, last); stacked >= s.config.StackingThreshold {
		r.Score += StackingWeight
		r.Reasons = append(r.Reasons, fmt.Sprintf("Buy wall stacking detected (%d bids)", stacked))
	}

	return r
}

// stackedBids counts top-of-book bids strictly below last whose notional is strictly above the floor.
func (s Scorer) stackedBids(bids []models.BidLevel, last float64) int {
	if len(bids) > s.config.BidDepth {
		bids = bids[:s.config.BidDepth]
	}
	var n int
	for _, b := range bids {
		if b.Price < last && b.Notional() > s.config.NotionalFloor {
			n++
		}
	}
	return n
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
