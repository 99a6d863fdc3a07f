package models

import (
	"errors"
	"strings"
	"time"
)

const (
	// ReasonSeparator joins alert reasons in durable records.
	ReasonSeparator = "; "
	// TimeLayout is the UTC timestamp format used in alert text and CSV rows.
	TimeLayout = "2006-01-02 15:04:05"
)

// Alert is a symbol whose suspicion score reached the alert threshold in one cycle.
type Alert struct {
	ID         string
	DetectedAt time.Time
	Symbol     string
	Score      int
	Reasons    []string
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.Symbol == "" {
		return errors.New("alert symbol must not be empty")
	}
	if a.Score < 0 {
		return errors.New("alert score must not be negative")
	}
	if a.DetectedAt.IsZero() {
		return errors.New("alert detection time must be set")
	}
	return nil
}

// JoinedReasons returns the reasons as one semicolon separated string.
func (a *Alert) JoinedReasons() string {
	return strings.Join(a.Reasons, ReasonSeparator)
}

// SplitReasons is the inverse of JoinedReasons.
func SplitReasons(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ReasonSeparator)
}
