package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rewired-gh/pumpwatch/internal/models"
)

var csvHeader = []string{"Time", "Symbol", "Suspicion Score", "Reasons"}

// CSVLog appends alerts to a CSV file. The header is written only when the
// file is created or empty; existing content is never rewritten.
type CSVLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVLog opens path for appending, creating it and its directory if needed.
func NewCSVLog(path string) (*CSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat csv log: %w", err)
	}

	l := &CSVLog{path: path, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.writeRecord(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	return l, nil
}

func (l *CSVLog) writeRecord(record []string) error {
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *CSVLog) AddAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.writeRecord([]string{
		alert.DetectedAt.UTC().Format(models.TimeLayout),
		alert.Symbol,
		strconv.Itoa(alert.Score),
		alert.JoinedReasons(),
	})
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// GetRecentAlerts reads the file back and returns up to k alerts, newest first.
// CSV rows carry no id.
func (l *CSVLog) GetRecentAlerts(k int) ([]models.Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	var alerts []models.Alert
	first := true
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv log: %w", err)
		}
		if first {
			first = false
			if record[0] == csvHeader[0] {
				continue
			}
		}
		a, err := alertFromRecord(record)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	// newest first
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	if k < 0 {
		k = 0
	}
	if len(alerts) > k {
		alerts = alerts[:k]
	}
	return alerts, nil
}

func alertFromRecord(record []string) (models.Alert, error) {
	detectedAt, err := time.Parse(models.TimeLayout, record[0])
	if err != nil {
		return models.Alert{}, fmt.Errorf("invalid time %q: %w", record[0], err)
	}
	score, err := strconv.Atoi(record[2])
	if err != nil {
		return models.Alert{}, fmt.Errorf("invalid score %q: %w", record[2], err)
	}
	return models.Alert{
		DetectedAt: detectedAt,
		Symbol:     record[1],
		Score:      score,
		Reasons:    models.SplitReasons(record[3]),
	}, nil
}

func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.file.Close()
}
