// Package storage provides the durable, append-only alert log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/pumpwatch/internal/models"
)

// AlertLog is implemented by every backend.
type AlertLog interface {
	AddAlert(alert *models.Alert) error
	GetRecentAlerts(k int) ([]models.Alert, error)
	Close() error
}

// Storage wraps a SQL database holding the alerts table.
type Storage struct {
	db     *sql.DB
	driver string
}

// New opens or creates the database. driver is "sqlite" or "postgres".
// For sqlite, dsn is a file path; an empty path defaults to $TMPDIR/pumpwatch/alerts.db.
func New(driver, dsn string) (*Storage, error) {
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join(os.TempDir(), "pumpwatch", "alerts.db")
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Storage{db: db, driver: driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id          TEXT PRIMARY KEY,
			detected_at BIGINT NOT NULL,
			symbol      TEXT NOT NULL,
			score       INTEGER NOT NULL,
			reasons     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Storage) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Storage) AddAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	_, err := s.db.Exec(s.rebind(`
		INSERT INTO alerts (id, detected_at, symbol, score, reasons)
		VALUES (?,?,?,?,?)`),
		alert.ID, alert.DetectedAt.UnixNano(), alert.Symbol, alert.Score, alert.JoinedReasons(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetRecentAlerts returns up to k alerts, newest first.
func (s *Storage) GetRecentAlerts(k int) ([]models.Alert, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(s.rebind(`
		SELECT id, detected_at, symbol, score, reasons
		FROM alerts ORDER BY detected_at DESC LIMIT ?`), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var detectedAtNano int64
		var reasons string
		if err := rows.Scan(&a.ID, &detectedAtNano, &a.Symbol, &a.Score, &reasons); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.DetectedAt = time.Unix(0, detectedAtNano).UTC()
		a.Reasons = models.SplitReasons(reasons)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
