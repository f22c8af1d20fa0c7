// Package store keeps the per-day activity history in SQLite.
//
// The live state file only carries the daily map forward; this database
// is the queryable long-term record. Each checkpoint mirrors the current
// daily totals into it, so the history survives even if the state file
// is lost.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fingermon/internal/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_stats (
    date            TEXT PRIMARY KEY,
    total_keys      INTEGER NOT NULL DEFAULT 0,
    total_clicks    INTEGER NOT NULL DEFAULT 0,
    total_distance  REAL    NOT NULL DEFAULT 0,
    total_scroll    INTEGER NOT NULL DEFAULT 0,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats(date);
`

// DayRecord is one row of the daily history.
type DayRecord struct {
	Date     string  `json:"date"`
	Keys     uint64  `json:"keys"`
	Clicks   uint64  `json:"clicks"`
	Distance float64 `json:"distance"`
	Scroll   uint64  `json:"scroll"`
}

// Store is the SQLite-backed history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertDays writes per-day totals, replacing existing rows for the same
// dates. Totals are absolute, not deltas, so re-running an upsert is
// harmless.
func (s *Store) UpsertDays(days map[string]stats.DayTotals) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_stats (date, total_keys, total_clicks, total_distance, total_scroll, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_keys = excluded.total_keys,
			total_clicks = excluded.total_clicks,
			total_distance = excluded.total_distance,
			total_scroll = excluded.total_scroll,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for date, d := range days {
		if _, err := stmt.Exec(date, d.Keys, d.Clicks, d.Distance, d.Scroll, now); err != nil {
			return fmt.Errorf("upsert day %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Day returns the record for one date, or nil if absent.
func (s *Store) Day(date string) (*DayRecord, error) {
	var rec DayRecord
	err := s.db.QueryRow(`
		SELECT date, total_keys, total_clicks, total_distance, total_scroll
		FROM daily_stats WHERE date = ?`, date,
	).Scan(&rec.Date, &rec.Keys, &rec.Clicks, &rec.Distance, &rec.Scroll)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query day: %w", err)
	}
	return &rec, nil
}

// RecentDays returns up to n most recent days, newest first.
func (s *Store) RecentDays(n int) ([]DayRecord, error) {
	rows, err := s.db.Query(`
		SELECT date, total_keys, total_clicks, total_distance, total_scroll
		FROM daily_stats ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent days: %w", err)
	}
	defer rows.Close()

	var out []DayRecord
	for rows.Next() {
		var rec DayRecord
		if err := rows.Scan(&rec.Date, &rec.Keys, &rec.Clicks, &rec.Distance, &rec.Scroll); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Totals sums the whole history.
func (s *Store) Totals() (DayRecord, error) {
	var rec DayRecord
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(total_keys), 0),
		       COALESCE(SUM(total_clicks), 0),
		       COALESCE(SUM(total_distance), 0),
		       COALESCE(SUM(total_scroll), 0)
		FROM daily_stats`,
	).Scan(&rec.Keys, &rec.Clicks, &rec.Distance, &rec.Scroll)
	if err != nil {
		return rec, fmt.Errorf("query totals: %w", err)
	}
	return rec, nil
}

// DayCount returns how many days have history rows.
func (s *Store) DayCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_stats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count days: %w", err)
	}
	return n, nil
}
