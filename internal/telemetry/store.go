// Package telemetry records local query metrics in SQLite. Nothing
// leaves the machine; the data backs the `dtagent status` report.
package telemetry

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DayuGuo/DEVONthink-agent/internal/search"
)

// Store persists search telemetry in a local SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ search.Recorder = (*Store)(nil)

// Summary aggregates recorded searches for display.
type Summary struct {
	TotalSearches   int     `json:"totalSearches"`
	ZeroResultCount int     `json:"zeroResultCount"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
	AvgResultCount  float64 `json:"avgResultCount"`

	// PathCounts maps path name to how many searches executed it.
	PathCounts map[string]int `json:"pathCounts"`
}

// Open creates or opens the telemetry database at path and ensures the
// schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// One writer at a time keeps modernc's file locking simple.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS searches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		paths TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// RecordSearch logs one search. Failures are logged and swallowed so
// telemetry can never break the search path.
func (s *Store) RecordSearch(query string, paths []search.Path, resultCount int, duration time.Duration) {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = string(p)
	}

	_, err := s.db.Exec(`
		INSERT INTO searches (query, paths, result_count, duration_ms)
		VALUES (?, ?, ?, ?)
	`, query, strings.Join(names, ","), resultCount, float64(duration.Microseconds())/1000.0)
	if err != nil {
		s.logger.Warn("failed to record search telemetry", "error", err)
	}
}

// Summarize aggregates all recorded searches.
func (s *Store) Summarize() (*Summary, error) {
	summary := &Summary{PathCounts: make(map[string]int)}

	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN result_count = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(AVG(result_count), 0)
		FROM searches
	`)
	if err := row.Scan(&summary.TotalSearches, &summary.ZeroResultCount,
		&summary.AvgDurationMs, &summary.AvgResultCount); err != nil {
		return nil, fmt.Errorf("aggregate searches: %w", err)
	}

	rows, err := s.db.Query(`SELECT paths FROM searches`)
	if err != nil {
		return nil, fmt.Errorf("query search paths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var paths string
		if err := rows.Scan(&paths); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if paths == "" {
			continue
		}
		for _, p := range strings.Split(paths, ",") {
			summary.PathCounts[p]++
		}
	}
	return summary, rows.Err()
}

// RecentZeroResultQueries returns the latest queries that found
// nothing, most recent first.
func (s *Store) RecentZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT query FROM searches
		WHERE result_count = 0
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result searches: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
