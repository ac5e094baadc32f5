package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS fix_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT NOT NULL,
		language TEXT NOT NULL,
		cwe TEXT NOT NULL,
		model_used TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fix_metrics_cwe ON fix_metrics(cwe);
`

// SQLiteSink stores records in a SQLite table for ad hoc queries.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteSink opens or creates the database at path.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating metrics dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening metrics database: %w", err)
	}
	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating metrics schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

// Write inserts one row.
func (s *SQLiteSink) Write(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fix_metrics (recorded_at, language, cwe, model_used, input_tokens, output_tokens, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.now().UTC().Format(time.RFC3339Nano),
		r.Language, r.CWE, r.ModelUsed,
		r.InputTokens, r.OutputTokens, r.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("inserting metrics row: %w", err)
	}
	return nil
}

// CWESummary aggregates stored records for one CWE.
type CWESummary struct {
	CWE          string
	Fixes        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMS float64
}

// SummaryByCWE returns per-CWE totals, most frequent first.
func (s *SQLiteSink) SummaryByCWE(ctx context.Context) ([]CWESummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cwe, COUNT(*), SUM(input_tokens), SUM(output_tokens), AVG(latency_ms)
		FROM fix_metrics
		GROUP BY cwe
		ORDER BY COUNT(*) DESC, cwe ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying metrics summary: %w", err)
	}
	defer rows.Close()

	var out []CWESummary
	for rows.Next() {
		var c CWESummary
		if err := rows.Scan(&c.CWE, &c.Fixes, &c.InputTokens, &c.OutputTokens, &c.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scanning metrics summary: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
