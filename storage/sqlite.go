package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"argus/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enriched_alerts (
	id           TEXT PRIMARY KEY,
	document     TEXT NOT NULL,
	is_malicious INTEGER NOT NULL,
	threat_score INTEGER NOT NULL,
	enriched_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enriched_alerts_enriched_at ON enriched_alerts(enriched_at);
CREATE INDEX IF NOT EXISTS idx_enriched_alerts_is_malicious ON enriched_alerts(is_malicious);
`

// SQLiteSink persists enriched alerts to a local SQLite file. The full record
// is stored as a JSON document with the verdict columns broken out for
// querying. WAL mode allows concurrent reads against the single writer.
type SQLiteSink struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteSink opens (and if needed creates) the database at path.
func NewSQLiteSink(path string, logger *zap.SugaredLogger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// WAL mode supports one writer; serialize writes in the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Infow("Opened SQLite enrichment store", "path", path)
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Store inserts one enrichment record. Records are append-only; inserting an
// existing ID fails with ErrDuplicateAlert.
func (s *SQLiteSink) Store(ctx context.Context, alert *core.EnrichedAlert) error {
	document, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal enriched alert: %w", err)
	}

	malicious := 0
	if alert.IsMalicious {
		malicious = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enriched_alerts (id, document, is_malicious, threat_score, enriched_at) VALUES (?, ?, ?, ?, ?)`,
		alert.ID, string(document), malicious, alert.ThreatScore, alert.EnrichedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("failed to insert enriched alert: %w", err)
	}
	return nil
}

// GetByID fetches a single enrichment record.
func (s *SQLiteSink) GetByID(ctx context.Context, id string) (*core.EnrichedAlert, error) {
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM enriched_alerts WHERE id = ?`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch enriched alert: %w", err)
	}

	var alert core.EnrichedAlert
	if err := json.Unmarshal([]byte(document), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enriched alert: %w", err)
	}
	return &alert, nil
}

// Recent returns the newest enrichment records, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]*core.EnrichedAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM enriched_alerts ORDER BY enriched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query enriched alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*core.EnrichedAlert
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan enriched alert: %w", err)
		}
		var alert core.EnrichedAlert
		if err := json.Unmarshal([]byte(document), &alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enriched alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, rows.Err()
}

// CountMalicious returns the number of stored records flagged malicious.
func (s *SQLiteSink) CountMalicious(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enriched_alerts WHERE is_malicious = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count malicious alerts: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
