// =============================
// File: internal/journal/journal.go
// =============================

// Package journal persists emitted engine events to SQLite so the event
// stream survives restarts and the monitor can replay it.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/snowball-dex/launchpad/internal/core"
)

// Journal is an append-only event store. It satisfies core.EventSink;
// Record never fails the caller, a write error is logged and dropped.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// The engine serializes writes; a single connection avoids table locks.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, logger: logger.Named("journal")}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		block INTEGER NOT NULL,
		at DATETIME NOT NULL,
		fields TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, at);
	CREATE INDEX IF NOT EXISTS idx_events_block ON events(block);
	`
	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one event. Called from inside engine entry points, so it
// must not call back into the engine and must not fail the trade that
// produced the event.
func (j *Journal) Record(ev core.Event) {
	fields, err := json.Marshal(ev.Fields)
	if err != nil {
		j.logger.Warn("unencodable event fields dropped",
			zap.String("type", ev.Type), zap.Error(err))
		fields = []byte("{}")
	}
	if _, err := j.db.Exec(
		`INSERT INTO events (id, type, block, at, fields) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.Block, ev.At.UTC(), string(fields),
	); err != nil {
		j.logger.Error("journal write failed",
			zap.String("type", ev.Type), zap.Error(err))
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]core.Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, block, at, fields FROM events
		 ORDER BY at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByType returns up to limit events of one type, newest first.
func (j *Journal) ByType(evType string, limit int) ([]core.Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, block, at, fields FROM events
		 WHERE type = ? ORDER BY at DESC, id DESC LIMIT ?`, evType, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SinceBlock returns events at or after the given block, oldest first.
func (j *Journal) SinceBlock(block uint64) ([]core.Event, error) {
	rows, err := j.db.Query(
		`SELECT id, type, block, at, fields FROM events
		 WHERE block >= ? ORDER BY block, at`, block,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Counts aggregates event totals per type.
func (j *Journal) Counts() (map[string]int64, error) {
	rows, err := j.db.Query(`SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var evType string
		var n int64
		if err := rows.Scan(&evType, &n); err != nil {
			return nil, err
		}
		counts[evType] = n
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]core.Event, error) {
	var events []core.Event
	for rows.Next() {
		var ev core.Event
		var at time.Time
		var fields string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Block, &at, &fields); err != nil {
			return nil, err
		}
		ev.At = at
		if err := json.Unmarshal([]byte(fields), &ev.Fields); err != nil {
			return nil, fmt.Errorf("decode event %s fields: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
