package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ExportSQLite writes records into the events table of the SQLite database at
// path, creating it if needed. Existing rows with the same id are replaced.
func ExportSQLite(ctx context.Context, path string, records []EventRecord) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open event db: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate event db: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO events (id, at, kind, subject, detail) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.At.UTC().Format(time.RFC3339Nano), r.Kind, r.Subject, r.Detail); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	return nil
}

// LoadSQLite reads every record back from an exported database, ordered by id.
func LoadSQLite(ctx context.Context, path string) ([]EventRecord, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, "SELECT id, at, kind, subject, detail FROM events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var at string
		if err := rows.Scan(&r.ID, &at, &r.Kind, &r.Subject, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("event %s time %q: %w", r.ID, at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id      TEXT PRIMARY KEY,
			at      TEXT NOT NULL,
			kind    TEXT NOT NULL,
			subject TEXT NOT NULL,
			detail  TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}
