package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/tradecopier/internal/domain"
	"github.com/alejandrodnm/tradecopier/internal/ports"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS copy_events (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	at            TIMESTAMP NOT NULL,
	kind          TEXT NOT NULL,
	symbol        TEXT NOT NULL DEFAULT '',
	source_id     TEXT NOT NULL DEFAULT '',
	donor_ticket  INTEGER NOT NULL DEFAULT 0,
	client_ticket INTEGER NOT NULL DEFAULT 0,
	volume        REAL NOT NULL DEFAULT 0,
	price         REAL NOT NULL DEFAULT 0,
	detail        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_copy_events_session ON copy_events(session_id, at);
CREATE INDEX IF NOT EXISTS idx_copy_events_donor ON copy_events(donor_ticket);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	cycles      INTEGER NOT NULL DEFAULT 0,
	copies      INTEGER NOT NULL DEFAULT 0,
	closes      INTEGER NOT NULL DEFAULT 0,
	close_bys   INTEGER NOT NULL DEFAULT 0,
	reprices    INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteJournal registra eventos de copia y resúmenes de sesión en SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos del diario. Usar
// ":memory:" en tests.
func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", dsn, err)
	}

	// modernc.org/sqlite serializa las escrituras; una sola conexión evita
	// SQLITE_BUSY bajo acceso concurrente.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: create schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Close cierra la base de datos.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// RecordEvent inserta una entrada del diario.
func (j *SQLiteJournal) RecordEvent(ctx context.Context, ev domain.CopyEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO copy_events (id, session_id, at, kind, symbol, source_id, donor_ticket, client_ticket, volume, price, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, at, string(ev.Kind), ev.Symbol, ev.SourceID,
		ev.DonorTicket, ev.ClientTicket, ev.Volume, ev.Price, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("storage.SQLiteJournal.RecordEvent: %w", err)
	}
	return nil
}

// SaveSessionSummary hace upsert de los totales acumulados de una sesión.
func (j *SQLiteJournal) SaveSessionSummary(ctx context.Context, s domain.SessionSummary) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, finished_at, cycles, copies, closes, close_bys, reprices)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			cycles      = excluded.cycles,
			copies      = excluded.copies,
			closes      = excluded.closes,
			close_bys   = excluded.close_bys,
			reprices    = excluded.reprices`,
		s.SessionID, s.StartedAt, s.FinishedAt, s.Cycles, s.Copies, s.Closes, s.CloseBys, s.Reprices,
	)
	if err != nil {
		return fmt.Errorf("storage.SQLiteJournal.SaveSessionSummary: %w", err)
	}
	return nil
}

// EventsBySession devuelve los eventos de una sesión en orden cronológico.
func (j *SQLiteJournal) EventsBySession(ctx context.Context, sessionID string) ([]domain.CopyEvent, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, at, kind, symbol, source_id, donor_ticket, client_ticket, volume, price, detail
		FROM copy_events WHERE session_id = ? ORDER BY at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage.SQLiteJournal.EventsBySession: %w", err)
	}
	defer rows.Close()

	var events []domain.CopyEvent
	for rows.Next() {
		var ev domain.CopyEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.At, &kind, &ev.Symbol, &ev.SourceID,
			&ev.DonorTicket, &ev.ClientTicket, &ev.Volume, &ev.Price, &ev.Detail); err != nil {
			return nil, fmt.Errorf("storage.SQLiteJournal.EventsBySession: scan: %w", err)
		}
		ev.Kind = domain.CopyEventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ ports.Journal = (*SQLiteJournal)(nil)
