package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	conn *sqlx.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		elapsed_hours INTEGER NOT NULL,
		sim_time TEXT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_session ON journal_entries(session_id, elapsed_hours);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO journal_entries
		(id, session_id, kind, elapsed_hours, sim_time, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
		_, err := stmt.ExecContext(ctx,
			e.ID.String(), e.SessionID.String(), e.Kind,
			e.ElapsedHours, e.SimTime, string(e.Payload), e.RecordedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

type sqliteRow struct {
	ID           string `db:"id"`
	SessionID    string `db:"session_id"`
	Kind         string `db:"kind"`
	ElapsedHours int64  `db:"elapsed_hours"`
	SimTime      string `db:"sim_time"`
	Payload      string `db:"payload"`
	RecordedAt   int64  `db:"recorded_at"`
}

// List returns the newest entries for a session, oldest first.
func (s *SQLiteStore) List(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []sqliteRow
	err := s.conn.SelectContext(ctx, &rows, `SELECT id, session_id, kind, elapsed_hours, sim_time, payload, recorded_at
		FROM journal_entries WHERE session_id = ?
		ORDER BY elapsed_hours DESC, recorded_at DESC, rowid DESC LIMIT ?`, sessionID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}

	out := make([]Entry, len(rows))
	for i, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out[len(rows)-1-i] = e
	}
	return out, nil
}

func (r sqliteRow) entry() (Entry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("entry id %q: %w", r.ID, err)
	}
	sid, err := uuid.Parse(r.SessionID)
	if err != nil {
		return Entry{}, fmt.Errorf("entry session %q: %w", r.SessionID, err)
	}
	return Entry{
		ID:           id,
		SessionID:    sid,
		Kind:         r.Kind,
		ElapsedHours: r.ElapsedHours,
		SimTime:      r.SimTime,
		Payload:      []byte(r.Payload),
		RecordedAt:   time.Unix(0, r.RecordedAt).UTC(),
	}, nil
}
