// Package journal is an append-only audit trail of session notifications.
// Entries are never read back into a session.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tycoon/internal/clock"
	"tycoon/internal/notify"

	"github.com/google/uuid"
)

var ErrInvalidEntry = errors.New("journal entry requires a session id and a kind")

type Entry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	SessionID    uuid.UUID       `json:"session_id" db:"session_id"`
	Kind         string          `json:"kind" db:"kind"`
	ElapsedHours int64           `json:"elapsed_hours" db:"elapsed_hours"`
	SimTime      string          `json:"sim_time" db:"sim_time"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	RecordedAt   time.Time       `json:"recorded_at" db:"recorded_at"`
}

func (e Entry) validate() error {
	if e.SessionID == uuid.Nil || strings.TrimSpace(e.Kind) == "" {
		return ErrInvalidEntry
	}
	return nil
}

// NewEntry stamps an envelope with the session and the simulation time it was
// observed at.
func NewEntry(sessionID uuid.UUID, at clock.Time, env notify.Envelope) (Entry, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s payload: %w", env.Type, err)
	}
	recorded := env.At
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	return Entry{
		ID:           uuid.New(),
		SessionID:    sessionID,
		Kind:         env.Type,
		ElapsedHours: at.Elapsed,
		SimTime:      at.String(),
		Payload:      payload,
		RecordedAt:   recorded,
	}, nil
}

type Store interface {
	Append(ctx context.Context, entries []Entry) error
	List(ctx context.Context, sessionID uuid.UUID, limit int) ([]Entry, error)
	Close() error
}

// Open picks Postgres when databaseURL is set, else SQLite at sqlitePath.
// With neither, entries are discarded.
func Open(ctx context.Context, databaseURL, sqlitePath string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.TrimSpace(databaseURL) != "":
		store, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("journal backed by postgres")
		return store, nil
	case strings.TrimSpace(sqlitePath) != "":
		store, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("journal backed by sqlite", "path", sqlitePath)
		return store, nil
	default:
		logger.Warn("no journal store configured; notifications are not recorded")
		return Discard{}, nil
	}
}

type Discard struct{}

func (Discard) Append(context.Context, []Entry) error { return nil }
func (Discard) List(context.Context, uuid.UUID, int) ([]Entry, error) {
	return nil, nil
}
func (Discard) Close() error { return nil }
