// Package sqlite persists an audit log of analyst interactions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Interaction is one question/answer exchange with the analyst service.
type Interaction struct {
	ID           string
	Question     string
	TraceID      string
	Status       string // ok, request_failed, dispatch_failed
	Duration     time.Duration
	Response     json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
}

// Interaction statuses.
const (
	StatusOK             = "ok"
	StatusRequestFailed  = "request_failed"
	StatusDispatchFailed = "dispatch_failed"
)

// Store is a SQLite-backed interaction log.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the interaction database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			trace_id TEXT,
			status TEXT NOT NULL,
			duration_ns INTEGER,
			response TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_status ON interactions(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveInteraction records one exchange. A missing ID is filled in.
func (s *Store) SaveInteraction(ctx context.Context, in *Interaction) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	var response, traceID, errorMessage sql.NullString
	if len(in.Response) > 0 {
		response = sql.NullString{String: string(in.Response), Valid: true}
	}
	if in.TraceID != "" {
		traceID = sql.NullString{String: in.TraceID, Valid: true}
	}
	if in.ErrorMessage != "" {
		errorMessage = sql.NullString{String: in.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, question, trace_id, status, duration_ns, response, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Question, traceID, in.Status, in.Duration.Nanoseconds(), response, errorMessage, in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}
	return nil
}

// RecentInteractions lists the newest interactions, most recent first.
func (s *Store) RecentInteractions(ctx context.Context, limit int) ([]*Interaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, trace_id, status, duration_ns, response, error_message, created_at
		FROM interactions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var result []*Interaction
	for rows.Next() {
		var in Interaction
		var traceID, response, errorMessage sql.NullString
		var durationNS int64

		if err := rows.Scan(&in.ID, &in.Question, &traceID, &in.Status, &durationNS, &response, &errorMessage, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		in.TraceID = traceID.String
		in.ErrorMessage = errorMessage.String
		in.Duration = time.Duration(durationNS)
		if response.Valid {
			in.Response = json.RawMessage(response.String)
		}
		result = append(result, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
