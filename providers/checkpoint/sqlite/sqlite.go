package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/providers/observability"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed checkpoint store.
type Store struct {
	db *sql.DB
}

var _ checkpoint.Store = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
// It is safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite checkpoint store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite checkpoint store: connect: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite checkpoint store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("sqlite checkpoint store: %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save inserts cp. A second checkpoint for the same run and node is rejected.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	stateJSON, err := checkpoint.EncodeState(cp.State)
	if err != nil {
		return fmt.Errorf("sqlite checkpoint store: encode state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, node, sequence, status, created_at, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, node) DO NOTHING`,
		cp.RunID, cp.Node, cp.Sequence, cp.Status,
		cp.Timestamp.UTC().Format(time.RFC3339Nano), string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite checkpoint store: save %s/%s: %w", cp.RunID, cp.Node, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite checkpoint store: save %s/%s: %w", cp.RunID, cp.Node, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", checkpoint.ErrAlreadyExists, cp.RunID, cp.Node)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventCheckpointSaved,
			observability.String(observability.AttrCheckpointBackend, "sqlite"),
			observability.String(observability.AttrGraphNode, cp.Node),
			observability.Int(observability.AttrGraphSequence, cp.Sequence),
		)
	}
	return nil
}

const selectColumns = `SELECT run_id, node, sequence, status, created_at, state FROM checkpoints`

func scanCheckpoint(row *sql.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp        checkpoint.Checkpoint
		createdAt string
		stateJSON string
	)
	if err := row.Scan(&cp.RunID, &cp.Node, &cp.Sequence, &cp.Status, &createdAt, &stateJSON); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite checkpoint store: parse timestamp %q: %w", createdAt, err)
	}
	cp.Timestamp = ts

	cp.State, err = checkpoint.DecodeState([]byte(stateJSON))
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Load returns the checkpoint of node in runID.
func (s *Store) Load(ctx context.Context, runID, node string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE run_id = ? AND node = ?`, runID, node)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", checkpoint.ErrNotFound, runID, node)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite checkpoint store: load %s/%s: %w", runID, node, err)
	}
	return cp, nil
}

// Latest returns the checkpoint of runID with the highest sequence.
func (s *Store) Latest(ctx context.Context, runID string) (*checkpoint.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE run_id = ? ORDER BY sequence DESC LIMIT 1`, runID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", checkpoint.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite checkpoint store: latest %s: %w", runID, err)
	}
	return cp, nil
}

// List returns node names of runID in sequence order.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	return s.strings(ctx, `SELECT node FROM checkpoints WHERE run_id = ? ORDER BY sequence ASC`, runID)
}

// Delete removes every checkpoint of runID.
func (s *Store) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("sqlite checkpoint store: delete %s: %w", runID, err)
	}
	return nil
}

// Runs returns distinct run IDs, sorted.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT run_id FROM checkpoints ORDER BY run_id ASC`)
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite checkpoint store: query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite checkpoint store: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
