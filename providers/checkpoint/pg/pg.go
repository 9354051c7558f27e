package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/providers/observability"
)

const defaultTableName = "devforge_checkpoints"

// Querier is the subset of pgx used by the store. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx satisfy it, and so does pgxmock in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements checkpoint.Store on PostgreSQL. Concurrency is handled by
// the connection pool; the store holds no lock of its own.
type Store struct {
	db        Querier
	tableName string
	indexName string
}

var _ checkpoint.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTableName overrides the table name. The name is quoted with
// pgx.Identifier because it is interpolated into the SQL text.
func WithTableName(name string) Option {
	return func(s *Store) {
		s.tableName = pgx.Identifier{name}.Sanitize()
		s.indexName = pgx.Identifier{"idx_" + name + "_run_sequence"}.Sanitize()
	}
}

// New returns a store using db.
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:        db,
		tableName: defaultTableName,
		indexName: "idx_" + defaultTableName + "_run_sequence",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save inserts cp. ON CONFLICT DO NOTHING plus the affected row count detects
// a duplicate without aborting an enclosing transaction.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	stateJSON, err := checkpoint.EncodeState(cp.State)
	if err != nil {
		return fmt.Errorf("pg checkpoint store: encode state: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (run_id, node, sequence, status, created_at, state)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, node) DO NOTHING`, s.tableName)

	tag, err := s.db.Exec(ctx, query, cp.RunID, cp.Node, cp.Sequence, cp.Status, cp.Timestamp.UTC(), stateJSON)
	if err != nil {
		return fmt.Errorf("pg checkpoint store: save %s/%s: %w", cp.RunID, cp.Node, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", checkpoint.ErrAlreadyExists, cp.RunID, cp.Node)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventCheckpointSaved,
			observability.String(observability.AttrCheckpointBackend, "postgres"),
			observability.String(observability.AttrGraphNode, cp.Node),
			observability.Int(observability.AttrGraphSequence, cp.Sequence),
		)
	}
	return nil
}

func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp        checkpoint.Checkpoint
		createdAt time.Time
		stateJSON []byte
	)
	if err := row.Scan(&cp.RunID, &cp.Node, &cp.Sequence, &cp.Status, &createdAt, &stateJSON); err != nil {
		return nil, err
	}
	cp.Timestamp = createdAt.UTC()

	values, err := checkpoint.DecodeState(stateJSON)
	if err != nil {
		return nil, err
	}
	cp.State = values
	return &cp, nil
}

// Load returns the checkpoint of node in runID.
func (s *Store) Load(ctx context.Context, runID, node string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT run_id, node, sequence, status, created_at, state
		FROM %s WHERE run_id = $1 AND node = $2`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRow(ctx, query, runID, node))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", checkpoint.ErrNotFound, runID, node)
	}
	if err != nil {
		return nil, fmt.Errorf("pg checkpoint store: load %s/%s: %w", runID, node, err)
	}
	return cp, nil
}

// Latest returns the checkpoint of runID with the highest sequence.
func (s *Store) Latest(ctx context.Context, runID string) (*checkpoint.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT run_id, node, sequence, status, created_at, state
		FROM %s WHERE run_id = $1 ORDER BY sequence DESC LIMIT 1`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", checkpoint.ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("pg checkpoint store: latest %s: %w", runID, err)
	}
	return cp, nil
}

// List returns node names of runID in sequence order.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	query := fmt.Sprintf(`SELECT node FROM %s WHERE run_id = $1 ORDER BY sequence ASC`, s.tableName)
	return s.strings(ctx, "list", query, runID)
}

// Delete removes every checkpoint of runID.
func (s *Store) Delete(ctx context.Context, runID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, s.tableName)
	if _, err := s.db.Exec(ctx, query, runID); err != nil {
		return fmt.Errorf("pg checkpoint store: delete %s: %w", runID, err)
	}
	return nil
}

// Runs returns distinct run IDs, sorted.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT run_id FROM %s ORDER BY run_id ASC`, s.tableName)
	return s.strings(ctx, "runs", query)
}

func (s *Store) strings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg checkpoint store: %s: %w", op, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pg checkpoint store: %s: %w", op, err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}
