package pg

import (
	"context"
	"fmt"
)

// createTableSQL creates the checkpoint table. The UNIQUE constraint makes
// checkpoints immutable: a second save for the same node conflicts.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id         BIGSERIAL PRIMARY KEY,
    run_id     TEXT        NOT NULL,
    node       TEXT        NOT NULL,
    sequence   INTEGER     NOT NULL,
    status     TEXT        NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    state      JSONB       NOT NULL DEFAULT '{}'::jsonb,
    UNIQUE (run_id, node)
)`

const createRunSequenceIndexSQL = `CREATE INDEX IF NOT EXISTS %s
    ON %s (run_id, sequence)`

// EnsureSchema creates the table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createTableSQL, s.tableName)); err != nil {
		return fmt.Errorf("pg checkpoint store: create table: %w", err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createRunSequenceIndexSQL, s.indexName, s.tableName)); err != nil {
		return fmt.Errorf("pg checkpoint store: create index: %w", err)
	}
	return nil
}
