package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. There are no
// migrations; a mismatched database must be rebuilt.
const schemaVersion = 1

// ErrSchemaMismatch reports a database written by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	version, ok, err := storedSchemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if !ok {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
			return err
		})
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: %s has version %d, quill expects %d (move it aside to start a fresh queue)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}

// storedSchemaVersion reads the recorded version. ok is false on a fresh
// database without the schema_version table.
func storedSchemaVersion(ctx context.Context, q dbtx) (version int, ok bool, err error) {
	var tables int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&tables); err != nil {
		return 0, false, err
	}
	if tables == 0 {
		return 0, false, nil
	}
	if err := q.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return 0, false, err
	}
	return version, true, nil
}
