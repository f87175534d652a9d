package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Connect opens a Postgres connection pool.
func Connect(dataSourceName string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// PostgresRepository implements Repository by storing each document as a
// JSONB row keyed by id.
type PostgresRepository[T any] struct {
	db    *sqlx.DB
	table string
}

type documentRow struct {
	ID  string `db:"id"`
	Doc []byte `db:"doc"`
}

// NewPostgresRepository creates the backing table if it does not exist.
func NewPostgresRepository[T any](ctx context.Context, db *sqlx.DB, table string) (*PostgresRepository[T], error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`, table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", table, err)
	}

	return &PostgresRepository[T]{db: db, table: table}, nil
}

// Get retrieves a document by id.
func (r *PostgresRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	var raw []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", r.table)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s %q: %w", r.table, id, err)
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %q: %w", r.table, id, err)
	}
	return &doc, nil
}

// Put inserts or replaces a document.
func (r *PostgresRepository[T]) Put(ctx context.Context, id string, doc *T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %q: %w", r.table, id, err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO UPDATE SET doc = $2, updated_at = now()",
		r.table,
	)
	if _, err := r.db.ExecContext(ctx, query, id, raw); err != nil {
		return fmt.Errorf("failed to save %s %q: %w", r.table, id, err)
	}
	return nil
}

// Update locks id for the length of a transaction, so concurrent updates of
// the same document, including its first insert, run one at a time.
func (r *PostgresRepository[T]) Update(ctx context.Context, id string, fn UpdateFunc[T]) (*T, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin %s transaction: %w", r.table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", r.table+":"+id); err != nil {
		return nil, fmt.Errorf("failed to lock %s %q: %w", r.table, id, err)
	}

	var current *T
	var raw []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1 FOR UPDATE", r.table)
	err = tx.QueryRowxContext(ctx, query, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get %s %q: %w", r.table, id, err)
	default:
		current = new(T)
		if err := json.Unmarshal(raw, current); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %q: %w", r.table, id, err)
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	raw, err = json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s %q: %w", r.table, id, err)
	}
	upsert := fmt.Sprintf(
		"INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO UPDATE SET doc = $2, updated_at = now()",
		r.table,
	)
	if _, err := tx.ExecContext(ctx, upsert, id, raw); err != nil {
		return nil, fmt.Errorf("failed to save %s %q: %w", r.table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s %q: %w", r.table, id, err)
	}
	return next, nil
}

// Delete removes a document, returning ErrNotFound if it does not exist.
func (r *PostgresRepository[T]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", r.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", r.table, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every document ordered by id.
func (r *PostgresRepository[T]) List(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf("SELECT id, doc FROM %s ORDER BY id", r.table)
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	defer rows.Close()

	var docs []*T
	for rows.Next() {
		var row documentRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.table, err)
		}
		var doc T
		if err := json.Unmarshal(row.Doc, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %q: %w", r.table, row.ID, err)
		}
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return docs, nil
}
