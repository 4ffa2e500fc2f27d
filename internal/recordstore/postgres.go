package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps every record in one table keyed by (collection, id), with the
// document itself in a JSONB column so Query filters push down to SQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// Schema is the DDL the store expects. Applied by the operator or by
// EnsureSchema in tests; the store itself never migrates on the hot path.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS records_collection_idx ON records (collection);
`

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the records table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure records schema: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s/%s: %w", collection, id, err)
	}
	return record, nil
}

func (s *Postgres) Set(ctx context.Context, collection, id string, record []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO records (collection, id, document, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET document = $3, updated_at = now()`,
		collection, id, record,
	)
	if err != nil {
		return fmt.Errorf("postgres set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("postgres delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Query(ctx context.Context, collection string, filters []Filter) ([]Entry, error) {
	query := `SELECT id, document FROM records WHERE collection = $1`
	args := []any{collection}
	for _, f := range filters {
		args = append(args, f.Field, fmt.Sprintf("%v", f.Value))
		// JSONB ->> compares the text representation of the field.
		query += fmt.Sprintf(" AND document ->> $%d = $%d", len(args)-1, len(args))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", collection, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Data); err != nil {
			return nil, fmt.Errorf("postgres query %s: scan: %w", collection, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Postgres) Collections(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT collection FROM records WHERE collection LIKE $1 || '%' ORDER BY collection`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres collections: scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Postgres) DropCollection(ctx context.Context, collection string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("postgres drop %s: %w", collection, err)
	}
	return nil
}
