package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is the §6 table-backed Adapter: a single table
//
//	key TEXT PRIMARY KEY, value BLOB, created_at INT, updated_at INT
//
// plus an index on updated_at, exactly as spec.md §6 "Persisted layout"
// describes. Accessed via database/sql and the pure-Go modernc.org/sqlite
// driver (no cgo), matching getployz-ployz's choice of the same driver for
// its own durable state.
type SQLite struct {
	db    *sql.DB
	table string
}

// NewSQLite opens (creating if necessary) a SQLite-backed adapter at path.
// Pass ":memory:" for an ephemeral database useful in tests that still want
// to exercise the real SQL path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &ErrUnavailable{Op: "open", Err: err}
	}
	return &SQLite{db: db, table: "nodes"}, nil
}

func (s *SQLite) Initialize(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_updated_at ON %s (updated_at)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &ErrUnavailable{Op: "initialize", Err: err}
		}
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, key string, node StoredNode) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, node.Data, node.CreatedAt, node.UpdatedAt); err != nil {
		return &ErrUnavailable{Op: "put", Err: err}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string) (StoredNode, bool, error) {
	query := fmt.Sprintf(`SELECT key, value, created_at, updated_at FROM %s WHERE key = ?`, s.table)
	row := s.db.QueryRowContext(ctx, query, key)

	var n StoredNode
	if err := row.Scan(&n.Key, &n.Data, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return StoredNode{}, false, nil
		}
		return StoredNode{}, false, &ErrUnavailable{Op: "get", Err: err}
	}
	return n, true, nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return &ErrUnavailable{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE key = ? LIMIT 1`, s.table)
	row := s.db.QueryRowContext(ctx, query, key)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, &ErrUnavailable{Op: "exists", Err: err}
	}
	return true, nil
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT key FROM %s`, s.table)
	args := []any{}
	if prefix != "" {
		query = fmt.Sprintf(`SELECT key FROM %s WHERE key LIKE ? ESCAPE '\'`, s.table)
		args = append(args, escapeLike(prefix)+"%")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ErrUnavailable{Op: "keys", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &ErrUnavailable{Op: "keys", Err: err}
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return &ErrUnavailable{Op: "clear", Err: err}
	}
	return nil
}

// Vacuum is the optimization primitive spec.md §6 calls for: it rewrites
// the database file to reclaim space freed by deletes.
func (s *SQLite) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return &ErrUnavailable{Op: "vacuum", Err: err}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// escapeLike escapes SQL LIKE wildcards in a prefix supplied by the caller.
func escapeLike(prefix string) string {
	r := strings.NewReplacer("%", "\\%", "_", "\\_")
	return r.Replace(prefix)
}
