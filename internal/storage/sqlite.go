package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const objectSchemaSQL = `
CREATE TABLE IF NOT EXISTS objects (
	path       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Provider on a single SQLite database, one row per object.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(objectSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) read(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM objects WHERE path = ?`, cleanKey(p)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: read %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// ReadObjectAsString returns the content of an object.
func (s *SQLite) ReadObjectAsString(ctx context.Context, p string) (string, error) {
	data, err := s.read(ctx, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetReadableStream returns a reader over the object.
func (s *SQLite) GetReadableStream(ctx context.Context, p string, rng *Range) (io.ReadCloser, error) {
	data, err := s.read(ctx, p)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		start := min(rng.Start, int64(len(data)))
		end := min(rng.End+1, int64(len(data)))
		data = data[start:max(start, end)]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// WriteObject inserts or replaces an object.
func (s *SQLite) WriteObject(ctx context.Context, p string, data string) error {
	_, err := s.WriteObjectFromReadable(ctx, p, strings.NewReader(data))
	return err
}

// WriteObjectFromReadable reads r fully and upserts it as an object.
func (s *SQLite) WriteObjectFromReadable(ctx context.Context, p string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", p, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO objects (path, data, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data       = excluded.data,
			size       = excluded.size,
			updated_at = excluded.updated_at
	`, cleanKey(p), data, len(data), time.Now())
	if err != nil {
		return 0, fmt.Errorf("storage: write %s: %w", p, err)
	}
	return int64(len(data)), nil
}

// RemoveObject deletes an object.
func (s *SQLite) RemoveObject(ctx context.Context, p string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM objects WHERE path = ?`, cleanKey(p))
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: delete %s: %w", p, ErrNotFound)
	}
	return nil
}

// ListDirectory returns the direct children of a folder.
func (s *SQLite) ListDirectory(ctx context.Context, p string) ([]string, error) {
	prefix := folderPrefix(p)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT path FROM objects WHERE substr(path, 1, ?) = ? ORDER BY path`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", p, err)
	}
	defer rows.Close()

	names := []string{}
	seen := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 && prefix != "" {
		return nil, fmt.Errorf("storage: list %s: %w", p, ErrNotFound)
	}
	return names, nil
}

// GetFileSize returns the size of an object.
func (s *SQLite) GetFileSize(ctx context.Context, p string) (int64, error) {
	var size int64
	err := s.conn.QueryRowContext(ctx, `SELECT size FROM objects WHERE path = ?`, cleanKey(p)).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("storage: stat %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return size, nil
}

// GetFolderSize sums the sizes of all objects below a folder.
func (s *SQLite) GetFolderSize(ctx context.Context, p string) (int64, error) {
	prefix := folderPrefix(p)
	var count, total int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(size), 0) FROM objects WHERE substr(path, 1, ?) = ?`,
		len(prefix), prefix).Scan(&count, &total)
	if err != nil {
		return 0, fmt.Errorf("storage: folder size %s: %w", p, err)
	}
	if count == 0 && prefix != "" {
		return 0, fmt.Errorf("storage: folder size %s: %w", p, ErrNotFound)
	}
	return total, nil
}

// JoinPath joins path segments.
func (s *SQLite) JoinPath(segments ...string) string {
	return JoinPath(segments...)
}

func folderPrefix(p string) string {
	if k := cleanKey(p); k != "" {
		return k + "/"
	}
	return ""
}
