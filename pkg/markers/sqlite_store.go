package markers

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dbFileName is the marker database file inside the store root.
const dbFileName = "markers.db"

// SQLiteStore is the marker store backed by a SQLite database under a single
// root directory. Concurrent writers of the same key are not coordinated;
// callers serialize per container through the engine lock.
type SQLiteStore struct {
	db   *sql.DB
	root string
}

// Open creates the store root directory if needed, opens the database and
// runs schema migrations.
func Open(ctx context.Context, root string) (*SQLiteStore, error) {
	if root == "" {
		return nil, fmt.Errorf("marker store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create marker root: %w", err)
	}

	path := filepath.Join(root, dbFileName)
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open marker database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping marker database: %w", err)
	}

	s := &SQLiteStore{db: db, root: root}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Root returns the store root directory.
func (s *SQLiteStore) Root() string {
	return s.root
}

// migrate applies the embedded schema migrations.
func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Exists reports whether a marker has been recorded for key.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM markers WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query marker: %w", err)
	}
	return true, nil
}

// Record durably stores a marker for key. Recording an existing key refreshes
// its owner and timestamp; the binary existence contract is unchanged.
func (s *SQLiteStore) Record(ctx context.Context, key, owner string) error {
	query := `
		INSERT INTO markers (key, owner, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, owner, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record marker %s: %w", key, err)
	}
	return nil
}

// Revoke removes the marker for key. Revoking an absent key is not an error.
func (s *SQLiteStore) Revoke(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to revoke marker %s: %w", key, err)
	}
	return nil
}

// RevokeByPrefix removes every marker whose key starts with prefix and returns
// the number removed.
func (s *SQLiteStore) RevokeByPrefix(ctx context.Context, prefix string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM markers WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to revoke markers with prefix %s: %w", prefix, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// List returns the markers whose keys start with prefix, ordered by key.
// An empty prefix lists everything.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, owner, created_at
		FROM markers
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list markers: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Owner, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate markers: %w", err)
	}
	return records, nil
}

// Teardown closes the store and removes the entire store root. The root is
// never auto-pruned; this is the explicit teardown path.
func (s *SQLiteStore) Teardown() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove marker root: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so prefixes match literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
