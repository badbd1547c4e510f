// Package datastore persists registered users in a SQLite database so they
// survive server restarts. Live session state is never persisted.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/0xkonsti/chat-go/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for registered users.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Busy timeout avoids "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		username   TEXT    PRIMARY KEY CHECK(length(username) > 0 AND length(username) <= 32),
		pw_hash    BLOB    NOT NULL,
		salt       BLOB    NOT NULL,
		level      INTEGER NOT NULL DEFAULT 0 CHECK(level >= 0 AND level <= 2),
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveUser inserts a new user. Fails if the username is taken.
func (s *Store) SaveUser(u *model.User) error {
	if err := model.ValidateUsername(u.Name); err != nil {
		return fmt.Errorf("datastore: save user: %w", err)
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO users (username, pw_hash, salt, level, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Name, u.PasswordHash, u.Salt, int(u.Level), u.CreatedAt.UTC().Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("datastore: save user %s: %w", u.Name, err)
	}
	return nil
}

// UpsertUser inserts a user or replaces an existing record's credentials
// and level. Used by the admin bootstrap command.
func (s *Store) UpsertUser(u *model.User) error {
	if err := model.ValidateUsername(u.Name); err != nil {
		return fmt.Errorf("datastore: upsert user: %w", err)
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO users (username, pw_hash, salt, level, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET pw_hash = excluded.pw_hash, salt = excluded.salt, level = excluded.level`,
		u.Name, u.PasswordHash, u.Salt, int(u.Level), u.CreatedAt.UTC().Format(dbTimeLayout))
	if err != nil {
		return fmt.Errorf("datastore: upsert user %s: %w", u.Name, err)
	}
	return nil
}

// UserByName returns the named user, or nil if absent.
func (s *Store) UserByName(name string) (*model.User, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT username, pw_hash, salt, level, created_at FROM users WHERE username = ?`, name)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get user %s: %w", name, err)
	}
	return u, nil
}

// ListUsers returns all registered users ordered by name.
func (s *Store) ListUsers() ([]*model.User, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT username, pw_hash, salt, level, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	return users, nil
}

func scanUser(scan func(...any) error) (*model.User, error) {
	var u model.User
	var level int
	var createdAt string
	if err := scan(&u.Name, &u.PasswordHash, &u.Salt, &level, &createdAt); err != nil {
		return nil, err
	}
	u.Level = model.Level(level)
	if t, err := time.Parse(dbTimeLayout, createdAt); err == nil {
		u.CreatedAt = t.UTC()
	}
	return &u, nil
}
