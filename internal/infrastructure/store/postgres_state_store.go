package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// notifyChannel carries the changed key as payload.
const notifyChannel = "extension_state_changed"

// PostgresStateStore stores the extension state in PostgreSQL
//
//	CREATE TABLE extension_state (
//	    key        TEXT PRIMARY KEY,
//	    value      JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStateStore struct {
	db      *sql.DB
	connStr string
}

// NewPostgresStateStore wraps db. connStr is only needed by Watch, which
// opens its own LISTEN connection; pass "" to disable watching.
func NewPostgresStateStore(db *sql.DB, connStr string) *PostgresStateStore {
	return &PostgresStateStore{db: db, connStr: connStr}
}

// EnsureSchema creates the state table if it does not exist.
func (s *PostgresStateStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS extension_state (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func (s *PostgresStateStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM extension_state WHERE key = $1",
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set upserts all entries in one transaction and notifies listeners once it
// commits.
func (s *PostgresStateStore) Set(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for k, v := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extension_state (key, value, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			k, v, now,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM extension_state WHERE key = ANY($1)",
		pq.Array(keys),
	); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Watch LISTENs for change notifications from every writer of the table.
func (s *PostgresStateStore) Watch(ctx context.Context, onChange func(keys []string)) error {
	if s.connStr == "" {
		return fmt.Errorf("postgres state store: watch needs a connection string")
	}

	listener := pq.NewListener(s.connStr, time.Second, time.Minute, nil)
	defer listener.Close()

	if err := listener.Listen(notifyChannel); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			// nil after a reconnect; notifications may have been missed
			if n == nil {
				onChange([]string{KeySnippets, KeyTier})
				continue
			}
			onChange([]string{strings.TrimSpace(n.Extra)})
		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
