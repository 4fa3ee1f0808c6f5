package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const paymentSessionsSchema = `
CREATE TABLE IF NOT EXISTS payment_sessions (
	session_id   TEXT PRIMARY KEY,
	email        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
)`

// PostgresRegistry stores checkout sessions in the payment_sessions table.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, paymentSessionsSchema); err != nil {
		return fmt.Errorf("failed to create payment_sessions: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Create(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (session_id, email, status, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET email = EXCLUDED.email, status = EXCLUDED.status, created_at = EXCLUDED.created_at
	`, rec.SessionID, rec.Email, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment session: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Get(ctx context.Context, sessionID string) (Record, bool, error) {
	var rec Record
	var completedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, email, status, created_at, completed_at
		FROM payment_sessions WHERE session_id = $1
	`, sessionID).Scan(&rec.SessionID, &rec.Email, &rec.Status, &rec.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query payment session: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, true, nil
}

// Complete relies on the WHERE clause of the upsert: a row that is already
// completed is left alone and reports zero affected rows.
func (r *PostgresRegistry) Complete(ctx context.Context, sessionID, email string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (session_id, email, status, created_at, completed_at)
		VALUES ($1, $2, 'completed', $3, $3)
		ON CONFLICT (session_id) DO UPDATE
		SET status = 'completed',
		    completed_at = EXCLUDED.completed_at,
		    email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE payment_sessions.email END
		WHERE payment_sessions.status <> 'completed'
	`, sessionID, email, at)
	if err != nil {
		return false, fmt.Errorf("failed to complete payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRegistry) SetStatus(ctx context.Context, sessionID, status string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (session_id, status, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE payment_sessions.status <> 'completed'
	`, sessionID, status)
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	return nil
}
