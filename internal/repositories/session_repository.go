package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/db"
)

// PostgresSessionStore persists refresh sessions in the sessions table.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

type sessionRow struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// Save upserts session. Sessions for unknown users fail with ErrNotFound.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	return s.exec(ctx, "upsert session", func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
            INSERT INTO sessions (refresh_token, user_id, expires_at)
            VALUES ($1, $2, $3)
            ON CONFLICT (refresh_token)
            DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
        `, session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
		return translatePgError(err)
	})
}

// Find loads the session for refreshToken or returns auth.ErrSessionNotFound.
func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	var session auth.Session
	err := s.exec(ctx, "select session", func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
            SELECT refresh_token, user_id, expires_at
            FROM sessions
            WHERE refresh_token = $1
        `, refreshToken)
		if err != nil {
			return err
		}
		row, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[sessionRow])
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		session = auth.Session{RefreshToken: row.RefreshToken, UserID: row.UserID, ExpiresAt: row.ExpiresAt.UTC()}
		return nil
	})
	return session, err
}

// Delete removes the session for refreshToken. Unknown tokens yield auth.ErrSessionNotFound.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	return s.exec(ctx, "delete session", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return auth.ErrSessionNotFound
		}
		return nil
	})
}

// DeleteExpired removes sessions that expired before now and reports how many were removed.
func (s *PostgresSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := s.exec(ctx, "delete expired sessions", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// exec runs fn on a pooled connection. Sentinel errors pass through; anything else
// is wrapped with op.
func (s *PostgresSessionStore) exec(ctx context.Context, op string, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = fn(conn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
