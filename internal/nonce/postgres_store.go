package nonce

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists consumed nonces in Postgres so replicas share the
// consumed set. Atomicity comes from the primary key: the first insert wins
// and conflicting inserts affect zero rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Register consumes the nonce via INSERT ... ON CONFLICT DO NOTHING.
func (s *PostgresStore) Register(ctx context.Context, nonce string, seenAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO consumed_nonces (nonce, seen_at)
		VALUES ($1, $2)
		ON CONFLICT (nonce) DO NOTHING
	`, nonce, seenAt)
	if err != nil {
		return fmt.Errorf("register nonce: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("register nonce: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNonceUsed
	}
	return nil
}

// Sweep deletes nonces consumed before the cutoff.
func (s *PostgresStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM consumed_nonces WHERE seen_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("sweep nonces: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep nonces: rows affected: %w", err)
	}
	return int(n), nil
}
