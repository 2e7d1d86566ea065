package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vidgate/internal/identity/models"
)

// PostgresStore persists revoked token JTIs in PostgreSQL. Unlike the
// Redis ledger, Postgres has no native expiry, so the reaper's
// DeleteExpired does real work here.
//
// Schema:
//
//	CREATE TABLE token_revocations (
//	    jti         TEXT PRIMARY KEY,
//	    identity_id UUID NOT NULL,
//	    reason      TEXT NOT NULL,
//	    revoked_at  TIMESTAMPTZ NOT NULL,
//	    expires_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX token_revocations_expires_at_idx ON token_revocations (expires_at);
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke upserts a ledger entry; ON CONFLICT keeps a jti unique.
func (s *PostgresStore) Revoke(ctx context.Context, token models.RevokedToken) error {
	if token.JTI == "" {
		return nil
	}
	query := `
		INSERT INTO token_revocations (jti, identity_id, reason, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO UPDATE SET
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.ExecContext(ctx, query,
		token.JTI, token.IdentityID.String(), string(token.Reason), token.RevokedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks if a token is in the revocation ledger. An entry past
// its natural expiry reads as not revoked even before the sweep.
func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM token_revocations WHERE jti = $1`, jti).Scan(&expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	if s.clock().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

// DeleteExpired reclaims entries whose natural expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM token_revocations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep token revocations: %w", err)
	}
	return int(affected), nil
}
