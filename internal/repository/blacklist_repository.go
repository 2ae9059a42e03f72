package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// BlacklistRepo is the durable fallback behind the Redis blacklist.  It
// stores revoked token identifiers in the 'blacklisted_tokens' table
// until their natural expiry, at which point PurgeExpired deletes them
// (an expired token fails signature validation anyway).
type BlacklistRepo struct{ DB *sql.DB }

func NewBlacklistRepo(db *sql.DB) *BlacklistRepo { return &BlacklistRepo{DB: db} }

// Add inserts a revoked token identifier.  Re-adding the same jti is a
// no-op; the first revocation wins.
func (r *BlacklistRepo) Add(ctx context.Context, e model.BlacklistedToken) error {
	var sessionID interface{}
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO blacklisted_tokens (jti, token_type, user_id, session_id, expires_at, revoked_reason)
		 VALUES (?,?,?,?,?,?)`,
		e.JTI, e.TokenType, e.UserID, sessionID, e.ExpiresAt.UTC(), e.Reason)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return nil
	}
	return err
}

// Contains reports whether a jti is blacklisted and not yet past its
// recorded expiry.
func (r *BlacklistRepo) Contains(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM blacklisted_tokens WHERE jti=? AND expires_at>UTC_TIMESTAMP() LIMIT 1",
		jti).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PurgeExpired deletes entries whose tokens have expired.
func (r *BlacklistRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM blacklisted_tokens WHERE expires_at<?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
