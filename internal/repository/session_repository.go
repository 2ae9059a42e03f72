package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/identity-service/internal/auth"
	"github.com/iliyamo/identity-service/internal/model"
)

// SessionRepo persists login sessions in the 'sessions' table.  Rows
// are never deleted; revocation flips revoked_at so the audit trail
// keeps a record of every login.  The refresh_jti column always holds
// the identifier of the one outstanding refresh token; rotation
// replaces it with a compare-and-swap.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionColumns = "id,user_id,refresh_jti,user_agent,ip_address,issued_at,expires_at,last_used_at,revoked_at,revoked_reason"

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_jti, user_agent, ip_address, issued_at, expires_at, last_used_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.UserID, s.RefreshJTI, s.UserAgent, s.IPAddress,
		s.IssuedAt.UTC(), s.ExpiresAt.UTC(), s.LastUsedAt.UTC())
	return err
}

// GetByID fetches a session by its UUID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (model.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", id))
}

// ListActive returns the user's live sessions ordered most recently
// used first.
func (r *SessionRepo) ListActive(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id=? AND revoked_at IS NULL AND expires_at>UTC_TIMESTAMP()
		 ORDER BY last_used_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Revoke marks one session as revoked.  Idempotent: revoking an
// already-revoked session keeps the original timestamp and reason.
func (r *SessionRepo) Revoke(ctx context.Context, id, reason string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=UTC_TIMESTAMP(), revoked_reason=? WHERE id=? AND revoked_at IS NULL",
		reason, id)
	return err
}

// RevokeAllForUser revokes every active session of a user in a single
// statement and reports how many were affected.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uint64, reason string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=UTC_TIMESTAMP(), revoked_reason=? WHERE user_id=? AND revoked_at IS NULL",
		reason, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RotateRefresh swaps the session's outstanding refresh token
// identifier from oldJTI to newJTI, sliding the expiry window and
// bumping last_used_at.  The WHERE clause is the compare-and-swap: it
// only matches a live session whose current jti is exactly the one
// being consumed, so of two concurrent rotations with the same token at
// most one returns true.
func (r *SessionRepo) RotateRefresh(ctx context.Context, id, oldJTI, newJTI string, expiresAt, lastUsedAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET refresh_jti=?, expires_at=?, last_used_at=?
		 WHERE id=? AND refresh_jti=? AND revoked_at IS NULL AND expires_at>UTC_TIMESTAMP()`,
		newJTI, expiresAt.UTC(), lastUsedAt.UTC(), id, oldJTI)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeExpired sweeps sessions whose expiry has passed, used by the
// maintenance loop so stale rows stop counting as active.
func (r *SessionRepo) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=?, revoked_reason='expired' WHERE revoked_at IS NULL AND expires_at<?",
		now.UTC(), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (model.Session, error) {
	var (
		s         model.Session
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshJTI, &s.UserAgent, &s.IPAddress,
		&s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &revokedAt, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, auth.ErrNotFound
		}
		return model.Session{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	s.RevokedReason = reason.String
	return s, nil
}

func scanSessionRows(rows *sql.Rows) (model.Session, error) {
	var (
		s         model.Session
		revokedAt sql.NullTime
		reason    sql.NullString
	)
	err := rows.Scan(&s.ID, &s.UserID, &s.RefreshJTI, &s.UserAgent, &s.IPAddress,
		&s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &revokedAt, &reason)
	if err != nil {
		return model.Session{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	s.RevokedReason = reason.String
	return s, nil
}
