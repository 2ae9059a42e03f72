package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/identity-service/internal/auth"
	"github.com/iliyamo/identity-service/internal/model"
)

// UserRepo persists accounts in the 'users' table.  It also implements
// the lockout counter operations; all of them are single atomic SQL
// statements so concurrent failed logins never lose updates.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,username,password_hash,role,is_active,is_verified,failed_login_attempts,locked_until,last_login_at,created_at,updated_at"

// Create inserts a new unverified user and returns the stored row.
// Uniqueness of email and username is enforced by the table's unique
// indexes; violations map to the auth taxonomy.
func (r *UserRepo) Create(ctx context.Context, email, username, passwordHash string, role model.Role) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role) VALUES (?,?,?,?)",
		email, username, passwordHash, string(role))
	if err != nil {
		if msg := strings.ToLower(err.Error()); strings.Contains(msg, "1062") {
			if strings.Contains(msg, "username") {
				return model.User{}, auth.ErrUsernameExists
			}
			return model.User{}, auth.ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByUsername fetches a user by handle.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetVerified marks the account's email address as confirmed.
func (r *UserRepo) SetVerified(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=1 WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdatePassword replaces the stored credential hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// IncrementFailedLogins adds one to the failure counter in a single
// UPDATE and reads the result back.  The increment itself can never be
// lost to a concurrent writer.
func (r *UserRepo) IncrementFailedLogins(ctx context.Context, id uint64) (int, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=failed_login_attempts+1 WHERE id=?", id); err != nil {
		return 0, err
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT failed_login_attempts FROM users WHERE id=? LIMIT 1", id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, auth.ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

// EngageLockout sets locked_until and resets the counter, guarded so
// that of several racing callers that all saw the threshold, exactly
// one observes engaged=true (the others find the counter already reset
// or the lock already in place).
func (r *UserRepo) EngageLockout(ctx context.Context, id uint64, until time.Time, threshold int) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET locked_until=?, failed_login_attempts=0
		 WHERE id=? AND failed_login_attempts>=? AND (locked_until IS NULL OR locked_until<UTC_TIMESTAMP())`,
		until.UTC(), id, threshold)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetFailedLogins clears the counter and any lockout after a
// successful login and stamps last_login_at.
func (r *UserRepo) ResetFailedLogins(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=0, locked_until=NULL, last_login_at=UTC_TIMESTAMP() WHERE id=?", id)
	return err
}

func (r *UserRepo) scanUser(row *sql.Row) (model.User, error) {
	var (
		u           model.User
		role        string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &role,
		&u.IsActive, &u.IsVerified, &u.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, auth.ErrNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
