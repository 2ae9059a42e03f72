package auth

import (
	"context"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// LockoutStore is the slice of the user store the guard needs.  All
// three operations must be atomic against the backing row so that
// concurrent failed logins never under-count and lockout engages
// exactly once per storm.
type LockoutStore interface {
	// IncrementFailedLogins adds one to the counter and returns the new value.
	IncrementFailedLogins(ctx context.Context, userID uint64) (int, error)
	// EngageLockout sets locked_until and resets the counter, guarded so
	// that only one of several racing callers observes engaged=true.
	EngageLockout(ctx context.Context, userID uint64, until time.Time, threshold int) (engaged bool, err error)
	// ResetFailedLogins clears the counter and lockout and stamps last login.
	ResetFailedLogins(ctx context.Context, userID uint64) error
}

// LockoutGuard counts failed login attempts per account and enforces a
// temporary lockout once the configured threshold is reached.
type LockoutGuard struct {
	store     LockoutStore
	threshold int
	duration  time.Duration
}

// NewLockoutGuard builds a guard with the configured threshold and
// lockout duration.
func NewLockoutGuard(store LockoutStore, threshold int, duration time.Duration) *LockoutGuard {
	return &LockoutGuard{store: store, threshold: threshold, duration: duration}
}

// RecordFailure registers one failed attempt.  When the counter reaches
// the threshold the account is locked until now+duration and the counter
// resets; engaged is true only for the caller that actually tripped the
// lock.
func (g *LockoutGuard) RecordFailure(ctx context.Context, userID uint64) (engaged bool, until time.Time, err error) {
	count, err := g.store.IncrementFailedLogins(ctx, userID)
	if err != nil {
		return false, time.Time{}, err
	}
	if count < g.threshold {
		return false, time.Time{}, nil
	}
	until = time.Now().UTC().Add(g.duration)
	engaged, err = g.store.EngageLockout(ctx, userID, until, g.threshold)
	if err != nil {
		return false, time.Time{}, err
	}
	return engaged, until, nil
}

// RecordSuccess resets the failure counter after a successful login.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, userID uint64) error {
	return g.store.ResetFailedLogins(ctx, userID)
}

// IsLocked reports whether the account row is inside its lockout window.
func IsLocked(u model.User, now time.Time) (bool, time.Time) {
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return true, *u.LockedUntil
	}
	return false, time.Time{}
}
