// Package auth implements the authentication core: credential checks,
// token issuance and rotation, session tracking, blacklisting, lockout
// and audit logging.  It knows nothing about HTTP; handlers translate
// its errors into wire responses.
package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors making up the failure taxonomy of the auth core.
// Handlers map these to protocol responses; the orchestrator records the
// precise cause in the audit trail even where the caller only ever sees
// a uniform "invalid credentials".
var (
	// ErrValidation covers malformed input that survived transport-level
	// checks (empty fields, bad email shape).
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials is returned for unknown identities and wrong
	// passwords alike, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked marks a temporarily locked account.  Use
	// AccountLockedError to carry the retry-after hint; errors.Is against
	// this sentinel still matches.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrAccountDisabled is returned for deactivated accounts.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrEmailNotVerified is returned when login requires a confirmed
	// email and the account has none.
	ErrEmailNotVerified = errors.New("email not verified")

	// Token-level failures.  All of them surface to transport callers as
	// a uniform "could not validate credentials"; they stay distinct here
	// for audit detail.
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token signature invalid")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenBlacklisted = errors.New("token revoked")

	// ErrSessionRevoked is returned when a refresh token references a
	// session that is revoked or past its expiry.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrTokenReuse signals that an already-rotated refresh token was
	// presented again: treated as theft, the whole session is revoked.
	ErrTokenReuse = errors.New("refresh token reuse detected")

	// Registration conflicts.
	ErrEmailExists    = errors.New("email already registered")
	ErrUsernameExists = errors.New("username already taken")

	// ErrNotFound is returned by lookups for missing users or sessions.
	ErrNotFound = errors.New("not found")
)

// AccountLockedError carries the lockout deadline so transport can emit
// a retry-after hint.  It matches ErrAccountLocked under errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account temporarily locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is lets errors.Is(err, ErrAccountLocked) succeed on the typed error.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter returns the remaining lockout window, floored at zero.
func (e *AccountLockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
