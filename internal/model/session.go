package model

import "time"

// Session models one authenticated device/login in the `sessions`
// table.  A session is created on login, its refresh token identifier
// is rotated on every refresh, and it is marked revoked on logout or
// explicit revocation.  Rows are never deleted by the application so
// the audit trail stays intact; expired rows are swept by the
// background maintenance loop.
//
// Fields:
//  ID            – CHAR(36) UUID primary key, embedded into tokens as `sid`.
//  UserID        – owning user.
//  RefreshJTI    – identifier of the currently outstanding refresh token.
//                  Rotation replaces it with a compare-and-swap, which is
//                  what makes concurrent refresh attempts resolve to at
//                  most one winner.
//  UserAgent     – device/user-agent string captured at login.
//  IPAddress     – originating address (supports IPv6).
//  IssuedAt      – when the session was created.
//  ExpiresAt     – when the session stops accepting refreshes.
//  LastUsedAt    – bumped on every successful refresh.
//  RevokedAt     – when the session was revoked (null while active).
//  RevokedReason – short human-readable reason for revocation.
type Session struct {
    ID            string     // sessions.id
    UserID        uint64     // sessions.user_id
    RefreshJTI    string     // sessions.refresh_jti
    UserAgent     string     // sessions.user_agent
    IPAddress     string     // sessions.ip_address
    IssuedAt      time.Time  // sessions.issued_at
    ExpiresAt     time.Time  // sessions.expires_at
    LastUsedAt    time.Time  // sessions.last_used_at
    RevokedAt     *time.Time // sessions.revoked_at (nullable)
    RevokedReason string     // sessions.revoked_reason
}

// Active reports whether the session can still be used for refreshing
// at the given instant.
func (s Session) Active(now time.Time) bool {
    return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
