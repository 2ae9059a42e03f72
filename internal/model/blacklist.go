package model

import "time"

// Token type labels carried in the `typ` claim and recorded alongside
// blacklist entries.
const (
    TokenTypeAccess  = "access"
    TokenTypeRefresh = "refresh"
    TokenTypeVerify  = "verify"
    TokenTypeReset   = "reset"
)

// BlacklistedToken records a revoked token identifier until its natural
// expiry.  Only the jti is stored, never the token itself.  Entries
// live in Redis with a TTL when the cache is reachable and in the
// `blacklisted_tokens` table otherwise; past ExpiresAt they are safe to
// purge because the signature check rejects the token anyway.
type BlacklistedToken struct {
    JTI       string    // blacklisted_tokens.jti
    TokenType string    // blacklisted_tokens.token_type ('access'/'refresh'/...)
    UserID    uint64    // blacklisted_tokens.user_id
    SessionID string    // blacklisted_tokens.session_id (empty when unbound)
    ExpiresAt time.Time // blacklisted_tokens.expires_at
    Reason    string    // blacklisted_tokens.revoked_reason
}
