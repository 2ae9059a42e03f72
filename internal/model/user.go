package model

import "time"

// Role enumerates the closed set of account roles.  The values are
// stored verbatim in the `users.role` column and embedded into access
// tokens, so they must remain stable.
type Role string

const (
    RoleAdmin Role = "ADMIN"
    RoleUser  Role = "USER"
    RoleGuest Role = "GUEST"
)

// Valid reports whether the role is one of the known values.  Unknown
// strings coming from tokens or the database must never be trusted.
func (r Role) Valid() bool {
    switch r {
    case RoleAdmin, RoleUser, RoleGuest:
        return true
    }
    return false
}

// Capability names an action that a role may or may not perform.
// Authorization checks go through Role.Can rather than comparing role
// strings at call sites.
type Capability string

const (
    CapViewAuditLog     Capability = "view_audit_log"
    CapRevokeAnySession Capability = "revoke_any_session"
    CapManageSessions   Capability = "manage_sessions"
)

// Can reports whether the role grants the given capability.  Guests can
// do nothing beyond holding a token; regular users manage only their own
// sessions; admins additionally read the audit trail and revoke any
// session.
func (r Role) Can(c Capability) bool {
    switch r {
    case RoleAdmin:
        return true
    case RoleUser:
        return c == CapManageSessions
    default:
        return false
    }
}

// User represents an account record as stored in the `users` table.
// Each field corresponds to a column.  PasswordHash holds a bcrypt
// digest; the plaintext credential is never stored or logged.
//
// Fields:
//  ID                  – primary key identifier of the user.
//  Email               – unique, normalized (lower-cased) email address.
//  Username            – unique handle.
//  PasswordHash        – bcrypt hashed password.
//  Role                – account role (ADMIN/USER/GUEST).
//  IsActive            – whether the account may log in at all.
//  IsVerified          – whether the email address has been confirmed.
//  FailedLoginAttempts – consecutive failed login counter (reset on success).
//  LockedUntil         – end of the lockout window (null when not locked).
//  LastLoginAt         – timestamp of the most recent successful login.
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type User struct {
    ID                  uint64     // users.id
    Email               string     // users.email
    Username            string     // users.username
    PasswordHash        string     // users.password_hash
    Role                Role       // users.role
    IsActive            bool       // users.is_active
    IsVerified          bool       // users.is_verified
    FailedLoginAttempts int        // users.failed_login_attempts
    LockedUntil         *time.Time // users.locked_until (nullable)
    LastLoginAt         *time.Time // users.last_login_at (nullable)
    CreatedAt           time.Time  // users.created_at
    UpdatedAt           time.Time  // users.updated_at
}
