package model

import "time"

// AuditEvent classifies security-relevant transitions written to the
// audit trail.  The string values are stored in `audit_logs.event_type`
// and must remain stable.
type AuditEvent string

const (
    AuditUserRegistered         AuditEvent = "USER_REGISTERED"
    AuditLoginSuccess           AuditEvent = "LOGIN_SUCCESS"
    AuditLoginFailed            AuditEvent = "LOGIN_FAILED"
    AuditAccountLocked          AuditEvent = "ACCOUNT_LOCKED"
    AuditTokenRefreshed         AuditEvent = "TOKEN_REFRESHED"
    AuditTokenReuseDetected     AuditEvent = "TOKEN_REUSE_DETECTED"
    AuditLogout                 AuditEvent = "LOGOUT"
    AuditSessionRevoked         AuditEvent = "SESSION_REVOKED"
    AuditEmailVerified          AuditEvent = "EMAIL_VERIFIED"
    AuditPasswordResetRequested AuditEvent = "PASSWORD_RESET_REQUESTED"
    AuditPasswordResetCompleted AuditEvent = "PASSWORD_RESET_COMPLETED"
    AuditUnauthorizedAccess     AuditEvent = "UNAUTHORIZED_ACCESS"
)

// AuditLog is an immutable row in the append-only `audit_logs` table.
// The application only ever inserts; retention and archival are an
// operational concern.  UserID is nullable because pre-auth events
// (e.g. a login attempt against an unknown email) have no account to
// reference.
type AuditLog struct {
    ID          uint64     // audit_logs.id
    EventType   AuditEvent // audit_logs.event_type
    UserID      *uint64    // audit_logs.user_id (nullable)
    Username    string     // audit_logs.username (kept even if the user is later deleted)
    SessionID   string     // audit_logs.session_id (empty when not session-bound)
    IPAddress   string     // audit_logs.ip_address
    UserAgent   string     // audit_logs.user_agent
    Success     bool       // audit_logs.success
    Description string     // audit_logs.description
    Detail      string     // audit_logs.detail (optional JSON blob)
    CreatedAt   time.Time  // audit_logs.created_at
}
