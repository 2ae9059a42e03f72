// Package queue defines message payloads exchanged over the message broker.
package queue

// Email event kinds routed through the auth.email queue.
const (
    EmailKindVerification  = "verification"
    EmailKindPasswordReset = "password_reset"
)

// EmailEvent is published whenever the auth core needs an email sent:
// account verification after registration and password reset links.
// Delivery is fire-and-forget from the core's perspective; the consumer
// owns retries.  The event carries no credential material, only the
// already-signed single-purpose link.
type EmailEvent struct {
    Kind        string `json:"kind"` // "verification" | "password_reset"
    UserID      uint64 `json:"user_id"`
    Email       string `json:"email"`
    Username    string `json:"username"`
    Link        string `json:"link"`
    RequestedAt string `json:"requested_at"`
}
