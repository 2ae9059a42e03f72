package auth

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/identity-service/internal/model"
)

// AuditStore persists append-only audit entries, implemented by
// repository.AuditRepo.
type AuditStore interface {
	Insert(ctx context.Context, entry model.AuditLog) error
	ListRecent(ctx context.Context, limit, offset int) ([]model.AuditLog, error)
}

// AuditRecorder writes security events to the audit trail.  A failed
// write is logged and swallowed: audit is attempted before success is
// returned, but losing an audit row must never roll back an
// already-committed credential or session change.
type AuditRecorder struct {
	store AuditStore
}

func NewAuditRecorder(store AuditStore) *AuditRecorder {
	return &AuditRecorder{store: store}
}

// Record inserts one audit entry, stamping created_at.
func (r *AuditRecorder) Record(ctx context.Context, entry model.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		log.Printf("audit: insert failed for %s (user=%v): %v", entry.EventType, entry.UserID, err)
	}
}

// ListRecent exposes the trail for the admin endpoint.
func (r *AuditRecorder) ListRecent(ctx context.Context, limit, offset int) ([]model.AuditLog, error) {
	return r.store.ListRecent(ctx, limit, offset)
}
