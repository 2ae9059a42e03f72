package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/identity-service/internal/model"
)

// AuditRepo appends to the 'audit_logs' table.  The application only
// ever inserts and reads; rows are never updated or deleted here.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert writes one audit entry.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditLog) error {
	var userID interface{}
	if e.UserID != nil {
		userID = *e.UserID
	}
	var sessionID interface{}
	if e.SessionID != "" {
		sessionID = e.SessionID
	}
	var detail interface{}
	if e.Detail != "" {
		detail = e.Detail
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (event_type, user_id, username, session_id, ip_address, user_agent, success, description, detail, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		string(e.EventType), userID, e.Username, sessionID,
		e.IPAddress, e.UserAgent, e.Success, e.Description, detail, e.CreatedAt.UTC())
	return err
}

// ListRecent returns audit entries newest first, paginated.
func (r *AuditRepo) ListRecent(ctx context.Context, limit, offset int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, event_type, user_id, username, session_id, ip_address, user_agent, success, description, detail, created_at
		 FROM audit_logs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var (
			e         model.AuditLog
			eventType string
			userID    sql.NullInt64
			sessionID sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&e.ID, &eventType, &userID, &e.Username, &sessionID,
			&e.IPAddress, &e.UserAgent, &e.Success, &e.Description, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = model.AuditEvent(eventType)
		if userID.Valid {
			id := uint64(userID.Int64)
			e.UserID = &id
		}
		e.SessionID = sessionID.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}
