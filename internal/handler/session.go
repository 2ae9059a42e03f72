package handler

import (
    "context"  // request-scoped timeouts
    "net/http" // status codes
    "strings"  // path param trimming
    "time"     // timeouts and response timestamps

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/identity-service/internal/auth"
    "github.com/iliyamo/identity-service/internal/model"
)

// SessionHandler exposes the caller's active sessions: list for the
// "where am I logged in" view, revoke for "log out that device".
type SessionHandler struct {
    Svc *auth.Service
}

func NewSessionHandler(svc *auth.Service) *SessionHandler {
    return &SessionHandler{Svc: svc}
}

type sessionPart struct {
    ID         string     `json:"id"`
    UserAgent  string     `json:"user_agent"`
    IPAddress  string     `json:"ip_address"`
    IssuedAt   time.Time  `json:"issued_at"`
    ExpiresAt  time.Time  `json:"expires_at"`
    LastUsedAt time.Time  `json:"last_used_at"`
    Current    bool       `json:"current"`
}

// List returns the caller's active sessions, most recently used first.
// The session behind the presented access token is flagged as current.
func (h *SessionHandler) List(c echo.Context) error {
    userID, ok := c.Get("user_id").(uint64)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    current, _ := c.Get("session_id").(string)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    sessions, err := h.Svc.ListSessions(ctx, userID)
    if err != nil {
        return writeAuthError(c, err)
    }

    out := make([]sessionPart, 0, len(sessions))
    for _, s := range sessions {
        out = append(out, sessionPart{
            ID:         s.ID,
            UserAgent:  s.UserAgent,
            IPAddress:  s.IPAddress,
            IssuedAt:   s.IssuedAt,
            ExpiresAt:  s.ExpiresAt,
            LastUsedAt: s.LastUsedAt,
            Current:    s.ID == current,
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// Revoke terminates one session by id.  Users may revoke their own
// sessions; admins may revoke anyone's.  A session the caller may not
// touch answers 404, indistinguishable from one that does not exist.
func (h *SessionHandler) Revoke(c echo.Context) error {
    userID, ok := c.Get("user_id").(uint64)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    role, _ := c.Get("role").(string)

    sessionID := strings.TrimSpace(c.Param("id"))
    if sessionID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "session id is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Svc.RevokeSession(ctx, userID, model.Role(role), sessionID, c.RealIP(), c.Request().UserAgent()); err != nil {
        return writeAuthError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
