package handler

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/identity-service/internal/auth"
)

// AuditHandler serves the security audit trail to admins.
type AuditHandler struct {
    Audit *auth.AuditRecorder
}

func NewAuditHandler(a *auth.AuditRecorder) *AuditHandler {
    return &AuditHandler{Audit: a}
}

// List returns audit entries newest first.  Query params: limit
// (default 100, max 1000) and offset.  Route registration guards this
// behind the view-audit-log capability.
func (h *AuditHandler) List(c echo.Context) error {
    limit, _ := strconv.Atoi(c.QueryParam("limit"))
    offset, _ := strconv.Atoi(c.QueryParam("offset"))

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    entries, err := h.Audit.ListRecent(ctx, limit, offset)
    if err != nil {
        c.Logger().Errorf("audit list: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"entries": entries, "count": len(entries)})
}
