package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/iliyamo/identity-service/internal/auth"       // blacklist needed by the JWT middleware
    "github.com/iliyamo/identity-service/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/identity-service/internal/middleware" // import middleware for JWT authentication and role enforcement
    "github.com/iliyamo/identity-service/internal/model"      // capability constants for admin routes
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
    // Load balancers and monitoring probe this endpoint.
    e.GET("/healthz", handler.Health)
}

// RegisterAuth wires up all authentication routes.  Unauthenticated
// operations live under /v1/auth and sit behind the rate limiter, since
// login and forgot-password are the natural targets for abuse.
// Protected endpoints live under /v1 behind the JWTAuth middleware,
// which verifies the access token signature, type and blacklist state.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, s *handler.SessionHandler, adm *handler.AuditHandler,
    jwtSecret string, bl *auth.Blacklist, ratelimit echo.MiddlewareFunc) {

    // Public auth operations: no session required.
    g := e.Group("/v1/auth")
    if ratelimit != nil {
        g.Use(ratelimit)
    }
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    // Rotates the refresh token; the presented one is consumed either way.
    g.POST("/refresh", a.Refresh)
    g.POST("/verify-email", a.VerifyEmail)
    g.POST("/forgot-password", a.ForgotPassword)
    g.POST("/reset-password", a.ResetPassword)

    // Protected endpoints: a valid, non-blacklisted access token is
    // required.  Role checks happen per route below, not globally.
    protected := e.Group("/v1")
    protected.Use(middleware.JWTAuth(jwtSecret, bl))
    protected.GET("/me", a.Me)
    // Logout needs the verified access claims to know which token to
    // blacklist and which session to close, so it lives here rather
    // than under /v1/auth.
    protected.POST("/logout", a.Logout)
    protected.GET("/sessions", s.List)
    protected.DELETE("/sessions/:id", s.Revoke)

    // Admin surface: audit trail access is capability-gated.
    admin := e.Group("/v1/admin")
    admin.Use(middleware.JWTAuth(jwtSecret, bl))
    admin.Use(middleware.RequireCapability(model.CapViewAuditLog))
    admin.GET("/audit", adm.List)
}
