package handler

import (
    "context"  // request-scoped timeouts for orchestrator calls
    "errors"   // sentinel error matching
    "net/http" // HTTP status codes and primitives
    "strconv"  // Retry-After header formatting
    "strings"  // string manipulation utilities
    "time"     // timeouts and expiry timestamps

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/identity-service/internal/auth"  // auth orchestrator and error taxonomy
    "github.com/iliyamo/identity-service/internal/model" // row types for responses
    "github.com/iliyamo/identity-service/internal/utils" // password policy error, claims type
)

// AuthHandler bundles dependencies for auth endpoints.  It is a thin
// adapter: bind and sanity-check the payload, call the orchestrator,
// map its errors onto HTTP responses via writeAuthError.
type AuthHandler struct {
    Svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
    return &AuthHandler{Svc: svc}
}

// ----- DTOs -----

type registerReq struct {
    Email    string `json:"email"`
    Username string `json:"username"`
    Password string `json:"password"`
}
type loginReq struct {
    EmailOrUsername string `json:"email_or_username"`
    Password        string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}
type logoutReq struct {
    All bool `json:"all"`
}
type verifyEmailReq struct {
    Token string `json:"token"`
}
type forgotPasswordReq struct {
    Email string `json:"email"`
}
type resetPasswordReq struct {
    Token       string `json:"token"`
    NewPassword string `json:"new_password"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID         uint64 `json:"id"`
    Email      string `json:"email"`
    Username   string `json:"username"`
    Role       string `json:"role"`
    IsVerified bool   `json:"is_verified"`
}

func toUserPart(u model.User) userPart {
    return userPart{ID: u.ID, Email: u.Email, Username: u.Username, Role: string(u.Role), IsVerified: u.IsVerified}
}

// Register creates an unverified account.  No tokens are issued here;
// the client logs in after (optionally) verifying the email address.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, username and password are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    res, err := h.Svc.Register(ctx, auth.RegisterInput{
        Email:     req.Email,
        Username:  req.Username,
        Password:  req.Password,
        IPAddress: c.RealIP(),
        UserAgent: c.Request().UserAgent(),
    })
    if err != nil {
        return writeAuthError(c, err)
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "user":                  toUserPart(res.User),
        "requires_verification": res.RequiresVerification,
    })
}

// Login authenticates and opens a new session, returning a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if strings.TrimSpace(req.EmailOrUsername) == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email_or_username and password are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    res, err := h.Svc.Login(ctx, auth.LoginInput{
        EmailOrUsername: req.EmailOrUsername,
        Password:        req.Password,
        IPAddress:       c.RealIP(),
        UserAgent:       c.Request().UserAgent(),
    })
    if err != nil {
        return writeAuthError(c, err)
    }

    return c.JSON(http.StatusOK, echo.Map{
        "user":       toUserPart(res.User),
        "access":     tokenPart{Token: res.Pair.AccessToken, Expires: res.Pair.AccessExpires},
        "refresh":    tokenPart{Token: res.Pair.RefreshToken, Expires: res.Pair.RefreshExpires},
        "session_id": res.Pair.SessionID,
    })
}

// Refresh rotates the presented refresh token and returns a new pair.
// The old token is unusable afterwards whether or not the call succeeds.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    pair, err := h.Svc.Refresh(ctx, strings.TrimSpace(req.RefreshToken), c.RealIP(), c.Request().UserAgent())
    if err != nil {
        return writeAuthError(c, err)
    }

    return c.JSON(http.StatusOK, echo.Map{
        "access":     tokenPart{Token: pair.AccessToken, Expires: pair.AccessExpires},
        "refresh":    tokenPart{Token: pair.RefreshToken, Expires: pair.RefreshExpires},
        "session_id": pair.SessionID,
    })
}

// Logout blacklists the caller's access token and revokes the current
// session, or every session when the body says {"all": true}.  JWTAuth
// runs first, so the claims in context are already verified.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req logoutReq
    _ = c.Bind(&req) // body is optional; absence means current session only

    claims, ok := c.Get("claims").(*utils.Claims)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }
    userID, err := claims.UserID()
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Svc.Logout(ctx, auth.LogoutInput{
        UserID:        userID,
        AccessJTI:     claims.ID,
        AccessExpires: claims.ExpiresAt.Time,
        SessionID:     claims.SessionID,
        All:           req.All,
        IPAddress:     c.RealIP(),
        UserAgent:     c.Request().UserAgent(),
    }); err != nil {
        return writeAuthError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// VerifyEmail consumes the emailed verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
    var req verifyEmailReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Svc.VerifyEmail(ctx, strings.TrimSpace(req.Token), c.RealIP(), c.Request().UserAgent()); err != nil {
        return writeAuthError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}

// ForgotPassword always answers 202: whether or not the address exists
// must be indistinguishable to the caller.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
    var req forgotPasswordReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Svc.ForgotPassword(ctx, req.Email, c.RealIP(), c.Request().UserAgent()); err != nil {
        // Internal failures are logged server-side; the response stays uniform.
        c.Logger().Errorf("forgot-password: %v", err)
    }
    return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account exists, a reset link has been sent"})
}

// ResetPassword consumes the emailed reset token and replaces the
// credential.  Every session of the user is revoked afterwards.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    var req resetPasswordReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and new_password are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    if err := h.Svc.ResetPassword(ctx, strings.TrimSpace(req.Token), req.NewPassword, c.RealIP(), c.Request().UserAgent()); err != nil {
        return writeAuthError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Me echoes the verified claims back to the caller.  Useful as a cheap
// "is my token still good" probe.
func (h *AuthHandler) Me(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{
        "user_id":    c.Get("user_id"),
        "role":       c.Get("role"),
        "session_id": c.Get("session_id"),
    })
}

// writeAuthError maps the core error taxonomy onto HTTP responses.
// Token-level failures collapse into one uniform body so a caller
// cannot distinguish a revoked token from a tampered one; lockout is
// the deliberate exception and carries a Retry-After hint.
func writeAuthError(c echo.Context, err error) error {
    var locked *auth.AccountLockedError
    switch {
    case errors.As(err, &locked):
        retry := int(locked.RetryAfter(time.Now().UTC()).Round(time.Second).Seconds())
        if retry < 1 {
            retry = 1
        }
        c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
        return c.JSON(http.StatusLocked, echo.Map{
            "error":       "account temporarily locked",
            "retry_after": retry,
        })
    case errors.Is(err, auth.ErrValidation), errors.Is(err, utils.ErrWeakPassword):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, auth.ErrEmailExists), errors.Is(err, auth.ErrUsernameExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
    case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountDisabled):
        // Disabled accounts answer exactly like wrong credentials so the
        // endpoint cannot be used to probe account state.
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    case errors.Is(err, auth.ErrEmailNotVerified):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "email not verified"})
    case errors.Is(err, auth.ErrTokenExpired),
        errors.Is(err, auth.ErrTokenInvalid),
        errors.Is(err, auth.ErrTokenMalformed),
        errors.Is(err, auth.ErrTokenBlacklisted),
        errors.Is(err, auth.ErrSessionRevoked),
        errors.Is(err, auth.ErrTokenReuse):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
    case errors.Is(err, auth.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    default:
        c.Logger().Errorf("auth handler: internal error: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
