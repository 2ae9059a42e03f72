package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/identity-service/internal/auth"  // blacklist lookup
    "github.com/iliyamo/identity-service/internal/model" // token type constants
    "github.com/iliyamo/identity-service/internal/utils" // shared token codec
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the verified identity into the request context.  Beyond the
// signature and expiry checks, the token must carry typ=access (refresh
// and email tokens never grant API access) and its jti must not be
// blacklisted.  A blacklist backend failure rejects the request: an
// unverifiable token is treated as a revoked one.
//
// On success handlers can read:
//
//	c.Get("user_id")    uint64
//	c.Get("role")       string
//	c.Get("session_id") string
//	c.Get("jti")        string
//	c.Get("claims")     *utils.Claims
func JWTAuth(secret string, bl *auth.Blacklist) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            header := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(header, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(header, "Bearer ")

            claims, err := utils.ParseToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
            }
            if claims.TokenType != model.TokenTypeAccess {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
            }

            revoked, err := bl.Contains(c.Request().Context(), claims.ID)
            if err != nil || revoked {
                if err != nil {
                    c.Logger().Errorf("jwt middleware: blacklist check failed: %v", err)
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
            }

            userID, err := claims.UserID()
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
            }

            c.Set("user_id", userID)
            c.Set("role", claims.Role)
            c.Set("session_id", claims.SessionID)
            c.Set("jti", claims.ID)
            c.Set("claims", claims)
            return next(c)
        }
    }
}
