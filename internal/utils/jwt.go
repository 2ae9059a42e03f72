package utils // package utils provides helper functions for token creation and hashing

import (
    "fmt"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"       // UUIDs for token identifiers (jti)
)

// Claims is the payload carried by every token this service issues.
// All token kinds share the same signing mechanism and are
// distinguished by the embedded type claim:
//
//   typ  – "access", "refresh", "verify" or "reset"
//   sid  – owning session UUID (access and refresh tokens)
//   role – account role, embedded in access tokens only so protected
//          endpoints can authorize without a user lookup
//
// The registered claims hold the subject (user ID as a decimal string),
// the jti used for blacklisting, issued-at and expiry.
type Claims struct {
    TokenType string `json:"typ"`
    SessionID string `json:"sid,omitempty"`
    Role      string `json:"role,omitempty"`
    jwt.RegisteredClaims
}

// UserID parses the subject claim back into a numeric user ID.
func (c *Claims) UserID() (uint64, error) {
    id, err := strconv.ParseUint(c.Subject, 10, 64)
    if err != nil {
        return 0, fmt.Errorf("%w: bad subject %q", jwt.ErrTokenInvalidSubject, c.Subject)
    }
    return id, nil
}

// SignedToken bundles a serialized JWT with the metadata callers need
// to persist or blacklist it later: its unique identifier and expiry.
type SignedToken struct {
    Token string    // the serialized JWT string
    JTI   string    // unique token identifier (uuid)
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs a short-lived HS256 access token for a
// user, bound to the session it was issued under.
func NewAccessToken(secret string, userID uint64, role, sessionID string, ttl time.Duration) (SignedToken, error) {
    return issue(secret, &Claims{
        TokenType: "access",
        SessionID: sessionID,
        Role:      role,
    }, userID, ttl)
}

// NewRefreshToken builds and signs a long-lived HS256 refresh token.
// The sid claim ties the token to its session record; the jti is what
// gets stored on the session row and blacklisted on rotation.
func NewRefreshToken(secret string, userID uint64, sessionID string, ttl time.Duration) (SignedToken, error) {
    return issue(secret, &Claims{
        TokenType: "refresh",
        SessionID: sessionID,
    }, userID, ttl)
}

// NewEmailToken builds a single-purpose token embedded into email links.
// The purpose must be "verify" or "reset"; verification treats any other
// type as a mismatch.
func NewEmailToken(secret string, userID uint64, purpose string, ttl time.Duration) (SignedToken, error) {
    return issue(secret, &Claims{TokenType: purpose}, userID, ttl)
}

func issue(secret string, claims *Claims, userID uint64, ttl time.Duration) (SignedToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    jti := uuid.NewString()
    claims.RegisteredClaims = jwt.RegisteredClaims{
        Subject:   strconv.FormatUint(userID, 10),
        ID:        jti,
        IssuedAt:  jwt.NewNumericDate(now),
        ExpiresAt: jwt.NewNumericDate(exp),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SignedToken{}, err
    }
    return SignedToken{Token: signed, JTI: jti, Exp: exp}, nil
}

// ParseToken verifies the signature and expiry of a serialized token and
// returns its claims.  Errors are the jwt/v5 sentinels, so callers can
// classify failures with errors.Is: jwt.ErrTokenExpired for past-expiry,
// jwt.ErrTokenMalformed for structurally broken input and
// jwt.ErrTokenSignatureInvalid for tampered or foreign-key tokens.
// The codec is stateless; blacklist checks happen in the caller.
func ParseToken(secret, raw string) (*Claims, error) {
    claims := &Claims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        // Reject tokens signed with anything but HMAC, including "none".
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("%w: %v", jwt.ErrTokenSignatureInvalid, t.Header["alg"])
        }
        return []byte(secret), nil
    })
    if err != nil {
        return nil, err
    }
    if !tok.Valid {
        return nil, jwt.ErrTokenUnverifiable
    }
    if claims.ID == "" || claims.Subject == "" || claims.TokenType == "" {
        return nil, fmt.Errorf("%w: missing jti, sub or typ", jwt.ErrTokenInvalidClaims)
    }
    return claims, nil
}
