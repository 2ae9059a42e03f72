package utils

import (
    "strings"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
    tok, err := NewAccessToken(testSecret, 42, "USER", "sess-1", 30*time.Minute)
    require.NoError(t, err)
    require.NotEmpty(t, tok.Token)
    require.NotEmpty(t, tok.JTI)

    claims, err := ParseToken(testSecret, tok.Token)
    require.NoError(t, err)
    assert.Equal(t, "access", claims.TokenType)
    assert.Equal(t, "sess-1", claims.SessionID)
    assert.Equal(t, "USER", claims.Role)
    assert.Equal(t, tok.JTI, claims.ID)

    uid, err := claims.UserID()
    require.NoError(t, err)
    assert.Equal(t, uint64(42), uid)
}

func TestRefreshTokenCarriesSessionNotRole(t *testing.T) {
    tok, err := NewRefreshToken(testSecret, 7, "sess-2", 24*time.Hour)
    require.NoError(t, err)

    claims, err := ParseToken(testSecret, tok.Token)
    require.NoError(t, err)
    assert.Equal(t, "refresh", claims.TokenType)
    assert.Equal(t, "sess-2", claims.SessionID)
    assert.Empty(t, claims.Role)
}

func TestEmailTokenPurpose(t *testing.T) {
    for _, purpose := range []string{"verify", "reset"} {
        tok, err := NewEmailToken(testSecret, 9, purpose, time.Hour)
        require.NoError(t, err)
        claims, err := ParseToken(testSecret, tok.Token)
        require.NoError(t, err)
        assert.Equal(t, purpose, claims.TokenType)
        assert.Empty(t, claims.SessionID)
    }
}

func TestParseTokenExpired(t *testing.T) {
    tok, err := NewAccessToken(testSecret, 1, "USER", "sess", -time.Minute)
    require.NoError(t, err)

    _, err = ParseToken(testSecret, tok.Token)
    assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseTokenWrongSecret(t *testing.T) {
    tok, err := NewAccessToken(testSecret, 1, "USER", "sess", time.Minute)
    require.NoError(t, err)

    _, err = ParseToken("a-different-secret", tok.Token)
    assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseTokenTampered(t *testing.T) {
    tok, err := NewAccessToken(testSecret, 1, "USER", "sess", time.Minute)
    require.NoError(t, err)

    // Flip a character in the signature segment.
    parts := strings.Split(tok.Token, ".")
    require.Len(t, parts, 3)
    sig := []byte(parts[2])
    if sig[0] == 'A' {
        sig[0] = 'B'
    } else {
        sig[0] = 'A'
    }
    tampered := parts[0] + "." + parts[1] + "." + string(sig)

    _, err = ParseToken(testSecret, tampered)
    assert.Error(t, err)
}

func TestParseTokenMalformed(t *testing.T) {
    _, err := ParseToken(testSecret, "definitely.not.a-jwt")
    assert.ErrorIs(t, err, jwt.ErrTokenMalformed)

    _, err = ParseToken(testSecret, "")
    assert.Error(t, err)
}

func TestParseTokenRejectsUnsignedAlg(t *testing.T) {
    // A token carrying alg=none must never verify, whatever its payload.
    unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
        TokenType: "access",
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   "1",
            ID:        "some-jti",
            ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
        },
    })
    raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
    require.NoError(t, err)

    _, err = ParseToken(testSecret, raw)
    assert.Error(t, err)
}
