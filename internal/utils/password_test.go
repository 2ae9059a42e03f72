package utils

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"
)

func TestCheckPasswordPolicy(t *testing.T) {
    cases := []struct {
        name     string
        password string
        ok       bool
    }{
        {"valid", "Sup3rSecret", true},
        {"valid minimal", "Aa345678", true},
        {"too short", "Aa1bcde", false},
        {"no uppercase", "sup3rsecret", false},
        {"no lowercase", "SUP3RSECRET", false},
        {"no digit", "SuperSecret", false},
        {"empty", "", false},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            err := CheckPasswordPolicy(tc.password)
            if tc.ok {
                assert.NoError(t, err)
            } else {
                assert.ErrorIs(t, err, ErrWeakPassword)
            }
        })
    }
}

func TestHashAndVerifyPassword(t *testing.T) {
    hash, err := HashPassword("Sup3rSecret", bcrypt.MinCost)
    require.NoError(t, err)
    require.NotEmpty(t, hash)
    assert.NotEqual(t, "Sup3rSecret", hash)

    assert.True(t, VerifyPassword(hash, "Sup3rSecret"))
    assert.False(t, VerifyPassword(hash, "wrongPassw0rd"))
    assert.False(t, VerifyPassword(hash, ""))
}

func TestHashPasswordRejectsWeak(t *testing.T) {
    _, err := HashPassword("short", bcrypt.MinCost)
    assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestVerifyPasswordMangledDigest(t *testing.T) {
    // A corrupted or empty stored hash must report a mismatch, never panic.
    assert.False(t, VerifyPassword("not-a-bcrypt-digest", "Sup3rSecret"))
    assert.False(t, VerifyPassword("", "Sup3rSecret"))
}
