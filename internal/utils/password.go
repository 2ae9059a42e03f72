package utils

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword is returned by HashPassword when the plaintext does not
// meet the password policy.  Callers surface it as a validation failure.
var ErrWeakPassword = errors.New("password does not meet policy: need at least 8 characters with upper, lower and digit")

// CheckPasswordPolicy validates the plaintext against the account policy:
// at least 8 characters containing at least one uppercase letter, one
// lowercase letter and one digit.
func CheckPasswordPolicy(plain string) error {
	if len(plain) < 8 {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword enforces the password policy and returns a bcrypt hash
// using the given cost.  The cost is tunable so the work factor can be
// raised as hardware improves.
func HashPassword(plain string, cost int) (string, error) {
	if err := CheckPasswordPolicy(plain); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.  It
// never returns an error: a mismatch, a mangled digest or an empty hash
// all report false.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
