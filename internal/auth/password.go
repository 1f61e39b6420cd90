package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinOperatorPasswordLength guards the --hash-password helper against
// trivially short operator passwords.
const MinOperatorPasswordLength = 8

// ErrPasswordTooShort is returned for passwords under MinOperatorPasswordLength.
var ErrPasswordTooShort = errors.New("operator password must be at least 8 characters")

// HashOperatorPassword produces the value for AUTH_OPERATOR_PASSWORD_HASH.
// Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func HashOperatorPassword(password string, cost int) (string, error) {
	if len(password) < MinOperatorPasswordLength {
		return "", ErrPasswordTooShort
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword checks plain against a stored operator hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
