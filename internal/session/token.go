package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSessionExpired is reported by Check when the token's exp has passed.
var ErrSessionExpired = errors.New("session expired")

// TokenDecodeError means the token could not be read as a JWT carrying an
// exp claim. Callers treat such a token as absent.
type TokenDecodeError struct {
	Err error
}

func (e *TokenDecodeError) Error() string {
	return fmt.Sprintf("decode session token: %v", e.Err)
}

func (e *TokenDecodeError) Unwrap() error { return e.Err }

// Expiry returns the exp claim of a JWT. The signature is not verified;
// the token is opaque to us except for its expiry.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, &TokenDecodeError{Err: err}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, &TokenDecodeError{Err: err}
	}
	if exp == nil {
		return time.Time{}, &TokenDecodeError{Err: errors.New("missing exp claim")}
	}
	return exp.Time, nil
}

// Expired reports exp < now.
func Expired(exp, now time.Time) bool {
	return exp.Before(now)
}
