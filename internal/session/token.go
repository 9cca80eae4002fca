package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshThreshold is the window before token expiry within which a
// proactive refresh is triggered.
const RefreshThreshold = 5 * time.Minute

// ErrTokenUndecodable indicates the token's expiry claim could not be read.
// Call sites treat such a token as already expired, never as valid.
var ErrTokenUndecodable = errors.New("session: token cannot be decoded")

// DecodeExpiry reads the embedded expiration claim without verifying the
// signature. Signature verification belongs to the auth service; the client
// only needs the timestamp to schedule refreshes.
func DecodeExpiry(token string) (time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return time.Time{}, ErrTokenUndecodable
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenUndecodable, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrTokenUndecodable)
	}
	return claims.ExpiresAt.Time, nil
}

// expiringSoon reports whether the token must be refreshed before use.
// Undecodable tokens count as expiring now.
func expiringSoon(token string, now time.Time) bool {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return true
	}
	return exp.Sub(now) < RefreshThreshold
}
