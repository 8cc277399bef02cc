// Package jwt extracts claims from bearer tokens minted by the upstream
// identity provider. The engine never verifies signatures — that is the
// provider's job and upstream validation catches forgeries — it only needs
// the subject and expiry to scope cache keys and derive blacklist TTLs.
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrMalformed indicates the token could not be decoded at all.
var ErrMalformed = errors.New("jwt: malformed token")

// Claims is the decoded subset the engine cares about.
type Claims struct {
	UserID    string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

type tokenClaims struct {
	UID string `json:"uid"`
	jwtlib.RegisteredClaims
}

// Decode parses the token without verifying its signature and returns the
// engine-relevant claims. The user ID is taken from the uid claim, falling
// back to the registered subject.
func Decode(token string) (*Claims, error) {
	var claims tokenClaims
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := &Claims{UserID: claims.UID}
	if out.UserID == "" {
		out.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// RemainingLifetime returns how long the token is still valid at now, capped
// at cap. Tokens that cannot be decoded or carry no expiry report the full
// cap: over-blacklisting an opaque token is harmless, under-blacklisting is
// not.
func RemainingLifetime(token string, now time.Time, cap time.Duration) time.Duration {
	claims, err := Decode(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return cap
	}

	left := claims.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	if left > cap {
		return cap
	}
	return left
}
