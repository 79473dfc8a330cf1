package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrNoToken is returned when the session holds no access token.
	ErrNoToken = errors.New("auth: no access token")
	// ErrNoExpiry is returned for a token without an exp claim.
	ErrNoExpiry = errors.New("auth: token has no expiry")
	// ErrMalformedToken is returned when the token is not a decodable JWT.
	ErrMalformedToken = errors.New("auth: malformed token")
)

// ExpiryFromToken decodes the exp claim without verifying the signature. The
// auth service verifies tokens; the storefront only needs to know when to refresh.
func ExpiryFromToken(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrNoToken
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
