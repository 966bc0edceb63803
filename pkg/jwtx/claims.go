package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coralstack/coraldb/pkg/idx"
)

// Default token TTLs. These mirror the deployment defaults and can be
// overridden per-service via configuration.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 24 * time.Hour
)

// Permissions is a reserved claim. Access tokens always carry an empty set
// for now; a future authorization layer will populate it.
type Permissions map[string]string

// Claims are the token claims issued by the gate. Access tokens carry the
// permissions claim, refresh tokens omit it.
type Claims struct {
	jwt.RegisteredClaims

	Permissions *Permissions `json:"permissions,omitempty"`
}

// NewAccessClaims builds claims for an access token. A zero ttl disables
// the expiry claim entirely.
func NewAccessClaims(subject string, ttl time.Duration, now time.Time) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       idx.New().String(),
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Permissions: &Permissions{},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return c
}

// NewRefreshClaims builds claims for a refresh token. Refresh tokens always
// expire.
func NewRefreshClaims(subject string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.New().String(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
