package service

import (
	"errors"
	"time"

	"github.com/coralstack/coraldb/pkg/jwtx"
	"github.com/jellydator/ttlcache/v3"
)

// invalidResultTTL bounds how long a failed validation is memoized. Failed
// results never flip back to valid, the cap only limits cache growth under
// a flood of garbage tokens.
const invalidResultTTL = time.Minute

// Validation is the outcome of an access-token check. It is a value, not
// an error: validation fails closed and never throws to the caller.
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// TokenService issues and validates the two token classes. Issue and
// validate are pure over the configured secrets, so the service is safe
// for unbounded concurrency; the only state is the validation memo cache.
//
// Validation deliberately checks signature and expiry only, not store
// membership: a rotated-out access token that is still validly signed
// keeps validating until it expires.
type TokenService struct {
	access     *jwtx.Signer
	refresh    *jwtx.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration

	cache *ttlcache.Cache[string, Validation]
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, Validation](),
	)
	go cache.Start()

	return &TokenService{
		access:     jwtx.NewSigner(accessSecret),
		refresh:    jwtx.NewSigner(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		cache:      cache,
	}
}

// Close stops the cache janitor.
func (s *TokenService) Close() {
	s.cache.Stop()
}

// IssueAccessToken signs a fresh access token for username. A zero
// configured lifetime issues tokens without an expiry claim.
func (s *TokenService) IssueAccessToken(username string) (string, error) {
	return s.access.Sign(jwtx.NewAccessClaims(username, s.accessTTL, time.Now().UTC()))
}

// IssueRefreshToken signs a fresh refresh token for username with the
// separate refresh secret.
func (s *TokenService) IssueRefreshToken(username string) (string, error) {
	return s.refresh.Sign(jwtx.NewRefreshClaims(username, s.refreshTTL, time.Now().UTC()))
}

// ValidateAccessToken checks signature and expiry of token. Any failure
// yields Valid=false with a human-readable reason.
func (s *TokenService) ValidateAccessToken(token string) Validation {
	if item := s.cache.Get(token); item != nil {
		return item.Value()
	}

	result, ttl := s.validate(token)
	s.cache.Set(token, result, ttl)
	return result
}

func (s *TokenService) validate(token string) (Validation, time.Duration) {
	claims, err := s.access.Parse(token)
	if err != nil {
		var reason string
		switch {
		case errors.Is(err, jwtx.ErrExpired):
			reason = "Token expired"
		case errors.Is(err, jwtx.ErrSignature):
			reason = "Invalid signature"
		default:
			reason = "Failed to parse token"
		}
		return Validation{Valid: false, Reason: reason}, invalidResultTTL
	}

	// A valid result may be cached until the token itself expires.
	ttl := invalidResultTTL
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	return Validation{Valid: true}, ttl
}

// VerifyRefreshTokenSignature reports whether token was genuinely signed
// by this service's refresh secret and is not expired. Used only during
// rotation.
func (s *TokenService) VerifyRefreshTokenSignature(token string) bool {
	_, err := s.refresh.Parse(token)
	return err == nil
}

// Subject extracts the subject claim of a token previously validated with
// ValidateAccessToken. Returns "" for invalid tokens.
func (s *TokenService) Subject(token string) string {
	claims, err := s.access.Parse(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}
