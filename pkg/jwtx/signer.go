package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired reports a token past its exp claim.
	ErrExpired = errors.New("jwtx: token expired")
	// ErrSignature reports a token whose signature did not verify.
	ErrSignature = errors.New("jwtx: invalid signature")
	// ErrMalformed reports a token that could not be parsed at all.
	ErrMalformed = errors.New("jwtx: malformed token")
)

// Signer signs and verifies HS256 tokens with a single shared secret.
// Access and refresh tokens each get their own Signer so that compromise of
// one secret does not forge the other token class.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign produces a compact HS256 token for the given claims.
func (s *Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies the signature and registered-claim validity of token and
// returns its claims. Failures are normalized to the package sentinel
// errors so callers can map them to stable reasons.
func (s *Signer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, ErrMalformed
		}
	}
	return claims, nil
}
