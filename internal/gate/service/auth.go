package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coralstack/coraldb/internal/gate/domain"
	"github.com/coralstack/coraldb/pkg/cryptox"
	"github.com/coralstack/coraldb/pkg/slogx"
)

// AuthService orchestrates the credential store and token authority for
// the authentication commands.
type AuthService struct {
	Creds  *CredentialStore
	Tokens *TokenService
}

// Authenticate verifies a username/password pair and, on success, issues
// and rotates a fresh token pair. Every failure is the uniform
// ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	if username == "" || password == "" {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.Creds.FindUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, err
	}

	if err := cryptox.VerifyPassword(password, user.Password); err != nil {
		log.Info("password verification failed", slog.String("username", username))
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, username)
	if err != nil {
		return domain.TokenPair{}, err
	}

	log.Info("authenticated", slog.String("username", username))
	return pair, nil
}

// Refresh exchanges a presented token pair for a fresh one.
//
// The stored refresh record's paired access token must equal the presented
// one, and the refresh token's signature must verify; each failure cause
// reports its own error.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (domain.TokenPair, error) {
	log := slogx.FromContext(ctx)

	if accessToken == "" || refreshToken == "" {
		return domain.TokenPair{}, ErrMissingTokenPair
	}

	record, err := s.Creds.FindRefreshRecord(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if record.AccessToken != accessToken {
		log.Warn("refresh with mismatched access token", slog.String("username", record.Username))
		return domain.TokenPair{}, ErrRefreshMismatch
	}

	if !s.Tokens.VerifyRefreshTokenSignature(refreshToken) {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	pair, err := s.issuePair(ctx, record.Username)
	if err != nil {
		return domain.TokenPair{}, err
	}

	log.Info("refreshed tokens", slog.String("username", record.Username))
	return pair, nil
}

func (s *AuthService) issuePair(ctx context.Context, username string) (domain.TokenPair, error) {
	accessToken, err := s.Tokens.IssueAccessToken(username)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refreshToken, err := s.Tokens.IssueRefreshToken(username)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair := domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}
	if err := s.Creds.RotateTokens(ctx, username, pair); err != nil {
		return domain.TokenPair{}, err
	}
	return pair, nil
}
