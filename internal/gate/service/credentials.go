package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coralstack/coraldb/internal/gate/domain"
	"github.com/coralstack/coraldb/internal/gate/store"
	"github.com/coralstack/coraldb/internal/gate/store/drivers/sqlite"
	"github.com/coralstack/coraldb/pkg/cryptox"
	"github.com/coralstack/coraldb/pkg/slogx"
)

// CredentialStore owns the three persisted credential collections: users,
// access tokens and refresh tokens, all under the internal storage root.
type CredentialStore struct {
	users         store.Collection
	accessTokens  store.Collection
	refreshTokens store.Collection
	logger        *slog.Logger

	// rotation is serialized per username so that two concurrent
	// issuances never leave duplicate live token records.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenCredentialStore opens the credential collections under internalDir,
// creating them on first start.
func OpenCredentialStore(internalDir string, logger *slog.Logger) (*CredentialStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cs := &CredentialStore{
		logger: logger.With("module", "credentials"),
		locks:  make(map[string]*sync.Mutex),
	}

	for _, c := range []struct {
		name   string
		target *store.Collection
	}{
		{"users", &cs.users},
		{"accessTokens", &cs.accessTokens},
		{"refreshTokens", &cs.refreshTokens},
	} {
		collection, err := sqlite.Open(
			sqlite.Adapter{StoragePath: internalDir, Name: c.name},
			store.DefaultOptions,
		)
		if err != nil {
			_ = cs.Close()
			return nil, fmt.Errorf("credentials: open %s: %w", c.name, err)
		}
		*c.target = collection
	}

	return cs, nil
}

// EnsureRootUser inserts the reserved root identity if it is absent.
// Idempotent across restarts.
func (cs *CredentialStore) EnsureRootUser(ctx context.Context) error {
	_, err := cs.FindUser(ctx, domain.RootUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := cryptox.HashPassword(domain.RootUsername)
	if err != nil {
		return err
	}
	if _, err := cs.users.Insert(ctx, store.Document{
		"username": domain.RootUsername,
		"password": hash,
	}); err != nil {
		return err
	}

	cs.logger.Warn("created root user with default password; change it immediately")
	return nil
}

// FindUser looks a user up by username.
func (cs *CredentialStore) FindUser(ctx context.Context, username string) (domain.User, error) {
	docs, err := cs.users.Find(ctx, store.Query{"username": username}, store.FindOptions{Limit: 1})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, ErrUserNotFound
	}

	doc := docs[0]
	password, _ := doc["password"].(string)
	return domain.User{
		ID:       doc.ID(),
		Username: username,
		Password: password,
	}, nil
}

// CreateUser inserts a new user with a hashed password. Fails with
// ErrUserExists when the username is taken; the existing record is left
// untouched.
func (cs *CredentialStore) CreateUser(ctx context.Context, username, password string) error {
	if _, err := cs.FindUser(ctx, username); err == nil {
		return ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = cs.users.Insert(ctx, store.Document{
		"username": username,
		"password": hash,
	})
	return err
}

// RemoveUser deletes a user record. Outstanding token records are not
// cascaded; they age out by expiry.
func (cs *CredentialStore) RemoveUser(ctx context.Context, username string) error {
	n, err := cs.users.Remove(ctx, store.Query{"username": username}, store.FindOptions{})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RotateTokens replaces the username's live token records with the new
// pair: remove-then-insert in both collections, serialized per username.
func (cs *CredentialStore) RotateTokens(ctx context.Context, username string, pair domain.TokenPair) error {
	lock := cs.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	log := slogx.FromContext(ctx)

	if _, err := cs.refreshTokens.Remove(ctx, store.Query{"username": username}, store.FindOptions{}); err != nil {
		return err
	}
	if _, err := cs.refreshTokens.Insert(ctx, store.Document{
		"username":     username,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}); err != nil {
		return err
	}

	if _, err := cs.accessTokens.Remove(ctx, store.Query{"username": username}, store.FindOptions{}); err != nil {
		return err
	}
	if _, err := cs.accessTokens.Insert(ctx, store.Document{
		"username":    username,
		"accessToken": pair.AccessToken,
	}); err != nil {
		return err
	}

	log.Debug("rotated token records", "username", username)
	return nil
}

// FindRefreshRecord looks a refresh record up by the refresh token string.
func (cs *CredentialStore) FindRefreshRecord(ctx context.Context, refreshToken string) (domain.RefreshTokenRecord, error) {
	docs, err := cs.refreshTokens.Find(ctx, store.Query{"refreshToken": refreshToken}, store.FindOptions{Limit: 1})
	if err != nil {
		return domain.RefreshTokenRecord{}, err
	}
	if len(docs) == 0 {
		return domain.RefreshTokenRecord{}, ErrInvalidRefresh
	}

	doc := docs[0]
	username, _ := doc["username"].(string)
	accessToken, _ := doc["accessToken"].(string)
	return domain.RefreshTokenRecord{
		Username:     username,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// CountTokenRecords reports how many access and refresh records exist for
// a username. Used by tests to assert the rotation invariant.
func (cs *CredentialStore) CountTokenRecords(ctx context.Context, username string) (access, refresh int, err error) {
	access, err = cs.accessTokens.Count(ctx, store.Query{"username": username})
	if err != nil {
		return 0, 0, err
	}
	refresh, err = cs.refreshTokens.Count(ctx, store.Query{"username": username})
	if err != nil {
		return 0, 0, err
	}
	return access, refresh, nil
}

func (cs *CredentialStore) userLock(username string) *sync.Mutex {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	lock, ok := cs.locks[username]
	if !ok {
		lock = &sync.Mutex{}
		cs.locks[username] = lock
	}
	return lock
}

// Close releases the credential collections.
func (cs *CredentialStore) Close() error {
	var firstErr error
	for _, c := range []store.Collection{cs.users, cs.accessTokens, cs.refreshTokens} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
