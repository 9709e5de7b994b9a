package auth

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/observability"
)

// Service implements login, token issuance and token resolution. Resolved
// identities are kept in a bounded LRU cache keyed by token hash so the
// hot path usually skips the database; entries expire with their token and
// are dropped eagerly whenever a user's tokens are revoked.
type Service struct {
	store      *Store
	generator  *TokenGenerator
	cache      *lru.Cache[string, cacheEntry]
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *observability.Logger
}

type cacheEntry struct {
	identity  Identity
	expiresAt time.Time
}

// NewService creates a new auth service
func NewService(store *Store, cacheSize int, accessTTL, refreshTTL time.Duration, logger *observability.Logger) (*Service, error) {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &Service{
		store:      store,
		generator:  NewTokenGenerator(),
		cache:      cache,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}, nil
}

// Store exposes the underlying store for collaborating packages
func (s *Service) Store() *Store {
	return s.store
}

// CreateUser registers a new account with the given memberships. Username
// and email must be free among live users.
func (s *Service) CreateUser(ctx context.Context, user *User, password string, groupIDs []int64) error {
	existing, err := s.store.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.Conflict(apperr.CodeUsernameTaken, "username is already registered")
	}
	if user.Email != "" {
		existing, err = s.store.GetUserByEmail(ctx, user.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(apperr.CodeEmailTaken, "email is already registered")
		}
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.CreateUser(ctx, user, hash, groupIDs); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user registered")
	return nil
}

// Login verifies credentials and issues a fresh token pair
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	identity, err := s.store.GetPasswordIdentity(ctx, username)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	if !VerifyPassword(identity.Credential, password) {
		return nil, apperr.AuthFailed(apperr.CodeLoginFailed, "incorrect username or password")
	}
	return s.issuePair(ctx, identity.UserID)
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself keeps its original expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := s.generator.ValidateFormat(refreshToken); err != nil {
		return nil, apperr.AuthFailed(apperr.CodeAuthDenied, "invalid refresh token")
	}
	stored, err := s.store.GetToken(ctx, s.generator.Hash(refreshToken))
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Kind != TokenKindRefresh {
		return nil, apperr.AuthFailed(apperr.CodeAuthDenied, "invalid refresh token")
	}

	access, err := s.issueToken(ctx, stored.UserID, TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// Authenticate resolves a bearer token into an identity
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := s.generator.ValidateFormat(token); err != nil {
		return nil, apperr.AuthFailed(apperr.CodeAuthDenied, "invalid token")
	}
	hash := s.generator.Hash(token)

	if entry, ok := s.cache.Get(hash); ok {
		if time.Now().Before(entry.expiresAt) {
			identity := entry.identity
			return &identity, nil
		}
		s.cache.Remove(hash)
	}

	stored, err := s.store.GetToken(ctx, hash)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.Kind != TokenKindAccess {
		return nil, apperr.AuthFailed(apperr.CodeAuthDenied, "invalid or expired token")
	}

	user, err := s.store.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.AuthFailed(apperr.CodeAuthDenied, "invalid or expired token")
	}

	identity := Identity{UserID: user.ID, Username: user.Username}
	s.cache.Add(hash, cacheEntry{identity: identity, expiresAt: stored.ExpiresAt})
	return &identity, nil
}

// ChangePassword verifies the old password and sets a new one, revoking
// every outstanding token.
func (s *Service) ChangePassword(ctx context.Context, userID int64, username, oldPassword, newPassword string) error {
	identity, err := s.store.GetPasswordIdentity(ctx, username)
	if err != nil {
		return err
	}
	if identity == nil || identity.UserID != userID {
		return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	if !VerifyPassword(identity.Credential, oldPassword) {
		return apperr.BadRequest(apperr.CodePasswordWrong, "old password is incorrect")
	}
	return s.SetPassword(ctx, userID, newPassword)
}

// SetPassword replaces a user's password without checking the old one.
// Reserved for administrative resets.
func (s *Service) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateCredential(ctx, userID, hash); err != nil {
		return err
	}
	return s.RevokeTokens(ctx, userID)
}

// RevokeTokens revokes all of a user's tokens and evicts them from the
// cache.
func (s *Service) RevokeTokens(ctx context.Context, userID int64) error {
	if err := s.store.RevokeUserTokens(ctx, userID); err != nil {
		return err
	}
	for _, hash := range s.cache.Keys() {
		if entry, ok := s.cache.Peek(hash); ok && entry.identity.UserID == userID {
			s.cache.Remove(hash)
		}
	}
	return nil
}

// PurgeExpiredTokens removes expired token rows. Wired to the background
// scheduler.
func (s *Service) PurgeExpiredTokens(ctx context.Context) error {
	purged, err := s.store.PurgeExpiredTokens(ctx)
	if err != nil {
		return err
	}
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("expired tokens purged")
	}
	return nil
}

func (s *Service) issuePair(ctx context.Context, userID int64) (*TokenPair, error) {
	access, err := s.issueToken(ctx, userID, TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issueToken(ctx, userID, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) issueToken(ctx context.Context, userID int64, kind string, ttl time.Duration) (string, error) {
	token, hash, err := s.generator.Generate()
	if err != nil {
		return "", err
	}
	stored := &Token{
		UserID:    userID,
		TokenHash: hash,
		Kind:      kind,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.store.InsertToken(ctx, stored); err != nil {
		return "", err
	}
	return token, nil
}
