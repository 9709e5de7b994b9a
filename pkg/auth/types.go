// Package auth owns user accounts, credentials and opaque bearer tokens.
// It resolves a request's token into an Identity; authorization decisions
// on that identity belong to the access package.
package auth

import (
	"context"
	"time"
)

// User is an account. Credentials live in UserIdentity rows, never here.
type User struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Nickname   string     `json:"nickname,omitempty"`
	Avatar     string     `json:"avatar,omitempty"`
	Email      string     `json:"email,omitempty"`
	CreateTime time.Time  `json:"create_time"`
	UpdateTime time.Time  `json:"update_time"`
	DeleteTime *time.Time `json:"-"`
}

// IdentityTypePassword is the username+password credential type
const IdentityTypePassword = "USERNAME_PASSWORD"

// UserIdentity is one credential bound to a user
type UserIdentity struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	IdentityType string `json:"identity_type"`
	Identifier   string `json:"identifier"`
	Credential   string `json:"-"`
}

// Token kinds
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// Token is a stored bearer token. Only the SHA256 hash is persisted; the
// plaintext is shown to the client exactly once.
type Token struct {
	ID        int64
	UserID    int64
	TokenHash string
	Kind      string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// TokenPair is what a successful login or refresh returns
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Identity is the authenticated caller attached to a request
type Identity struct {
	UserID   int64
	Username string
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity attaches an identity to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated identity, if any
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}
