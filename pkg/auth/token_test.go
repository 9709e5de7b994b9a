package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator_Generate(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, err := tg.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, tg.Hash(token), hash)
	assert.Len(t, hash, 64) // hex-encoded SHA256
	require.NoError(t, tg.ValidateFormat(token))
}

func TestTokenGenerator_TokensAreUnique(t *testing.T) {
	tg := NewTokenGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, _, err := tg.Generate()
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestTokenGenerator_ValidateFormat(t *testing.T) {
	tg := NewTokenGenerator()

	assert.Error(t, tg.ValidateFormat(""))
	assert.Error(t, tg.ValidateFormat("quill_"))
	assert.Error(t, tg.ValidateFormat("bearer_abcdef"))
	assert.Error(t, tg.ValidateFormat("quill_not!base64url"))
	assert.NoError(t, tg.ValidateFormat("quill_abcDEF123_-"))
}

func TestTokenGenerator_HashIsStable(t *testing.T) {
	tg := NewTokenGenerator()
	assert.Equal(t, tg.Hash("quill_abc"), tg.Hash("quill_abc"))
	assert.NotEqual(t, tg.Hash("quill_abc"), tg.Hash("quill_abd"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, VerifyPassword(hash, "s3cret-pass"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret-pass"))
}
