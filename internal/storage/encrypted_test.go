package storage

import (
	"context"
	"testing"

	"github.com/dgellow/statusboard/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptedStoreSealsValues(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	enc, err := crypto.NewEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	s, err := NewEncryptedStore(inner, enc)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "tesla:refresh_token", "EU_refresh"))

	raw, found, err := inner.Get(ctx, "tesla:refresh_token")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, raw, "EU_refresh")

	v, _, err := s.Get(ctx, "tesla:refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "EU_refresh", v)
}

func TestEncryptedStoreRejectsForeignCiphertext(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	enc, err := crypto.NewEncryptor(make([]byte, 32))
	require.NoError(t, err)
	s, err := NewEncryptedStore(inner, enc)
	require.NoError(t, err)

	require.NoError(t, inner.Set(ctx, "k", "not-sealed"))
	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
}

func TestNewEncryptedStoreValidation(t *testing.T) {
	_, err := NewEncryptedStore(nil, nil)
	assert.Error(t, err)

	_, err = NewEncryptedStore(NewMemoryStore(), nil)
	assert.Error(t, err)
}
