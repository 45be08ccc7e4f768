package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/statusboard/internal/crypto"
)

var _ Store = (*EncryptedStore)(nil)
var _ Taker = (*EncryptedStore)(nil)

// EncryptedStore seals values before they reach the inner store. Keys are
// left in the clear so operators can still inspect which records exist.
type EncryptedStore struct {
	inner     Store
	encryptor crypto.Encryptor
}

// NewEncryptedStore wraps inner with encryptor
func NewEncryptedStore(inner Store, encryptor crypto.Encryptor) (*EncryptedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &EncryptedStore{inner: inner, encryptor: encryptor}, nil
}

func (e *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, found, err := e.inner.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	value, err := e.encryptor.Decrypt(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return value, true, nil
}

func (e *EncryptedStore) Set(ctx context.Context, key, value string) error {
	sealed, err := e.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return e.inner.Set(ctx, key, sealed)
}

func (e *EncryptedStore) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

// Take is atomic exactly when the inner store's Take is.
func (e *EncryptedStore) Take(ctx context.Context, key string) (string, bool, error) {
	sealed, found, err := Take(ctx, e.inner, key)
	if err != nil || !found {
		return "", found, err
	}
	value, err := e.encryptor.Decrypt(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return value, true, nil
}

// Unwrap returns the store the values are sealed into
func (e *EncryptedStore) Unwrap() Store {
	return e.inner
}

func (e *EncryptedStore) Close() error {
	return Close(e.inner)
}
