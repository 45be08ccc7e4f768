package tokens

import (
	"context"
	"time"

	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/storage"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
	keyState        = "oauth_state"
	keyStartedAt    = "oauth_started_at"
	keyCode         = "oauth_code"
)

// Store is the typed view of one provider's keys in the KV service.
// Every key is namespaced as "<provider>:<name>".
type Store struct {
	kv       storage.Store
	provider string
}

// NewStore scopes kv to provider
func NewStore(kv storage.Store, provider string) *Store {
	return &Store{kv: kv, provider: provider}
}

// Key returns the namespaced KV key for name
func (s *Store) Key(name string) string {
	return s.provider + ":" + name
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	v, _, err := s.kv.Get(ctx, s.Key(name))
	if err != nil {
		return "", storeError(s.provider, "get "+name, err)
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, name, value string) error {
	if value == "" {
		return s.del(ctx, name)
	}
	if err := s.kv.Set(ctx, s.Key(name), value); err != nil {
		return storeError(s.provider, "set "+name, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, name string) error {
	if err := s.kv.Delete(ctx, s.Key(name)); err != nil {
		return storeError(s.provider, "delete "+name, err)
	}
	return nil
}

func (s *Store) take(ctx context.Context, name string) (string, bool, error) {
	v, found, err := storage.Take(ctx, s.kv, s.Key(name))
	if err != nil {
		return "", false, storeError(s.provider, "take "+name, err)
	}
	return v, found, nil
}

// Load reads the token record. A missing record is returned as an empty,
// non-present Record rather than an error.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	access, err := s.get(ctx, keyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.get(ctx, keyRefreshToken)
	if err != nil {
		return nil, err
	}
	rawExpiry, err := s.get(ctx, keyExpiresAt)
	if err != nil {
		return nil, err
	}

	rec := &Record{AccessToken: access, RefreshToken: refresh}
	if rawExpiry != "" {
		expiresAt, err := time.Parse(time.RFC3339Nano, rawExpiry)
		if err != nil {
			// An unreadable expiry is treated as already expired.
			log.LogWarnWithFields("tokens", "Ignoring unparseable expiry", map[string]any{
				"provider": s.provider,
				"value":    rawExpiry,
			})
		} else {
			rec.ExpiresAt = expiresAt
		}
	}
	return rec, nil
}

// Save persists rec. The expiry is written last so a concurrent reader that
// sees the new expiry also sees the new access token.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if err := s.set(ctx, keyAccessToken, rec.AccessToken); err != nil {
		return err
	}
	if err := s.set(ctx, keyRefreshToken, rec.RefreshToken); err != nil {
		return err
	}
	expiry := ""
	if !rec.ExpiresAt.IsZero() {
		expiry = rec.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return s.set(ctx, keyExpiresAt, expiry)
}

// Clear removes the whole token record.
func (s *Store) Clear(ctx context.Context) error {
	for _, name := range []string{keyExpiresAt, keyAccessToken, keyRefreshToken} {
		if err := s.del(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate forgets the expiry while keeping both tokens, so the next
// evaluation asks for a refresh.
func (s *Store) Invalidate(ctx context.Context) error {
	return s.del(ctx, keyExpiresAt)
}

// State returns the expected state of the open authorization session.
func (s *Store) State(ctx context.Context) (string, error) {
	return s.get(ctx, keyState)
}

// StartedAt returns when the open session was begun, or the zero time.
func (s *Store) StartedAt(ctx context.Context) (time.Time, error) {
	raw, err := s.get(ctx, keyStartedAt)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// OpenSession records a fresh state and drops any code left over from an
// abandoned attempt.
func (s *Store) OpenSession(ctx context.Context, state string, now time.Time) error {
	if err := s.del(ctx, keyCode); err != nil {
		return err
	}
	if err := s.set(ctx, keyStartedAt, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return s.set(ctx, keyState, state)
}

// TakeState atomically reads and clears the session state where the
// backend allows it.
func (s *Store) TakeState(ctx context.Context) (string, bool, error) {
	return s.take(ctx, keyState)
}

// CloseSession clears state and pending code after a successful exchange.
func (s *Store) CloseSession(ctx context.Context) error {
	for _, name := range []string{keyCode, keyState, keyStartedAt} {
		if err := s.del(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// SetCode hands an authorization code to the polling orchestrator.
func (s *Store) SetCode(ctx context.Context, code string) error {
	return s.set(ctx, keyCode, code)
}

// TakeCode consumes the pending code so it is exchanged at most once.
func (s *Store) TakeCode(ctx context.Context) (string, bool, error) {
	return s.take(ctx, keyCode)
}
