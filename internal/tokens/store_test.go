package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgellow/statusboard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := NewStore(kv, "tesla")

	rec, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Present())

	expiry := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiry}))

	got := snapshot(t, kv)
	assert.Equal(t, "a1", got["tesla:access_token"])
	assert.Equal(t, "r1", got["tesla:refresh_token"])
	assert.Equal(t, "2024-06-01T13:00:00Z", got["tesla:expires_at"])

	rec, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expiry}, rec)
}

func TestStoreInvalidateKeepsTokens(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := NewStore(kv, "spotify")

	require.NoError(t, s.Save(ctx, &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, s.Invalidate(ctx))

	rec, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", rec.AccessToken)
	assert.Equal(t, "r1", rec.RefreshToken)
	assert.True(t, rec.ExpiresAt.IsZero())
	assert.Equal(t, ActionRefresh, Evaluate(rec, time.Now()).Action)
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := NewStore(kv, "spotify")

	require.NoError(t, s.Save(ctx, &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now()}))
	require.NoError(t, kv.Set(ctx, "tesla:access_token", "other"))
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, map[string]string{"tesla:access_token": "other"}, snapshot(t, kv), "only this provider's keys are cleared")
}

func TestStoreUnparseableExpiryIsExpired(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, "spotify:access_token", "a1"))
	require.NoError(t, kv.Set(ctx, "spotify:expires_at", "soon"))

	rec, err := NewStore(kv, "spotify").Load(ctx)
	require.NoError(t, err)
	assert.True(t, rec.ExpiresAt.IsZero())
	assert.Equal(t, ActionReauthorize, Evaluate(rec, time.Now()).Action)
}

func TestStoreSession(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	s := NewStore(kv, "spotify")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetCode(ctx, "stale"))
	require.NoError(t, s.OpenSession(ctx, "s1", now))

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", state)

	started, err := s.StartedAt(ctx)
	require.NoError(t, err)
	assert.True(t, started.Equal(now))

	_, found, err := s.TakeCode(ctx)
	require.NoError(t, err)
	assert.False(t, found, "opening a session drops abandoned codes")

	require.NoError(t, s.SetCode(ctx, "c1"))
	code, found, err := s.TakeCode(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c1", code)

	require.NoError(t, s.CloseSession(ctx))
	assert.Empty(t, snapshot(t, kv))
}

// failingKV fails every operation
type failingKV struct{}

var errKVDown = errors.New("kv down")

func (failingKV) Get(context.Context, string) (string, bool, error) { return "", false, errKVDown }
func (failingKV) Set(context.Context, string, string) error         { return errKVDown }
func (failingKV) Delete(context.Context, string) error              { return errKVDown }

func TestStoreUnavailable(t *testing.T) {
	_, err := NewStore(failingKV{}, "spotify").Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, errKVDown))
}
