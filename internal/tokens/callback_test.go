package tokens

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackStateMismatchWritesNothing(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	_, err := h.manager.BeginAuthorization(ctx)
	require.NoError(t, err)
	before := snapshot(t, h.kv)

	tests := []struct {
		name  string
		state string
	}{
		{"wrong state", "forged"},
		{"empty state", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.manager.HandleCallback(ctx, tt.state, "c1", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStateMismatch))
			assert.Equal(t, before, snapshot(t, h.kv))
		})
	}
}

func TestCallbackWithoutSession(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, err := h.manager.HandleCallback(context.Background(), "s1", "c1", "")
	assert.True(t, errors.Is(err, ErrStateMismatch))
	assert.Empty(t, snapshot(t, h.kv))
}

func TestCallbackAccessDenied(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	authURL, err := h.manager.BeginAuthorization(ctx)
	require.NoError(t, err)
	before := snapshot(t, h.kv)

	_, err = h.manager.HandleCallback(ctx, h.stateFromURL(t, authURL), "", "access_denied")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderRejected))
	assert.Contains(t, err.Error(), "access_denied")
	assert.Equal(t, before, snapshot(t, h.kv))
}

func TestCallbackExchangeModeIsSingleUse(t *testing.T) {
	h := newHarness(t, func(map[string]string) (int, any) {
		return http.StatusOK, map[string]any{"access_token": "EU_a1", "refresh_token": "EU_r1", "expires_in": 28800}
	}, func(p *Provider) {
		p.Name = "tesla"
		p.Encoding = EncodingJSON
		p.CallbackMode = CallbackExchange
	})
	ctx := context.Background()

	authURL, err := h.manager.BeginAuthorization(ctx)
	require.NoError(t, err)
	state := h.stateFromURL(t, authURL)

	res, err := h.manager.HandleCallback(ctx, state, "c1", "")
	require.NoError(t, err)
	assert.True(t, res.Exchanged)
	assert.Equal(t, CallbackExchange, res.Mode)

	got := snapshot(t, h.kv)
	assert.Equal(t, "EU_a1", got["tesla:access_token"])
	assert.NotContains(t, got, "tesla:oauth_state")

	_, err = h.manager.HandleCallback(ctx, state, "c1", "")
	assert.True(t, errors.Is(err, ErrStateMismatch), "replayed callback is rejected")
	assert.Len(t, h.srv.calls(), 1)
}

func TestCallbackStoreModeCodeConsumedOnce(t *testing.T) {
	h := newHarness(t, func(map[string]string) (int, any) {
		return http.StatusOK, map[string]any{"access_token": "a1", "expires_in": 3600}
	}, nil)
	ctx := context.Background()

	authURL, err := h.manager.BeginAuthorization(ctx)
	require.NoError(t, err)
	_, err = h.manager.HandleCallback(ctx, h.stateFromURL(t, authURL), "c1", "")
	require.NoError(t, err)

	code, found, err := h.manager.Store().TakeCode(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "c1", code)

	_, found, err = h.manager.Store().TakeCode(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}
