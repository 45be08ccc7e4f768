package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries(w interface{ setRetryWait(time.Duration) }) {
	w.setRetryWait(time.Millisecond)
}

func (p *Pushover) setRetryWait(d time.Duration) {
	p.client.RetryWaitMin, p.client.RetryWaitMax = d, d
}

func (w *Webhook) setRetryWait(d time.Duration) {
	w.client.RetryWaitMin, w.client.RetryWaitMax = d, d
}

func TestWebhookPostsPayload(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, map[string]string{"Authorization": "Bearer hook"})
	require.NoError(t, err)

	err = wh.NotifyAuthorization(context.Background(), "spotify", "https://accounts.example.com/authorize?state=s1")
	require.NoError(t, err)
	assert.Equal(t, "spotify", got.Provider)
	assert.Equal(t, "https://accounts.example.com/authorize?state=s1", got.URL)
	assert.Equal(t, "Authorize spotify", got.Title)
	assert.Equal(t, "Bearer hook", auth)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, nil)
	require.NoError(t, err)
	fastRetries(wh)

	require.NoError(t, wh.NotifyAuthorization(context.Background(), "tesla", "https://auth.example.com"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad signature"))
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, nil)
	require.NoError(t, err)

	err = wh.NotifyAuthorization(context.Background(), "tesla", "https://auth.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403: bad signature")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPushover(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		_, _ = w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	defer srv.Close()

	p, err := NewPushover("app-token", "user-key")
	require.NoError(t, err)
	p.Endpoint = srv.URL

	require.NoError(t, p.NotifyAuthorization(context.Background(), "spotify", "https://accounts.example.com/authorize"))
	assert.Equal(t, "app-token", form["token"])
	assert.Equal(t, "user-key", form["user"])
	assert.Equal(t, "https://accounts.example.com/authorize", form["url"])
	assert.Equal(t, "Authorize spotify", form["title"])
}

func TestPushoverRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"errors":["user identifier is invalid"]}`))
	}))
	defer srv.Close()

	p, err := NewPushover("app-token", "bad")
	require.NoError(t, err)
	p.Endpoint = srv.URL
	fastRetries(p)

	err = p.NotifyAuthorization(context.Background(), "spotify", "https://accounts.example.com/authorize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user identifier is invalid")
}

func TestConstructorValidation(t *testing.T) {
	_, err := NewPushover("", "user")
	assert.Error(t, err)
	_, err = NewWebhook("", nil)
	assert.Error(t, err)
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) NotifyAuthorization(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &stubNotifier{err: boom}, &stubNotifier{}

	err := Multi{a, b, Log{}}.NotifyAuthorization(context.Background(), "tesla", "https://auth.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls, "later notifiers still run")
}
