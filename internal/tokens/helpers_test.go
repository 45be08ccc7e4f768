package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/statusboard/internal/storage"
)

// tokenServer is a fake provider token endpoint that records every request
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []map[string]string
	types    []string
	respond  func(params map[string]string) (int, any)
}

func newTokenServer(t *testing.T, respond func(params map[string]string) (int, any)) *tokenServer {
	t.Helper()
	ts := &tokenServer{respond: respond}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		if r.Header.Get("Content-Type") == "application/json" {
			_ = json.NewDecoder(r.Body).Decode(&params)
		} else {
			_ = r.ParseForm()
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}
		}

		ts.mu.Lock()
		ts.requests = append(ts.requests, params)
		ts.types = append(ts.types, r.Header.Get("Content-Type"))
		respond := ts.respond
		ts.mu.Unlock()

		status, body := respond(params)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch b := body.(type) {
		case string:
			_, _ = w.Write([]byte(b))
		case nil:
		default:
			_ = json.NewEncoder(w).Encode(b)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) calls() []map[string]string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]map[string]string(nil), ts.requests...)
}

func (ts *tokenServer) contentTypes() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.types...)
}

func testProvider(tokenURL string) Provider {
	return Provider{
		Name:         "spotify",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthorizeURL: "https://accounts.example.com/authorize",
		TokenURL:     tokenURL,
		RedirectURI:  "https://board.example.com/oauth/callback/spotify",
		Scopes:       []string{"user-read-currently-playing", "user-read-playback-state"},
		Encoding:     EncodingForm,
		CallbackMode: CallbackStore,
	}
}

// fixedClock returns a controllable clock
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingSleep records sleeps without waiting and runs hook before
// returning
type countingSleep struct {
	mu    sync.Mutex
	count int
	hook  func(n int)
}

func (s *countingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.count++
	n := s.count
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

func (s *countingSleep) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type recordingNotifier struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (n *recordingNotifier) NotifyAuthorization(_ context.Context, _ string, authorizeURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, authorizeURL)
	return n.err
}

func (n *recordingNotifier) URLs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.urls...)
}

// snapshot copies every key currently in a memory store
func snapshot(t *testing.T, kv *storage.MemoryStore) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, k := range kv.Keys() {
		v, _, _ := kv.Get(context.Background(), k)
		out[k] = v
	}
	return out
}
