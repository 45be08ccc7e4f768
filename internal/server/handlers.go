package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	jsonwriter "github.com/dgellow/statusboard/internal/json"
	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/tokens"
	"github.com/dgellow/statusboard/internal/upstream"
)

// DefaultRetryAfter is the hint sent with 202 answers while an operator
// authorization is in flight.
const DefaultRetryAfter = 10 * time.Second

// TokenManager is the part of tokens.Manager the HTTP surface depends on
type TokenManager interface {
	Provider() string
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
	ForceRefresh(ctx context.Context) (*tokens.Record, error)
	BeginAuthorization(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, state, code, providerError string) (*tokens.CallbackResult, error)
	Status(ctx context.Context) (*tokens.Status, error)
}

var _ TokenManager = (*tokens.Manager)(nil)

// DataRoute binds a device-facing path to a provider's data endpoint
type DataRoute struct {
	Path     string
	Provider string
	Fetcher  upstream.Fetcher
}

// Handlers serves the device and operator endpoints
type Handlers struct {
	managers   map[string]TokenManager
	routes     []DataRoute
	retryAfter time.Duration
}

// NewHandlers creates the handler set. Managers are keyed by provider name.
func NewHandlers(managers []TokenManager, routes []DataRoute, retryAfter time.Duration) *Handlers {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	byName := make(map[string]TokenManager, len(managers))
	for _, m := range managers {
		byName[m.Provider()] = m
	}
	return &Handlers{
		managers:   byName,
		routes:     routes,
		retryAfter: retryAfter,
	}
}

// Providers returns the configured provider names in sorted order
func (h *Handlers) Providers() []string {
	names := make([]string, 0, len(h.managers))
	for name := range h.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Handlers) manager(w http.ResponseWriter, r *http.Request) (TokenManager, bool) {
	name := r.PathValue("provider")
	m, ok := h.managers[name]
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown provider")
		return nil, false
	}
	return m, true
}

// DataHandler serves one device payload. A 401 from upstream invalidates
// the cached token and the request is retried exactly once.
func (h *Handlers) DataHandler(route DataRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := h.managers[route.Provider]
		if !ok {
			jsonwriter.WriteNotFound(w, "Provider is not configured")
			return
		}
		ctx := r.Context()

		payload, err := h.fetch(ctx, m, route)
		if errors.Is(err, upstream.ErrUnauthorized) {
			log.LogInfoWithFields("server", "Upstream rejected token, invalidating", map[string]any{
				"provider": route.Provider,
			})
			if err := m.Invalidate(ctx); err != nil {
				writeTokenError(w, route.Provider, err, h.retryAfter)
				return
			}
			payload, err = h.fetch(ctx, m, route)
		}

		var tokErr *tokens.Error
		switch {
		case errors.As(err, &tokErr):
			writeTokenError(w, route.Provider, err, h.retryAfter)
			return
		case err != nil:
			writeUpstreamError(w, route.Provider, err)
			return
		}

		if payload == nil {
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = jsonwriter.Write(w, payload)
	}
}

func (h *Handlers) fetch(ctx context.Context, m TokenManager, route DataRoute) (any, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return route.Fetcher.Fetch(ctx, token)
}

// CallbackHandler receives the provider redirect and renders a page for the
// operator's browser.
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	m, ok := h.managers[name]
	if !ok {
		renderCallbackPage(w, http.StatusNotFound, callbackPage{
			Title:   "Unknown provider",
			Message: "This callback does not belong to a configured provider.",
		})
		return
	}

	q := r.URL.Query()
	providerError := q.Get("error")
	if desc := q.Get("error_description"); providerError != "" && desc != "" {
		providerError += ": " + desc
	}

	result, err := m.HandleCallback(r.Context(), q.Get("state"), q.Get("code"), providerError)
	if err != nil {
		kind := tokens.KindOf(err)
		log.LogWarnWithFields("server", "Callback failed", map[string]any{
			"provider": name,
			"kind":     kind.Code(),
			"error":    err.Error(),
		})
		renderCallbackPage(w, statusForKind(kind), callbackFailurePage(name, kind))
		return
	}

	log.LogInfoWithFields("server", "Callback accepted", map[string]any{
		"provider":  name,
		"mode":      string(result.Mode),
		"exchanged": result.Exchanged,
	})
	message := "Authorization received. The device will pick it up on its next request."
	if result.Exchanged {
		message = "Authorization complete. You can close this window."
	}
	renderCallbackPage(w, http.StatusOK, callbackPage{
		Title:    "Connected",
		Provider: name,
		Message:  message,
		Success:  true,
	})
}

// AuthorizeHandler opens (or reuses) a session and redirects the operator
// to the provider's consent page.
func (h *Handlers) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	authURL, err := m.BeginAuthorization(r.Context())
	if err != nil {
		writeTokenError(w, m.Provider(), err, h.retryAfter)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// RefreshHandler forces a refresh regardless of the cached expiry
func (h *Handlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	rec, err := m.ForceRefresh(r.Context())
	if err != nil {
		writeTokenError(w, m.Provider(), err, h.retryAfter)
		return
	}
	_ = jsonwriter.Write(w, map[string]any{
		"provider":   m.Provider(),
		"refreshed":  true,
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// StatusHandler reports the token state without exposing any secret
func (h *Handlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}
	status, err := m.Status(r.Context())
	if err != nil {
		writeTokenError(w, m.Provider(), err, h.retryAfter)
		return
	}
	_ = jsonwriter.Write(w, status)
}

// Routes builds the mux with the logging and recovery middleware applied
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", NewHealthHandler(h.Providers()))

	for _, route := range h.routes {
		mux.Handle("GET "+route.Path, h.DataHandler(route))
	}

	mux.HandleFunc("GET /oauth/callback/{provider}", h.CallbackHandler)
	mux.HandleFunc("GET /oauth/authorize/{provider}", h.AuthorizeHandler)
	mux.HandleFunc("POST /oauth/refresh/{provider}", h.RefreshHandler)
	mux.HandleFunc("GET /oauth/status/{provider}", h.StatusHandler)

	return ChainMiddleware(mux,
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	)
}
