package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/dgellow/statusboard/internal/tokens"

// RefreshFailurePolicy decides what happens after a refresh is rejected.
type RefreshFailurePolicy string

const (
	// RefreshFailureReauthorize begins a new authorization flow.
	RefreshFailureReauthorize RefreshFailurePolicy = "reauthorize"
	// RefreshFailureFail surfaces ProviderRejected to the caller.
	RefreshFailureFail RefreshFailurePolicy = "fail"
)

// Manager is the per-provider entry point: it evaluates the cached record
// and refreshes or re-authorizes as needed.
type Manager struct {
	provider  *Provider
	configErr error
	store     *Store
	refresher *Refresher
	flow      *Orchestrator
	callback  *CallbackHandler

	refreshGroup singleflight.Group
	onFailure    RefreshFailurePolicy
	wait         bool
	now          func() time.Time
	tracer       trace.Tracer
}

// Option configures a Manager
type Option func(*Manager)

// WithHTTPClient sets the client used for token endpoint calls
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.refresher.endpoint.httpClient = c
	}
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.flow.notifier = n
	}
}

// WithClock replaces time.Now for every component of the manager
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.refresher.now = now
		m.flow.now = now
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(m *Manager) {
		m.flow.sleep = sleep
	}
}

// WithPolling sets the bounded wait used by Await
func WithPolling(attempts int, interval time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.flow.attempts = attempts
		}
		if interval > 0 {
			m.flow.interval = interval
		}
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.flow.sessionTTL = ttl
		}
	}
}

// WithNotifyTimeout bounds each call to the notifier
func WithNotifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.flow.notifyTimeout = d
		}
	}
}

// WithWait makes AccessToken block for a code instead of returning
// AuthorizationPending immediately.
func WithWait(wait bool) Option {
	return func(m *Manager) {
		m.wait = wait
	}
}

func WithRefreshFailurePolicy(p RefreshFailurePolicy) Option {
	return func(m *Manager) {
		if p != "" {
			m.onFailure = p
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = t
	}
}

// NewManager builds the lifecycle manager for provider over kv. An invalid
// provider does not fail construction; every operation then returns
// MissingConfiguration before touching the network.
func NewManager(provider Provider, kv storage.Store, opts ...Option) *Manager {
	p := &provider
	store := NewStore(kv, p.Name)
	endpoint := &tokenEndpoint{
		provider:   p,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	m := &Manager{
		provider:  p,
		configErr: p.Validate(),
		store:     store,
		refresher: &Refresher{store: store, endpoint: endpoint, now: time.Now},
		flow: &Orchestrator{
			provider:      p,
			store:         store,
			endpoint:      endpoint,
			attempts:      DefaultPollAttempts,
			interval:      DefaultPollInterval,
			sessionTTL:    DefaultSessionTTL,
			notifyTimeout: DefaultNotifyTimeout,
			sleep:         sleepContext,
			now:           time.Now,
		},
		onFailure: RefreshFailureReauthorize,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	m.callback = &CallbackHandler{provider: p, store: store, flow: m.flow}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the provider name
func (m *Manager) Provider() string {
	return m.provider.Name
}

// Validate returns the configuration error, if any
func (m *Manager) Validate() error {
	return m.configErr
}

// Store exposes the typed store, mostly for tests and status reporting
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("oauth.provider", m.provider.Name),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).Code())
	}
	span.End()
}

// AccessToken returns a currently valid access token, refreshing or
// re-authorizing as the stored record requires.
//
// A StoreUnavailable error from reading the record is returned as is rather
// than treated as "no token": beginning a flow would need the same store, so
// the caller gets the store failure instead of an authorize URL that could
// never be completed. A refresh that fails with ProviderUnavailable is also
// returned without re-authorizing, and the stored record is kept.
func (m *Manager) AccessToken(ctx context.Context) (token string, err error) {
	if m.configErr != nil {
		return "", m.configErr
	}

	ctx, span := m.startSpan(ctx, "tokens.AccessToken")
	defer func() { endSpan(span, err) }()

	rec, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}

	decision := Evaluate(rec, m.now())
	span.SetAttributes(attribute.String("oauth.decision", decision.Action.String()))

	switch decision.Action {
	case ActionUseCached:
		return decision.AccessToken, nil
	case ActionRefresh:
		rec, err := m.refresh(ctx, decision.RefreshToken)
		if err == nil {
			return rec.AccessToken, nil
		}
		if !errors.Is(err, ErrProviderRejected) || m.onFailure == RefreshFailureFail {
			return "", err
		}
	}

	rec, err = m.authorize(ctx)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// refresh collapses concurrent refreshes in this process into one request.
// Other instances may still refresh concurrently; the last write wins.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*Record, error) {
	ch := m.refreshGroup.DoChan(refreshToken, func() (any, error) {
		ctx, span := m.startSpan(context.WithoutCancel(ctx), "tokens.Refresh")
		rec, err := m.refresher.Refresh(ctx, refreshToken)
		endSpan(span, err)
		return rec, err
	})

	select {
	case <-ctx.Done():
		return nil, newError(KindUnknown, m.provider.Name, "refresh", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Record), nil
	}
}

// authorize begins a flow and, when configured to wait, blocks for the code.
// Without waiting, a code stored by an earlier callback is exchanged first.
func (m *Manager) authorize(ctx context.Context) (*Record, error) {
	if !m.wait {
		if rec, found, err := m.flow.Collect(ctx); found || err != nil {
			return rec, err
		}
	}

	authURL, err := m.flow.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if !m.wait {
		return nil, &Error{
			Kind:         KindAuthorizationPending,
			Provider:     m.provider.Name,
			Op:           "authorize",
			AuthorizeURL: authURL,
		}
	}
	return m.flow.Await(ctx)
}

// Invalidate is called after the data endpoint answered 401. The refresh
// token is kept so the next AccessToken refreshes instead of re-authorizing.
func (m *Manager) Invalidate(ctx context.Context) error {
	if m.configErr != nil {
		return m.configErr
	}
	log.LogInfoWithFields("tokens", "Invalidating cached access token", map[string]any{
		"provider": m.provider.Name,
	})
	return m.store.Invalidate(ctx)
}

// ForceRefresh refreshes now regardless of the stored expiry. Without a
// refresh token it begins an authorization flow.
func (m *Manager) ForceRefresh(ctx context.Context) (rec *Record, err error) {
	if m.configErr != nil {
		return nil, m.configErr
	}

	ctx, span := m.startSpan(ctx, "tokens.ForceRefresh")
	defer func() { endSpan(span, err) }()

	current, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if current.RefreshToken != "" {
		rec, err = m.refresh(ctx, current.RefreshToken)
		if err == nil || m.onFailure == RefreshFailureFail || !errors.Is(err, ErrProviderRejected) {
			return rec, err
		}
	}
	return m.authorize(ctx)
}

// BeginAuthorization opens (or reuses) a session and returns the URL the
// operator should visit.
func (m *Manager) BeginAuthorization(ctx context.Context) (string, error) {
	if m.configErr != nil {
		return "", m.configErr
	}
	return m.flow.Begin(ctx)
}

// HandleCallback validates and consumes an inbound authorization redirect.
func (m *Manager) HandleCallback(ctx context.Context, state, code, providerError string) (res *CallbackResult, err error) {
	if m.configErr != nil {
		return nil, m.configErr
	}

	ctx, span := m.startSpan(ctx, "tokens.Callback")
	defer func() { endSpan(span, err) }()

	return m.callback.Handle(ctx, state, code, providerError)
}

// Status is the secret-free view of a provider's token state.
type Status struct {
	Provider        string     `json:"provider"`
	Decision        string     `json:"decision"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	SessionOpen     bool       `json:"session_open"`
	CallbackMode    string     `json:"callback_mode"`
}

// Status reports the current decision without acting on it.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if m.configErr != nil {
		return nil, m.configErr
	}

	rec, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	state, err := m.store.State(ctx)
	if err != nil {
		return nil, err
	}

	s := &Status{
		Provider:        m.provider.Name,
		Decision:        Evaluate(rec, m.now()).Action.String(),
		HasRefreshToken: rec.RefreshToken != "",
		SessionOpen:     state != "",
		CallbackMode:    string(m.provider.CallbackMode),
	}
	if !rec.ExpiresAt.IsZero() {
		t := rec.ExpiresAt
		s.ExpiresAt = &t
	}
	return s, nil
}

func (m *Manager) String() string {
	return fmt.Sprintf("tokens.Manager(%s)", m.provider.Name)
}
