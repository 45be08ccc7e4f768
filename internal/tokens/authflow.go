package tokens

import (
	"context"
	"time"

	"github.com/dgellow/statusboard/internal/crypto"
	"github.com/dgellow/statusboard/internal/log"
)

const (
	DefaultPollAttempts = 60
	DefaultPollInterval = time.Second
	// DefaultSessionTTL is how long an open session is reused before a
	// fresh state is issued.
	DefaultSessionTTL = 10 * time.Minute
	// DefaultNotifyTimeout bounds how long Begin waits on the notifier.
	DefaultNotifyTimeout = 5 * time.Second
)

// Notifier delivers the authorize URL to the operator out of band.
type Notifier interface {
	NotifyAuthorization(ctx context.Context, provider, authorizeURL string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator drives the authorization-code flow:
// no session, session open, then code received or timed out.
type Orchestrator struct {
	provider *Provider
	store    *Store
	endpoint *tokenEndpoint
	notifier Notifier

	attempts      int
	interval      time.Duration
	sessionTTL    time.Duration
	notifyTimeout time.Duration
	sleep         SleepFunc
	now           func() time.Time
}

// Begin opens an authorization session and returns the authorize URL. An
// open session younger than the session TTL is reused so repeated calls do
// not invalidate a link the operator already received.
func (o *Orchestrator) Begin(ctx context.Context) (string, error) {
	state, err := o.store.State(ctx)
	if err != nil {
		return "", err
	}
	if state != "" {
		startedAt, err := o.store.StartedAt(ctx)
		if err != nil {
			return "", err
		}
		if !startedAt.IsZero() && o.now().Sub(startedAt) < o.sessionTTL {
			return o.provider.AuthCodeURL(state), nil
		}
	}

	state, err = crypto.GenerateSecureToken()
	if err != nil {
		return "", newError(KindUnknown, o.provider.Name, "begin", err)
	}
	if err := o.store.OpenSession(ctx, state, o.now()); err != nil {
		return "", err
	}

	authURL := o.provider.AuthCodeURL(state)
	log.LogInfoWithFields("tokens", "Authorization required", map[string]any{
		"provider": o.provider.Name,
		"redirect": o.provider.RedirectURI,
	})

	o.notify(ctx, authURL)
	return authURL, nil
}

// notify hands authURL to the notifier within the notify timeout. The URL is
// returned to the caller either way, so a failure is only logged.
func (o *Orchestrator) notify(ctx context.Context, authURL string) {
	if o.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
	defer cancel()

	if err := o.notifier.NotifyAuthorization(ctx, o.provider.Name, authURL); err != nil {
		log.LogErrorWithFields("tokens", "Failed to notify operator", map[string]any{
			"provider": o.provider.Name,
			"error":    err.Error(),
		})
	}
}

// Await polls the store for a code within the polling budget and exchanges
// it. When the callback handler exchanges the code itself, the session it
// consumed ends the wait and the freshly saved record is returned. Running
// out of budget yields AuthorizationTimeout and leaves the state in place so
// a late callback can still be picked up.
func (o *Orchestrator) Await(ctx context.Context) (*Record, error) {
	previous, err := o.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < o.attempts; attempt++ {
		if err := o.sleep(ctx, o.interval); err != nil {
			return nil, o.timeout(ctx, err)
		}

		code, found, err := o.store.TakeCode(ctx)
		if err != nil {
			return nil, err
		}
		if found && code != "" {
			return o.exchangeTaken(ctx, code)
		}

		rec, done, err := o.completed(ctx, previous)
		if err != nil || done {
			return rec, err
		}
	}
	return nil, o.timeout(ctx, nil)
}

// completed reports whether the session has been consumed by the callback
// handler. A consumed session with a new usable record ends the wait with
// that record; one without ends it as rejected, since no code is left to
// collect.
func (o *Orchestrator) completed(ctx context.Context, previous *Record) (*Record, bool, error) {
	state, err := o.store.State(ctx)
	if err != nil || state != "" {
		return nil, false, err
	}

	rec, err := o.store.Load(ctx)
	if err != nil {
		return nil, false, err
	}
	if rec.AccessToken != previous.AccessToken && Evaluate(rec, o.now()).Action == ActionUseCached {
		return rec, true, nil
	}
	return nil, true, rejected(o.provider.Name, "await", "authorization session closed without a new token")
}

// Collect exchanges a code that is already in the store without waiting.
// found is false when no callback has arrived yet.
func (o *Orchestrator) Collect(ctx context.Context) (rec *Record, found bool, err error) {
	code, found, err := o.store.TakeCode(ctx)
	if err != nil || !found || code == "" {
		return nil, false, err
	}
	rec, err = o.exchangeTaken(ctx, code)
	return rec, true, err
}

// exchangeTaken exchanges a code that was just taken from the store. A code
// is single use, so a failed exchange closes the session: a replayed
// callback for the same state is then refused instead of being exchanged
// again.
func (o *Orchestrator) exchangeTaken(ctx context.Context, code string) (*Record, error) {
	rec, err := o.Exchange(ctx, code)
	if err == nil {
		return rec, nil
	}
	if closeErr := o.store.CloseSession(context.WithoutCancel(ctx)); closeErr != nil {
		log.LogErrorWithFields("tokens", "Failed to close authorization session", map[string]any{
			"provider": o.provider.Name,
			"error":    closeErr.Error(),
		})
	}
	return nil, err
}

func (o *Orchestrator) timeout(ctx context.Context, cause error) error {
	e := newError(KindAuthorizationTimeout, o.provider.Name, "await", cause)
	// Best effort; the caller only uses the URL for display.
	if state, err := o.store.State(context.WithoutCancel(ctx)); err == nil && state != "" {
		e.AuthorizeURL = o.provider.AuthCodeURL(state)
	}
	return e
}

// Exchange trades code for a token record, persists it and closes the
// session. A rejected exchange leaves the provider needing authorization.
func (o *Orchestrator) Exchange(ctx context.Context, code string) (*Record, error) {
	token, err := o.endpoint.exchange(ctx, code)
	if err != nil {
		log.LogErrorWithFields("tokens", "Failed to exchange code for token", map[string]any{
			"provider": o.provider.Name,
			"error":    err.Error(),
		})
		return nil, err
	}

	rec := recordFromToken(token, o.now(), "")
	if err := o.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := o.store.CloseSession(ctx); err != nil {
		return nil, err
	}

	log.LogInfoWithFields("tokens", "Authorization completed", map[string]any{
		"provider":  o.provider.Name,
		"token":     log.Fingerprint(rec.AccessToken),
		"expiresAt": rec.ExpiresAt,
	})
	return rec, nil
}
