package tokens

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/dgellow/statusboard/internal/log"
)

// CallbackResult describes what a successful callback did.
type CallbackResult struct {
	Provider  string
	Mode      CallbackMode
	Exchanged bool
}

// CallbackHandler validates the state of an inbound redirect and passes the
// code on according to the provider's mode.
type CallbackHandler struct {
	provider *Provider
	store    *Store
	flow     *Orchestrator
}

func statesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Handle processes one callback. A missing or unequal state is rejected
// with StateMismatch before anything is written. providerError carries the
// provider's error parameter when the user denied access.
func (h *CallbackHandler) Handle(ctx context.Context, state, code, providerError string) (*CallbackResult, error) {
	name := h.provider.Name

	expected, err := h.store.State(ctx)
	if err != nil {
		return nil, err
	}
	if expected == "" || state == "" || !statesEqual(expected, state) {
		log.LogWarnWithFields("tokens", "Callback state mismatch", map[string]any{
			"provider":    name,
			"stateStored": expected != "",
		})
		return nil, newError(KindStateMismatch, name, "callback", errors.New("state does not match the open session"))
	}

	if providerError != "" || code == "" {
		reason := providerError
		if reason == "" {
			reason = "no code in callback"
		}
		return nil, rejected(name, "callback", "%s", reason)
	}

	result := &CallbackResult{Provider: name, Mode: h.provider.CallbackMode}

	switch h.provider.CallbackMode {
	case CallbackExchange:
		// Claim the session so a replayed callback cannot exchange twice.
		taken, found, err := h.store.TakeState(ctx)
		if err != nil {
			return nil, err
		}
		if !found || !statesEqual(taken, state) {
			return nil, newError(KindStateMismatch, name, "callback", errors.New("session already consumed"))
		}
		if _, err := h.flow.Exchange(ctx, code); err != nil {
			return nil, err
		}
		result.Exchanged = true
	default:
		if err := h.store.SetCode(ctx, code); err != nil {
			return nil, err
		}
		log.LogInfoWithFields("tokens", "Stored authorization code", map[string]any{
			"provider": name,
		})
	}
	return result, nil
}
