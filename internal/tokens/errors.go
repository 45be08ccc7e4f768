package tokens

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the token lifecycle can report.
type Kind int

const (
	KindUnknown Kind = iota
	// KindStoreUnavailable means the KV service could not be reached. Callers
	// treat it as "no valid token".
	KindStoreUnavailable
	// KindProviderRejected covers non-2xx token responses and malformed
	// bodies. A rejected refresh clears the stored record.
	KindProviderRejected
	// KindStateMismatch is a client error on the callback; nothing was written.
	KindStateMismatch
	// KindAuthorizationPending means a flow was begun and the operator has
	// been sent the authorize URL.
	KindAuthorizationPending
	// KindAuthorizationTimeout means the polling budget ran out before a code
	// arrived. The flow may still complete later.
	KindAuthorizationTimeout
	KindMissingConfiguration
	// KindProviderUnavailable means the token endpoint never answered
	// (network failure, timeout). Nothing stored is cleared.
	KindProviderUnavailable
)

var kindCodes = map[Kind]string{
	KindUnknown:              "internal_error",
	KindStoreUnavailable:     "store_unavailable",
	KindProviderRejected:     "provider_rejected",
	KindStateMismatch:        "state_mismatch",
	KindAuthorizationPending: "authorization_pending",
	KindAuthorizationTimeout: "authorization_timeout",
	KindMissingConfiguration: "missing_configuration",
	KindProviderUnavailable:  "provider_unavailable",
}

// Code is the snake_case identifier used in JSON error bodies
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindUnknown]
}

func (k Kind) String() string {
	return k.Code()
}

// Error is the error type returned by every exported operation in this
// package.
type Error struct {
	Kind     Kind
	Provider string
	Op       string
	Err      error

	// AuthorizeURL is set on pending and timeout errors so the caller can
	// surface it.
	AuthorizeURL string
}

func (e *Error) Error() string {
	msg := e.Kind.Code()
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind alone, so errors.Is(err, ErrProviderRejected) holds for
// any provider or operation.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrProviderRejected     = &Error{Kind: KindProviderRejected}
	ErrStateMismatch        = &Error{Kind: KindStateMismatch}
	ErrAuthorizationPending = &Error{Kind: KindAuthorizationPending}
	ErrAuthorizationTimeout = &Error{Kind: KindAuthorizationTimeout}
	ErrMissingConfiguration = &Error{Kind: KindMissingConfiguration}
	ErrProviderUnavailable  = &Error{Kind: KindProviderUnavailable}
)

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, provider, op string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Err: err}
}

func storeError(provider, op string, err error) *Error {
	return newError(KindStoreUnavailable, provider, op, err)
}

func rejected(provider, op string, format string, args ...any) *Error {
	return newError(KindProviderRejected, provider, op, fmt.Errorf(format, args...))
}

func unavailable(provider, op string, format string, args ...any) *Error {
	return newError(KindProviderUnavailable, provider, op, fmt.Errorf(format, args...))
}
