package server

import (
	"errors"
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/statusboard/internal/json"
	"github.com/dgellow/statusboard/internal/log"
	"github.com/dgellow/statusboard/internal/tokens"
	"github.com/dgellow/statusboard/internal/upstream"
)

// statusForKind maps the token error taxonomy onto HTTP
func statusForKind(kind tokens.Kind) int {
	switch kind {
	case tokens.KindAuthorizationPending, tokens.KindAuthorizationTimeout:
		return http.StatusAccepted
	case tokens.KindStateMismatch:
		return http.StatusBadRequest
	case tokens.KindMissingConfiguration:
		return http.StatusInternalServerError
	case tokens.KindProviderRejected:
		return http.StatusBadGateway
	case tokens.KindStoreUnavailable, tokens.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var kindMessages = map[tokens.Kind]string{
	tokens.KindAuthorizationPending: "Authorization required, the operator has been notified",
	tokens.KindAuthorizationTimeout: "Still waiting for authorization",
	tokens.KindStateMismatch:        "Authorization state does not match",
	tokens.KindMissingConfiguration: "Provider is not configured",
	tokens.KindProviderRejected:     "Provider rejected the request",
	tokens.KindStoreUnavailable:     "Token store unavailable",
	tokens.KindProviderUnavailable:  "Provider token endpoint unreachable",
}

// writeTokenError renders any error from the token manager as JSON
func writeTokenError(w http.ResponseWriter, provider string, err error, retryAfter time.Duration) {
	var tokErr *tokens.Error
	if !errors.As(err, &tokErr) {
		log.LogErrorWithFields("server", "Unexpected token error", map[string]any{
			"provider": provider,
			"error":    err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal Server Error")
		return
	}

	status := statusForKind(tokErr.Kind)
	message := kindMessages[tokErr.Kind]
	if message == "" {
		message = "Internal Server Error"
	}

	if status == http.StatusAccepted {
		jsonwriter.WritePending(w, tokErr.Kind.Code(), message, tokErr.AuthorizeURL, retryAfter)
		return
	}
	if status >= 500 {
		log.LogErrorWithFields("server", "Token lifecycle failed", map[string]any{
			"provider": provider,
			"kind":     tokErr.Kind.Code(),
			"error":    err.Error(),
		})
	}
	jsonwriter.WriteError(w, status, tokErr.Kind.Code(), message)
}

// writeUpstreamError renders a data endpoint failure
func writeUpstreamError(w http.ResponseWriter, provider string, err error) {
	log.LogErrorWithFields("server", "Upstream request failed", map[string]any{
		"provider": provider,
		"error":    err.Error(),
	})

	var se *upstream.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		jsonwriter.WriteError(w, http.StatusServiceUnavailable, "upstream_rate_limited", "Upstream rate limit reached")
		return
	}
	if errors.Is(err, upstream.ErrUnauthorized) {
		jsonwriter.WriteBadGateway(w, "Upstream rejected a freshly issued token")
		return
	}
	jsonwriter.WriteError(w, http.StatusBadGateway, "upstream_error", "Upstream request failed")
}
