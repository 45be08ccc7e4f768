package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePending(t *testing.T) {
	tests := []struct {
		name           string
		retryAfter     time.Duration
		authorizeURL   string
		wantRetryAfter string
	}{
		{
			name:           "with retry hint and url",
			retryAfter:     30 * time.Second,
			authorizeURL:   "https://accounts.example.com/authorize?state=s1",
			wantRetryAfter: "30",
		},
		{
			name:           "without retry hint",
			retryAfter:     0,
			wantRetryAfter: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WritePending(w, "authorization_pending", "waiting for operator", tt.authorizeURL, tt.retryAfter)

			assert.Equal(t, http.StatusAccepted, w.Code)
			assert.Equal(t, tt.wantRetryAfter, w.Header().Get("Retry-After"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "authorization_pending", body.Error)
			assert.Equal(t, "waiting for operator", body.Message)
			assert.Equal(t, tt.authorizeURL, body.AuthorizeURL)
		})
	}
}

func TestWriteErrorHelpers(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, string)
		wantStatus int
		wantCode   string
	}{
		{"bad request", WriteBadRequest, http.StatusBadRequest, "bad_request"},
		{"unauthorized", WriteUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", WriteNotFound, http.StatusNotFound, "not_found"},
		{"bad gateway", WriteBadGateway, http.StatusBadGateway, "bad_gateway"},
		{"unavailable", WriteServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"internal", WriteInternalServerError, http.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "Test error")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, "Test error", body.Message)
		})
	}
}

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, Write(w, map[string]any{"is_playing": true}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"is_playing":true}`, w.Body.String())
}
