package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const currentlyPlaying = `{
  "is_playing": true,
  "progress_ms": 42000,
  "currently_playing_type": "track",
  "item": {
    "name": "Teardrop",
    "duration_ms": 330000,
    "artists": [{"name": "Massive Attack"}, {"name": "Elizabeth Fraser"}],
    "album": {
      "name": "Mezzanine",
      "images": [
        {"url": "https://i.scdn.co/640", "width": 640, "height": 640},
        {"url": "https://i.scdn.co/300", "width": 300, "height": 300},
        {"url": "https://i.scdn.co/64", "width": 64, "height": 64}
      ]
    }
  }
}`

func TestNowPlaying(t *testing.T) {
	var auth string
	srv := serve(t, http.StatusOK, currentlyPlaying, &auth)

	got, err := NewNowPlayingFetcher(srv.URL, srv.Client()).Fetch(context.Background(), "BQD-a1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer BQD-a1", auth)
	assert.Equal(t, &NowPlaying{
		Playing:    true,
		Title:      "Teardrop",
		Artist:     "Massive Attack, Elizabeth Fraser",
		Album:      "Mezzanine",
		ImageURL:   "https://i.scdn.co/300",
		ProgressMs: 42000,
		DurationMs: 330000,
	}, got)
}

func TestNowPlayingNothingPlaying(t *testing.T) {
	srv := serve(t, http.StatusNoContent, "", nil)

	got, err := NewNowPlayingFetcher(srv.URL, srv.Client()).Fetch(context.Background(), "a1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnauthorized(t *testing.T) {
	srv := serve(t, http.StatusUnauthorized, `{"error":{"status":401,"message":"The access token expired"}}`, nil)

	_, err := NewNowPlayingFetcher(srv.URL, srv.Client()).Fetch(context.Background(), "a1")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestStatusError(t *testing.T) {
	srv := serve(t, http.StatusTooManyRequests, "slow down", nil)

	f, err := NewLiveStatusFetcher(srv.URL, "", srv.Client())
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "a1")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "slow down", se.Body)
	assert.Contains(t, err.Error(), "status 429: slow down")
}

func TestLiveStatus(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"response":{"solar_power":3120.4,"battery_power":-1500.6,"grid_power":0,"load_power":1619.8,"percentage_charged":81.57,"grid_status":"Active","timestamp":"2024-06-01T12:00:00+02:00"}}`, nil)

	f, err := NewLiveStatusFetcher(srv.URL, "", srv.Client())
	require.NoError(t, err)

	got, err := f.Fetch(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, &LiveStatus{
		SolarW:     3120,
		BatteryW:   -1501,
		GridW:      0,
		LoadW:      1620,
		BatteryPct: 82,
		GridStatus: "Active",
		Timestamp:  "2024-06-01T12:00:00+02:00",
	}, got)
}

func TestLiveStatusSiteID(t *testing.T) {
	_, err := NewLiveStatusFetcher("", "", nil)
	assert.Error(t, err)

	f, err := NewLiveStatusFetcher("", "1689", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://fleet-api.prd.na.vn.cloud.tesla.com/api/1/energy_sites/1689/live_status", f.Endpoint)
}
