package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  *Record
		want Decision
	}{
		{
			name: "nil record",
			rec:  nil,
			want: Decision{Action: ActionReauthorize},
		},
		{
			name: "empty record",
			rec:  &Record{},
			want: Decision{Action: ActionReauthorize},
		},
		{
			name: "valid token",
			rec:  &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now.Add(time.Minute)},
			want: Decision{Action: ActionUseCached, AccessToken: "a1"},
		},
		{
			name: "expires exactly now",
			rec:  &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now},
			want: Decision{Action: ActionRefresh, RefreshToken: "r1"},
		},
		{
			name: "expired with refresh token",
			rec:  &Record{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now.Add(-time.Second)},
			want: Decision{Action: ActionRefresh, RefreshToken: "r1"},
		},
		{
			name: "expired without refresh token",
			rec:  &Record{AccessToken: "a1", ExpiresAt: now.Add(-time.Second)},
			want: Decision{Action: ActionReauthorize},
		},
		{
			name: "invalidated expiry",
			rec:  &Record{AccessToken: "a1", RefreshToken: "r1"},
			want: Decision{Action: ActionRefresh, RefreshToken: "r1"},
		},
		{
			name: "refresh token only",
			rec:  &Record{RefreshToken: "r1", ExpiresAt: now.Add(time.Hour)},
			want: Decision{Action: ActionRefresh, RefreshToken: "r1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.rec, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Evaluate(tt.rec, now), "same inputs, same decision")
		})
	}
}

func TestExpiresAt(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, issued.Add(3540*time.Second), ExpiresAt(issued, time.Hour))
	assert.Equal(t, issued.Add(DefaultLifetime-SafetyMargin), ExpiresAt(issued, 0))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "use_cached", ActionUseCached.String())
	assert.Equal(t, "refresh", ActionRefresh.String())
	assert.Equal(t, "reauthorize_required", ActionReauthorize.String())
}
