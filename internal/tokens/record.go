package tokens

import "time"

// SafetyMargin is subtracted from every expires_in so a token is never used
// in the last minute of its life.
const SafetyMargin = 60 * time.Second

// DefaultLifetime is assumed when a token response omits expires_in.
const DefaultLifetime = time.Hour

// Record is the persisted token state for one provider.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Present reports whether anything usable is stored.
func (r *Record) Present() bool {
	return r != nil && (r.AccessToken != "" || r.RefreshToken != "")
}

// ExpiresAt derives the stored expiry from the issue time and the
// provider's expires_in.
func ExpiresAt(issued time.Time, expiresIn time.Duration) time.Time {
	if expiresIn <= 0 {
		expiresIn = DefaultLifetime
	}
	return issued.Add(expiresIn - SafetyMargin)
}

// Action is what the caller must do to obtain an access token.
type Action int

const (
	ActionReauthorize Action = iota
	ActionUseCached
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionUseCached:
		return "use_cached"
	case ActionRefresh:
		return "refresh"
	default:
		return "reauthorize_required"
	}
}

// Decision is the result of Evaluate. Exactly one of AccessToken and
// RefreshToken is set, matching Action.
type Decision struct {
	Action       Action
	AccessToken  string
	RefreshToken string
}

// Evaluate decides how to obtain an access token from rec at instant now.
// It performs no I/O and returns the same Decision for the same inputs.
func Evaluate(rec *Record, now time.Time) Decision {
	if !rec.Present() {
		return Decision{Action: ActionReauthorize}
	}
	if rec.AccessToken != "" && rec.ExpiresAt.After(now) {
		return Decision{Action: ActionUseCached, AccessToken: rec.AccessToken}
	}
	if rec.RefreshToken != "" {
		return Decision{Action: ActionRefresh, RefreshToken: rec.RefreshToken}
	}
	return Decision{Action: ActionReauthorize}
}
