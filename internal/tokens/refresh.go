package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/statusboard/internal/log"
)

// Refresher runs the refresh_token grant and keeps the store in step with
// the result.
type Refresher struct {
	store    *Store
	endpoint *tokenEndpoint
	now      func() time.Time
}

// Refresh exchanges refreshToken for a new access token. On success the
// new record is persisted, retaining refreshToken if the provider did not
// rotate it. When the provider rejects the grant the stored record is
// cleared; when it could not be reached the record is left alone so a later
// attempt can reuse the refresh token.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*Record, error) {
	provider := r.endpoint.provider.Name

	token, err := r.endpoint.refresh(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, ErrProviderRejected) {
			log.LogWarnWithFields("tokens", "Refresh failed, keeping stored token", map[string]any{
				"provider": provider,
				"error":    err.Error(),
			})
			return nil, err
		}
		log.LogWarnWithFields("tokens", "Refresh rejected, clearing stored token", map[string]any{
			"provider": provider,
			"error":    err.Error(),
		})
		if clearErr := r.store.Clear(ctx); clearErr != nil {
			log.LogErrorWithFields("tokens", "Failed to clear rejected token", map[string]any{
				"provider": provider,
				"error":    clearErr.Error(),
			})
		}
		return nil, err
	}

	rec := recordFromToken(token, r.now(), refreshToken)
	if err := r.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	log.LogInfoWithFields("tokens", "Refreshed access token", map[string]any{
		"provider":  provider,
		"token":     log.Fingerprint(rec.AccessToken),
		"expiresAt": rec.ExpiresAt,
		"rotated":   token.RefreshToken != "",
	})
	return rec, nil
}
