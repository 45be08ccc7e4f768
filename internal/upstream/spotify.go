package upstream

import (
	"context"
	"net/http"
)

// DefaultCurrentlyPlayingURL is the Spotify Web API player endpoint
const DefaultCurrentlyPlayingURL = "https://api.spotify.com/v1/me/player/currently-playing"

type spotifyImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type spotifyCurrentlyPlaying struct {
	IsPlaying            bool   `json:"is_playing"`
	ProgressMs           int    `json:"progress_ms"`
	CurrentlyPlayingType string `json:"currently_playing_type"`
	Item                 *struct {
		Name       string `json:"name"`
		DurationMs int    `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name   string         `json:"name"`
			Images []spotifyImage `json:"images"`
		} `json:"album"`
		Show *struct {
			Name   string         `json:"name"`
			Images []spotifyImage `json:"images"`
		} `json:"show"`
	} `json:"item"`
}

// NowPlaying is the compact track summary sent to the device
type NowPlaying struct {
	Playing    bool   `json:"playing"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	ProgressMs int    `json:"progress_ms"`
	DurationMs int    `json:"duration_ms"`
}

// NowPlayingFetcher reads the user's currently playing track
type NowPlayingFetcher struct {
	Endpoint string
	client   client
}

func NewNowPlayingFetcher(endpoint string, httpClient *http.Client) *NowPlayingFetcher {
	if endpoint == "" {
		endpoint = DefaultCurrentlyPlayingURL
	}
	return &NowPlayingFetcher{Endpoint: endpoint, client: newClient(httpClient)}
}

// smallestImage picks the smallest artwork at least minSize wide, falling
// back to the last (smallest) listed image.
func smallestImage(images []spotifyImage, minSize int) string {
	best := ""
	bestWidth := 0
	for _, img := range images {
		if img.Width >= minSize && (best == "" || img.Width < bestWidth) {
			best, bestWidth = img.URL, img.Width
		}
	}
	if best == "" && len(images) > 0 {
		best = images[len(images)-1].URL
	}
	return best
}

// Fetch returns nil when nothing is playing.
func (f *NowPlayingFetcher) Fetch(ctx context.Context, accessToken string) (any, error) {
	var cp spotifyCurrentlyPlaying
	found, err := f.client.getJSON(ctx, f.Endpoint, accessToken, &cp)
	if err != nil || !found || cp.Item == nil {
		return nil, err
	}

	np := &NowPlaying{
		Playing:    cp.IsPlaying,
		Title:      cp.Item.Name,
		ProgressMs: cp.ProgressMs,
		DurationMs: cp.Item.DurationMs,
	}

	if cp.Item.Show != nil {
		// Podcast episodes carry artwork and publisher on the show.
		np.Artist = cp.Item.Show.Name
		np.ImageURL = smallestImage(cp.Item.Show.Images, 200)
		return np, nil
	}

	for i, a := range cp.Item.Artists {
		if i > 0 {
			np.Artist += ", "
		}
		np.Artist += a.Name
	}
	np.Album = cp.Item.Album.Name
	np.ImageURL = smallestImage(cp.Item.Album.Images, 200)
	return np, nil
}
