// Spotify Web API catalog client.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"
	pageLimit      = 50

	defaultRetryAfter = time.Second
	maxRetryAfter     = 30 * time.Second
)

// RateLimitError is returned when the vendor answers 429 Too Many Requests.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %s", shared.ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return shared.ErrRateLimited
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// spotifyTrack is a track object. Episodes share the shape with Type "episode".
type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
	IsPlayable *bool           `json:"is_playable"`
}

// playlistItem is an entry of /playlists/{id}/tracks. Newer responses carry the object in "item",
// older ones in "track".
type playlistItem struct {
	AddedAt string        `json:"added_at"`
	IsLocal bool          `json:"is_local"`
	Item    *spotifyTrack `json:"item"`
	Track   *spotifyTrack `json:"track"`
}

func (i playlistItem) object() *spotifyTrack {
	if i.Item != nil {
		return i.Item
	}
	return i.Track
}

type savedTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *spotifyTrack `json:"track"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type itemCount struct {
	Total int `json:"total"`
}

type spotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Owner       *spotifyOwner  `json:"owner"`
	Items       *itemCount     `json:"items"`
	Tracks      *itemCount     `json:"tracks"`
	Images      []spotifyImage `json:"images"`
}

func (p spotifyPlaylist) trackCount() int {
	switch {
	case p.Items != nil:
		return p.Items.Total
	case p.Tracks != nil:
		return p.Tracks.Total
	}
	return 0
}

func (p spotifyPlaylist) toModel() models.Playlist {
	name := p.Name
	if name == "" {
		name = "Unnamed Playlist"
	}

	owner := "Unknown"
	if p.Owner != nil {
		if p.Owner.DisplayName != "" {
			owner = p.Owner.DisplayName
		} else if p.Owner.ID != "" {
			owner = p.Owner.ID
		}
	}

	return models.Playlist{
		ID:          p.ID,
		Name:        name,
		Description: p.Description,
		TrackCount:  p.trackCount(),
		Owner:       owner,
	}
}

// page is one page of a paging object.
type page[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// SpotifyCatalog reads playlists and tracks from the Spotify Web API with a caller-supplied token.
// It holds no per-user state and is safe for concurrent use.
type SpotifyCatalog struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// CatalogOption configures a [SpotifyCatalog].
type CatalogOption func(*SpotifyCatalog)

// WithBaseURL points the catalog at a different API root (no trailing slash).
func WithBaseURL(u string) CatalogOption {
	return func(c *SpotifyCatalog) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for API requests.
func WithHTTPClient(client *http.Client) CatalogOption {
	return func(c *SpotifyCatalog) { c.httpClient = client }
}

// WithRateLimit paces outgoing requests to rps per second. Zero or less disables pacing.
func WithRateLimit(rps float64) CatalogOption {
	return func(c *SpotifyCatalog) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithLogger sets the catalog logger.
func WithLogger(logger *log.Logger) CatalogOption {
	return func(c *SpotifyCatalog) { c.logger = logger }
}

// NewSpotifyCatalog creates a catalog client for the public Spotify API.
func NewSpotifyCatalog(opts ...CatalogOption) *SpotifyCatalog {
	c := &SpotifyCatalog{
		baseURL:    spotifyBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     shared.NewLogger(nil),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header in seconds.
func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// statusError maps a non-2xx status code to a shared error.
func statusError(status int, body string) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, body)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistForbidden, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, body)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w: status %d", shared.ErrAPIRequest, shared.ErrServiceUnavailable, status)
	}
	return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, status, body)
}

// doRequest performs one authenticated GET against rawURL and decodes the JSON body into result.
func (c *SpotifyCatalog) doRequest(ctx context.Context, token *oauth2.Token, rawURL string, result any) error {
	if token == nil || token.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
	}
	return nil
}

// get wraps doRequest with the rate-limit policy: one retry after the vendor's Retry-After.
func (c *SpotifyCatalog) get(ctx context.Context, token *oauth2.Token, rawURL string, result any) error {
	err := c.doRequest(ctx, token, rawURL, result)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return err
	}

	c.logger.Warn("rate limited by Spotify", "url", rawURL, "retry_after", rl.RetryAfter)
	if err := c.sleep(ctx, rl.RetryAfter); err != nil {
		return err
	}
	return c.doRequest(ctx, token, rawURL, result)
}

func (c *SpotifyCatalog) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// paginate fetches every page starting at first, calling fn with each page's items in order.
// It returns the total reported by the first page.
func paginate[T any](ctx context.Context, c *SpotifyCatalog, token *oauth2.Token, first string, fn func([]T)) (int, error) {
	total := -1
	next := first
	for next != "" {
		var p page[T]
		if err := c.get(ctx, token, next, &p); err != nil {
			return 0, err
		}
		if total < 0 {
			total = p.Total
		}
		fn(p.Items)

		next = ""
		if p.Next != nil && *p.Next != "" {
			if !strings.HasPrefix(*p.Next, c.baseURL+"/") {
				return 0, fmt.Errorf("%w: unexpected next page url %q", shared.ErrAPIRequest, *p.Next)
			}
			next = *p.Next
		}
	}
	return total, nil
}

// ListPlaylists returns Liked Songs followed by every playlist the user follows or owns.
func (c *SpotifyCatalog) ListPlaylists(ctx context.Context, token *oauth2.Token) ([]models.Playlist, error) {
	var saved page[savedTrack]
	if err := c.get(ctx, token, c.endpoint("/me/tracks", url.Values{"limit": {"1"}}), &saved); err != nil {
		return nil, fmt.Errorf("failed to count saved tracks: %w", err)
	}

	playlists := []models.Playlist{models.LikedSongs(saved.Total)}

	first := c.endpoint("/me/playlists", url.Values{"limit": {strconv.Itoa(pageLimit)}})
	_, err := paginate(ctx, c, token, first, func(items []*spotifyPlaylist) {
		for _, p := range items {
			if p == nil || p.ID == "" {
				continue
			}
			playlists = append(playlists, p.toModel())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	c.logger.Debug("listed playlists", "count", len(playlists))
	return playlists, nil
}

// ListTracks returns every track of playlistID in vendor order. [models.LikedSongsID] reads the saved tracks.
//
// Unavailable items (missing objects, local files, episodes, tracks without an id, region-blocked tracks)
// are dropped.
func (c *SpotifyCatalog) ListTracks(ctx context.Context, token *oauth2.Token, playlistID string) ([]models.Track, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("%w: empty playlist id", shared.ErrInvalidInput)
	}

	query := url.Values{
		"limit":  {strconv.Itoa(pageLimit)},
		"market": {"from_token"},
	}

	var (
		tracks  []models.Track
		skipped int
		err     error
	)
	keep := func(t *spotifyTrack, isLocal bool) {
		if reason := unavailable(t, isLocal); reason != "" {
			skipped++
			c.logger.Debug("skipping unavailable item", "playlist", playlistID, "reason", reason)
			return
		}
		tracks = append(tracks, t.toModel())
	}

	if playlistID == models.LikedSongsID {
		_, err = paginate(ctx, c, token, c.endpoint("/me/tracks", query), func(items []savedTrack) {
			for _, item := range items {
				keep(item.Track, false)
			}
		})
	} else {
		first := c.endpoint("/playlists/"+url.PathEscape(playlistID)+"/tracks", query)
		_, err = paginate(ctx, c, token, first, func(items []playlistItem) {
			for _, item := range items {
				keep(item.object(), item.IsLocal)
			}
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks for %s: %w", playlistID, err)
	}

	if tracks == nil {
		tracks = []models.Track{}
	}
	c.logger.Debug("listed tracks", "playlist", playlistID, "count", len(tracks), "skipped", skipped)
	return tracks, nil
}

// unavailable returns a non-empty reason when t cannot be exported.
func unavailable(t *spotifyTrack, isLocal bool) string {
	switch {
	case t == nil:
		return "no track object"
	case isLocal || t.IsLocal:
		return "local file"
	case t.Type != "" && t.Type != "track":
		return "not a track: " + t.Type
	case t.ID == "":
		return "no id"
	case t.IsPlayable != nil && !*t.IsPlayable:
		return "not playable"
	}
	return ""
}

func (t *spotifyTrack) toModel() models.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}

	return models.Track{
		ID:         t.ID,
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		Year:       models.ReleaseYear(t.Album.ReleaseDate),
		DurationMS: t.DurationMS,
	}
}

// CurrentUser looks up the profile owning token.
func (c *SpotifyCatalog) CurrentUser(ctx context.Context, token *oauth2.Token) (*models.User, error) {
	if token == nil || token.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := spotify.New(
		oauth2.NewClient(httpCtx, oauth2.StaticTokenSource(token)),
		spotify.WithBaseURL(c.baseURL+"/"),
	)

	user, err := client.CurrentUser(ctx)
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) {
			if apiErr.Status == http.StatusTooManyRequests {
				return nil, &RateLimitError{RetryAfter: defaultRetryAfter}
			}
			return nil, statusError(apiErr.Status, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}

	return &models.User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}, nil
}
