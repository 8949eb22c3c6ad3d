package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodhare/goodhare/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// refreshLeeway is how close to expiry a token may get before [NeedsRefresh] reports true.
const refreshLeeway = 60 * time.Second

// Scopes requested during authorization. Read-only access to the library and playlists.
var Scopes = []string{
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserReadPrivate,
}

// Authenticator performs the OAuth2 authorization-code flow.
type Authenticator interface {
	// AuthURL returns the URL the user's browser is sent to. state is echoed back on the callback.
	AuthURL(state string) string

	// Exchange trades a one-time authorization code for an access/refresh token pair.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh renews token using its refresh token.
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// AuthError reports that the vendor rejected an authorization code or refresh token.
// The caller must restart the login flow.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", shared.ErrAuthFailed, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", shared.ErrAuthFailed, e.Op, e.Err)
}

// Unwrap exposes both [shared.ErrAuthFailed] and the underlying cause.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{shared.ErrAuthFailed}
	}
	return []error{shared.ErrAuthFailed, e.Err}
}

// IsAuthError reports whether err requires the user to authenticate again.
func IsAuthError(err error) bool {
	return errors.Is(err, shared.ErrAuthFailed) ||
		errors.Is(err, shared.ErrTokenExpired) ||
		errors.Is(err, shared.ErrNotAuthenticated)
}

// SpotifyAuth implements [Authenticator] against the Spotify accounts service.
type SpotifyAuth struct {
	config *oauth2.Config
}

// AuthOption configures a [SpotifyAuth].
type AuthOption func(*SpotifyAuth)

// WithEndpoint overrides the authorization and token URLs.
func WithEndpoint(authURL, tokenURL string) AuthOption {
	return func(a *SpotifyAuth) {
		a.config.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
}

// NewSpotifyAuth creates an [Authenticator] from client_id, client_secret and redirect_uri credentials.
func NewSpotifyAuth(credentials map[string]string, opts ...AuthOption) (*SpotifyAuth, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", shared.ErrMissingCredentials)
	}

	a := &SpotifyAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the underlying [oauth2.Config].
func (a *SpotifyAuth) Config() *oauth2.Config {
	return a.config
}

// AuthURL returns the authorization URL for state.
func (a *SpotifyAuth) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades code for a token pair.
func (a *SpotifyAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, &AuthError{Op: "exchange", Err: errors.New("empty authorization code")}
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Op: "exchange", Err: err}
	}
	return token, nil
}

// Refresh always contacts the token endpoint, regardless of the current expiry.
// The old refresh token is kept when the vendor does not issue a new one.
func (a *SpotifyAuth) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, &AuthError{Op: "refresh", Err: shared.ErrNoRefreshToken}
	}

	renewed, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		return nil, &AuthError{Op: "refresh", Err: err}
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = token.RefreshToken
	}
	return renewed, nil
}

// NeedsRefresh reports whether token expires within the next minute.
// Tokens without an expiry never need a refresh.
func NeedsRefresh(token *oauth2.Token) bool {
	if token == nil || token.Expiry.IsZero() {
		return false
	}
	return time.Until(token.Expiry) < refreshLeeway
}

// EnsureFresh refreshes token when [NeedsRefresh] reports true and returns the token to use.
func EnsureFresh(ctx context.Context, auth Authenticator, token *oauth2.Token) (*oauth2.Token, bool, error) {
	if token == nil || token.AccessToken == "" {
		return nil, false, shared.ErrNotAuthenticated
	}
	if !NeedsRefresh(token) {
		return token, false, nil
	}
	renewed, err := auth.Refresh(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return renewed, true, nil
}

// TokenSource returns an [oauth2.TokenSource] that refreshes token automatically and calls onRefresh whenever
// the access token changes. onRefresh may be nil.
func (a *SpotifyAuth) TokenSource(ctx context.Context, token *oauth2.Token, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	return &refreshableTokenSource{
		source:   a.config.TokenSource(ctx, token),
		callback: onRefresh,
		last:     token.AccessToken,
	}
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and reports token changes.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	mu       sync.Mutex
	last     string
}

// Token implements [oauth2.TokenSource].
func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed && s.callback != nil {
		s.callback(token)
	}
	return token, nil
}
