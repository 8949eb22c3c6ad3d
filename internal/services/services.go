// package services defines the Spotify authentication and catalog clients
package services

import (
	"context"

	"github.com/goodhare/goodhare/internal/models"
	"golang.org/x/oauth2"
)

// Catalog reads a user's library. Every call takes the user's token, so one Catalog serves all sessions.
type Catalog interface {
	// ListPlaylists returns the synthetic Liked Songs playlist first, then the user's playlists.
	ListPlaylists(ctx context.Context, token *oauth2.Token) ([]models.Playlist, error)

	// ListTracks returns every available track in playlistID, following pagination to the end.
	ListTracks(ctx context.Context, token *oauth2.Token, playlistID string) ([]models.Track, error)

	// CurrentUser returns the profile the token belongs to.
	CurrentUser(ctx context.Context, token *oauth2.Token) (*models.User, error)
}

var (
	_ Catalog       = (*SpotifyCatalog)(nil)
	_ Authenticator = (*SpotifyAuth)(nil)
)
