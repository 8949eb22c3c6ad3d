// Package services talks to Spotify: the OAuth2 authorization-code flow ([SpotifyAuth]) and read-only
// library access ([SpotifyCatalog]).
//
// # Authentication
//
// [SpotifyAuth] builds an [oauth2.Config] from the endpoint and scope constants of
// github.com/zmb3/spotify/v2/auth. Exchange and Refresh failures are reported as [*AuthError], which wraps
// [shared.ErrAuthFailed]; callers send the user back through the login flow. [NeedsRefresh] uses a 60 second
// leeway.
//
// # Catalog
//
// [SpotifyCatalog] is stateless: each call receives the session's token. Pagination follows the vendor's
// "next" links until exhausted. Status codes map to shared errors:
//   - 401 : [shared.ErrTokenExpired]
//   - 403 : [shared.ErrPlaylistForbidden]
//   - 404 : [shared.ErrPlaylistNotFound]
//   - 429 : [*RateLimitError] (wraps [shared.ErrRateLimited])
//   - other : [shared.ErrAPIRequest]
//
// A 429 is retried once after the Retry-After delay (1s when absent, at most 30s). Requests are paced
// client-side with golang.org/x/time/rate.
//
// The user profile is fetched through the github.com/zmb3/spotify/v2 client.
package services
