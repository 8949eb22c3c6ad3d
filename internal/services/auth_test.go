package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goodhare/goodhare/internal/shared"
	"golang.org/x/oauth2"
)

var testCredentials = map[string]string{
	"client_id":     "test_client_id",
	"client_secret": "test_client_secret",
	"redirect_uri":  "http://127.0.0.1:5000/callback",
}

// newTokenServer fakes the accounts service token endpoint.
// Codes and refresh tokens equal to "good" succeed, everything else is rejected with invalid_grant.
func newTokenServer(t *testing.T, issueRefresh bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}

		var ok bool
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			ok = r.PostForm.Get("code") == "good"
		case "refresh_token":
			ok = r.PostForm.Get("refresh_token") == "good"
		}

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}

		resp := map[string]any{
			"access_token": "fresh_access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if issueRefresh {
			resp["refresh_token"] = "rotated"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSpotifyAuth(t *testing.T) {
	t.Run("NewSpotifyAuth", func(t *testing.T) {
		if _, err := NewSpotifyAuth(testCredentials); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		for _, missing := range []string{"client_id", "client_secret", "redirect_uri"} {
			t.Run("missing "+missing, func(t *testing.T) {
				creds := map[string]string{}
				for k, v := range testCredentials {
					if k != missing {
						creds[k] = v
					}
				}
				if _, err := NewSpotifyAuth(creds); !errors.Is(err, shared.ErrMissingCredentials) {
					t.Errorf("expected ErrMissingCredentials, got %v", err)
				}
			})
		}
	})

	t.Run("AuthURL", func(t *testing.T) {
		auth, err := NewSpotifyAuth(testCredentials)
		if err != nil {
			t.Fatalf("failed to create authenticator: %v", err)
		}

		u, err := url.Parse(auth.AuthURL("test_state"))
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}

		if u.Host != "accounts.spotify.com" {
			t.Errorf("expected accounts.spotify.com, got %s", u.Host)
		}
		q := u.Query()
		if q.Get("state") != "test_state" {
			t.Errorf("expected state in url, got %q", q.Get("state"))
		}
		if q.Get("client_id") != "test_client_id" {
			t.Errorf("expected client id in url, got %q", q.Get("client_id"))
		}
		for _, scope := range []string{"user-library-read", "playlist-read-private", "playlist-read-collaborative", "user-read-private"} {
			if !strings.Contains(q.Get("scope"), scope) {
				t.Errorf("expected scope %s in %q", scope, q.Get("scope"))
			}
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		srv := newTokenServer(t, true)
		auth, _ := NewSpotifyAuth(testCredentials, WithEndpoint(srv.URL+"/authorize", srv.URL+"/token"))

		t.Run("valid code", func(t *testing.T) {
			token, err := auth.Exchange(context.Background(), "good")
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if token.AccessToken != "fresh_access" || token.RefreshToken != "rotated" {
				t.Errorf("unexpected token: %+v", token)
			}
			if token.Expiry.IsZero() {
				t.Error("expected expiry to be set")
			}
		})

		t.Run("rejected code", func(t *testing.T) {
			_, err := auth.Exchange(context.Background(), "bad")

			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected *AuthError, got %v", err)
			}
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if !IsAuthError(err) {
				t.Error("expected IsAuthError")
			}
		})

		t.Run("empty code", func(t *testing.T) {
			if _, err := auth.Exchange(context.Background(), ""); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("keeps refresh token when none issued", func(t *testing.T) {
			srv := newTokenServer(t, false)
			auth, _ := NewSpotifyAuth(testCredentials, WithEndpoint(srv.URL+"/authorize", srv.URL+"/token"))

			expired := &oauth2.Token{AccessToken: "old", RefreshToken: "good", Expiry: time.Now().Add(-time.Hour)}
			token, err := auth.Refresh(context.Background(), expired)
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if token.AccessToken != "fresh_access" {
				t.Errorf("expected new access token, got %s", token.AccessToken)
			}
			if token.RefreshToken != "good" {
				t.Errorf("expected refresh token to be kept, got %s", token.RefreshToken)
			}
		})

		t.Run("uses rotated refresh token", func(t *testing.T) {
			srv := newTokenServer(t, true)
			auth, _ := NewSpotifyAuth(testCredentials, WithEndpoint(srv.URL+"/authorize", srv.URL+"/token"))

			token, err := auth.Refresh(context.Background(), &oauth2.Token{AccessToken: "old", RefreshToken: "good"})
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if token.RefreshToken != "rotated" {
				t.Errorf("expected rotated refresh token, got %s", token.RefreshToken)
			}
		})

		t.Run("rejected refresh token", func(t *testing.T) {
			srv := newTokenServer(t, true)
			auth, _ := NewSpotifyAuth(testCredentials, WithEndpoint(srv.URL+"/authorize", srv.URL+"/token"))

			_, err := auth.Refresh(context.Background(), &oauth2.Token{AccessToken: "old", RefreshToken: "revoked"})
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("no refresh token", func(t *testing.T) {
			auth, _ := NewSpotifyAuth(testCredentials)

			_, err := auth.Refresh(context.Background(), &oauth2.Token{AccessToken: "old"})
			if !errors.Is(err, shared.ErrNoRefreshToken) || !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrNoRefreshToken and ErrAuthFailed, got %v", err)
			}
		})
	})

	t.Run("NeedsRefresh", func(t *testing.T) {
		tt := []struct {
			name  string
			token *oauth2.Token
			want  bool
		}{
			{name: "nil", token: nil, want: false},
			{name: "no expiry", token: &oauth2.Token{AccessToken: "a"}, want: false},
			{name: "expired", token: &oauth2.Token{Expiry: time.Now().Add(-time.Minute)}, want: true},
			{name: "within leeway", token: &oauth2.Token{Expiry: time.Now().Add(30 * time.Second)}, want: true},
			{name: "fresh", token: &oauth2.Token{Expiry: time.Now().Add(time.Hour)}, want: false},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				if got := NeedsRefresh(tc.token); got != tc.want {
					t.Errorf("NeedsRefresh() = %v, want %v", got, tc.want)
				}
			})
		}
	})

	t.Run("EnsureFresh", func(t *testing.T) {
		srv := newTokenServer(t, false)
		auth, _ := NewSpotifyAuth(testCredentials, WithEndpoint(srv.URL+"/authorize", srv.URL+"/token"))

		t.Run("fresh token is returned as is", func(t *testing.T) {
			token := &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}
			got, refreshed, err := EnsureFresh(context.Background(), auth, token)
			if err != nil || refreshed || got != token {
				t.Errorf("EnsureFresh() = %v, %v, %v", got, refreshed, err)
			}
		})

		t.Run("expiring token is refreshed", func(t *testing.T) {
			token := &oauth2.Token{AccessToken: "a", RefreshToken: "good", Expiry: time.Now().Add(10 * time.Second)}
			got, refreshed, err := EnsureFresh(context.Background(), auth, token)
			if err != nil {
				t.Fatalf("EnsureFresh() error = %v", err)
			}
			if !refreshed || got.AccessToken != "fresh_access" {
				t.Errorf("expected refreshed token, got %+v (refreshed=%v)", got, refreshed)
			}
		})

		t.Run("missing token", func(t *testing.T) {
			if _, _, err := EnsureFresh(context.Background(), auth, nil); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})
}

func TestRefreshableTokenSource(t *testing.T) {
	t.Run("calls callback on first token fetch", func(t *testing.T) {
		var captured *oauth2.Token
		source := &refreshableTokenSource{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
			callback: func(token *oauth2.Token) { captured = token },
		}

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if captured == nil || captured.AccessToken != "test_token" {
			t.Errorf("expected callback with test_token, got %v", captured)
		}
		if token.AccessToken != "test_token" {
			t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
		}
	})

	t.Run("calls callback only when token changes", func(t *testing.T) {
		callCount := 0
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		source := &refreshableTokenSource{
			source:   mock,
			callback: func(*oauth2.Token) { callCount++ },
		}

		source.Token()
		source.Token()
		if callCount != 1 {
			t.Errorf("expected callback called once, got %d", callCount)
		}

		mock.token = &oauth2.Token{AccessToken: "token2"}
		source.Token()
		if callCount != 2 {
			t.Errorf("expected callback called twice, got %d", callCount)
		}
	})

	t.Run("handles nil callback", func(t *testing.T) {
		source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "t"}}}
		if _, err := source.Token(); err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		source := &refreshableTokenSource{
			source: &mockTokenSource{err: errors.New("token source error")},
			callback: func(*oauth2.Token) {
				t.Error("callback should not be called on error")
			},
		}

		token, err := source.Token()
		if err == nil || !strings.Contains(err.Error(), "token source error") {
			t.Errorf("expected source error, got %v", err)
		}
		if token != nil {
			t.Error("expected nil token on error")
		}
	})

	t.Run("TokenSource does not report the initial token", func(t *testing.T) {
		auth, _ := NewSpotifyAuth(testCredentials)
		calls := 0
		ts := auth.TokenSource(context.Background(), &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}, func(*oauth2.Token) { calls++ })

		token, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token.AccessToken != "valid" || calls != 0 {
			t.Errorf("expected unchanged token without callback, got %s (calls=%d)", token.AccessToken, calls)
		}
	})
}

// mockTokenSource implements [oauth2.TokenSource] for testing
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}
