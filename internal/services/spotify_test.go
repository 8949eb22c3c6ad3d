package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/shared"
	th "github.com/goodhare/goodhare/internal/testing"
	"golang.org/x/oauth2"
)

var testToken = &oauth2.Token{AccessToken: "test_access_token", TokenType: "Bearer"}

// fakeSpotify serves paged JSON for a fixed set of paths.
type fakeSpotify struct {
	t        *testing.T
	srv      *httptest.Server
	pageSize int

	mu       sync.Mutex
	pages    map[string][]any // path -> all items
	status   map[string]int   // path -> forced status
	limited  map[string]int   // path -> remaining 429 responses
	requests map[string]int
}

func newFakeSpotify(t *testing.T, pageSize int) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{
		t:        t,
		pageSize: pageSize,
		pages:    map[string][]any{},
		status:   map[string]int{},
		limited:  map[string]int{},
		requests: map[string]int{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSpotify) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.requests[path]++

	if r.Header.Get("Authorization") != "Bearer "+testToken.AccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
		return
	}

	if n := f.limited[path]; n > 0 {
		f.limited[path] = n - 1
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	if code, ok := f.status[path]; ok {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":{"status":%d,"message":"forced"}}`, code)
		return
	}

	if path == "/me" {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"user123","display_name":"Ada","email":"ada@example.com"}`)
		return
	}

	items, ok := f.pages[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	size := f.pageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l < size {
		size = l
	}
	end := min(offset+size, len(items))

	var next *string
	if end < len(items) {
		u := fmt.Sprintf("%s%s?offset=%d&limit=%d", f.srv.URL, path, end, size)
		next = &u
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"items": items[offset:end],
		"total": len(items),
		"next":  next,
	})
}

func (f *fakeSpotify) set(path string, items []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = items
}

func (f *fakeSpotify) fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = status
}

func (f *fakeSpotify) limit(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limited[path] = n
}

func (f *fakeSpotify) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeSpotify) catalog(t *testing.T, slept *[]time.Duration) *SpotifyCatalog {
	t.Helper()
	c := NewSpotifyCatalog(
		WithBaseURL(f.srv.URL),
		WithHTTPClient(f.srv.Client()),
		WithLogger(shared.NewLogger(&bytes.Buffer{})),
	)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if slept != nil {
			*slept = append(*slept, d)
		}
		return ctx.Err()
	}
	return c
}

func trackJSON(id, name string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        name,
		"type":        "track",
		"duration_ms": 200000,
		"artists":     []map[string]any{{"name": "Artist A"}, {"name": "Artist B"}},
		"album":       map[string]any{"name": "Album", "release_date": "2019-04-12"},
	}
}

func playlistItems(n int) []any {
	items := make([]any, n)
	for i := range n {
		items[i] = map[string]any{"track": trackJSON(fmt.Sprintf("t%d", i), fmt.Sprintf("Song %d", i))}
	}
	return items
}

func TestListTracks(t *testing.T) {
	t.Run("pagination returns every track", func(t *testing.T) {
		for _, tc := range []struct{ n, pageSize int }{{0, 3}, {1, 3}, {3, 3}, {7, 3}, {120, 50}} {
			t.Run(fmt.Sprintf("%d tracks by %d", tc.n, tc.pageSize), func(t *testing.T) {
				fake := newFakeSpotify(t, tc.pageSize)
				fake.set("/playlists/p1/tracks", playlistItems(tc.n))

				tracks, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
				if err != nil {
					t.Fatalf("ListTracks() error = %v", err)
				}
				if len(tracks) != tc.n {
					t.Fatalf("expected %d tracks, got %d", tc.n, len(tracks))
				}
				for i, tr := range tracks {
					if tr.ID != fmt.Sprintf("t%d", i) {
						t.Errorf("track %d out of order: %s", i, tr.ID)
					}
				}
			})
		}
	})

	t.Run("maps track fields", func(t *testing.T) {
		fake := newFakeSpotify(t, 50)
		noDate := trackJSON("t2", "Undated")
		noDate["album"] = map[string]any{"name": "Demo"}
		fake.set("/playlists/p1/tracks", []any{
			map[string]any{"item": trackJSON("t1", "Dated")},
			map[string]any{"track": noDate},
		})

		tracks, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
		if err != nil {
			t.Fatalf("ListTracks() error = %v", err)
		}

		want := models.Track{ID: "t1", Name: "Dated", Artists: []string{"Artist A", "Artist B"}, Album: "Album", Year: "2019", DurationMS: 200000}
		if got := tracks[0]; got.ID != want.ID || got.Year != want.Year || got.Album != want.Album || len(got.Artists) != 2 || got.DurationMS != want.DurationMS {
			t.Errorf("track = %+v, want %+v", got, want)
		}
		if tracks[1].Year != "" {
			t.Errorf("expected empty year, got %q", tracks[1].Year)
		}
	})

	t.Run("skips unavailable items", func(t *testing.T) {
		fake := newFakeSpotify(t, 2)
		episode := trackJSON("e1", "Episode")
		episode["type"] = "episode"
		noID := trackJSON("", "No ID")
		blocked := trackJSON("b1", "Blocked")
		blocked["is_playable"] = false
		playable := trackJSON("ok2", "Playable")
		playable["is_playable"] = true

		fake.set("/playlists/p1/tracks", []any{
			map[string]any{"track": trackJSON("ok1", "Keep")},
			map[string]any{"track": nil},
			map[string]any{"is_local": true, "track": trackJSON("l1", "Local")},
			map[string]any{"track": episode},
			map[string]any{"track": noID},
			map[string]any{"track": blocked},
			map[string]any{"track": playable},
		})

		tracks, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
		if err != nil {
			t.Fatalf("ListTracks() error = %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "ok1" || tracks[1].ID != "ok2" {
			t.Errorf("expected [ok1 ok2], got %+v", tracks)
		}
	})

	t.Run("liked songs read saved tracks", func(t *testing.T) {
		fake := newFakeSpotify(t, 2)
		fake.set("/me/tracks", []any{
			map[string]any{"added_at": "2024-01-01T00:00:00Z", "track": trackJSON("s1", "Saved 1")},
			map[string]any{"track": trackJSON("s2", "Saved 2")},
			map[string]any{"track": trackJSON("s3", "Saved 3")},
		})

		tracks, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, models.LikedSongsID)
		if err != nil {
			t.Fatalf("ListTracks() error = %v", err)
		}
		if len(tracks) != 3 {
			t.Errorf("expected 3 saved tracks, got %d", len(tracks))
		}
	})

	t.Run("duplicates within a playlist are kept", func(t *testing.T) {
		fake := newFakeSpotify(t, 50)
		fake.set("/playlists/p1/tracks", []any{
			map[string]any{"track": trackJSON("t1", "Same")},
			map[string]any{"track": trackJSON("t1", "Same")},
		})

		tracks, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
		if err != nil {
			t.Fatalf("ListTracks() error = %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(tracks))
		}
	})

	t.Run("429 then success completes without gaps", func(t *testing.T) {
		fake := newFakeSpotify(t, 3)
		fake.set("/playlists/p1/tracks", playlistItems(7))
		fake.limit("/playlists/p1/tracks", 1)

		var slept []time.Duration
		tracks, err := fake.catalog(t, &slept).ListTracks(context.Background(), testToken, "p1")
		if err != nil {
			t.Fatalf("ListTracks() error = %v", err)
		}
		if len(tracks) != 7 {
			t.Fatalf("expected 7 tracks, got %d", len(tracks))
		}
		seen := map[string]bool{}
		for _, tr := range tracks {
			if seen[tr.ID] {
				t.Errorf("duplicate track %s", tr.ID)
			}
			seen[tr.ID] = true
		}
		if len(slept) != 1 || slept[0] != 2*time.Second {
			t.Errorf("expected one 2s wait, got %v", slept)
		}
	})

	t.Run("two 429s surface RateLimited", func(t *testing.T) {
		fake := newFakeSpotify(t, 3)
		fake.set("/playlists/p1/tracks", playlistItems(7))
		fake.limit("/playlists/p1/tracks", 2)

		_, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) || rl.RetryAfter != 2*time.Second {
			t.Errorf("expected RateLimitError with 2s, got %v", err)
		}
		if got := fake.count("/playlists/p1/tracks"); got != 2 {
			t.Errorf("expected 2 requests, got %d", got)
		}
	})

	t.Run("status codes map to errors", func(t *testing.T) {
		tt := []struct {
			status int
			want   error
		}{
			{status: http.StatusForbidden, want: shared.ErrPlaylistForbidden},
			{status: http.StatusNotFound, want: shared.ErrPlaylistNotFound},
			{status: http.StatusInternalServerError, want: shared.ErrAPIRequest},
			{status: http.StatusServiceUnavailable, want: shared.ErrServiceUnavailable},
		}

		for _, tc := range tt {
			t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
				fake := newFakeSpotify(t, 50)
				fake.fail("/playlists/p1/tracks", tc.status)

				_, err := fake.catalog(t, nil).ListTracks(context.Background(), testToken, "p1")
				if !errors.Is(err, tc.want) {
					t.Errorf("expected %v, got %v", tc.want, err)
				}
			})
		}
	})

	t.Run("expired token", func(t *testing.T) {
		fake := newFakeSpotify(t, 50)
		fake.set("/playlists/p1/tracks", playlistItems(1))

		_, err := fake.catalog(t, nil).ListTracks(context.Background(), &oauth2.Token{AccessToken: "stale"}, "p1")
		if !errors.Is(err, shared.ErrTokenExpired) || !IsAuthError(err) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		fake := newFakeSpotify(t, 50)
		if _, err := fake.catalog(t, nil).ListTracks(context.Background(), nil, "p1"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(nil, errors.New("connection reset"))}
		c := NewSpotifyCatalog(WithHTTPClient(client), WithLogger(shared.NewLogger(&bytes.Buffer{})))

		_, err := c.ListTracks(context.Background(), testToken, "p1")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("foreign next url is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"items":[],"total":1,"next":"https://evil.example.com/steal"}`)
		}))
		defer srv.Close()

		c := NewSpotifyCatalog(WithBaseURL(srv.URL), WithLogger(shared.NewLogger(&bytes.Buffer{})))
		if _, err := c.ListTracks(context.Background(), testToken, "p1"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestListPlaylists(t *testing.T) {
	fake := newFakeSpotify(t, 2)
	fake.set("/me/tracks", playlistItems(12))
	fake.set("/me/playlists", []any{
		map[string]any{"id": "p1", "name": "Road Trip", "owner": map[string]any{"id": "u1", "display_name": "Ada"}, "items": map[string]any{"total": 5}},
		map[string]any{"id": "p2", "name": "Old Shape", "owner": map[string]any{"id": "u2"}, "tracks": map[string]any{"total": 9}},
		map[string]any{"id": "p3", "name": ""},
		nil,
	})

	playlists, err := fake.catalog(t, nil).ListPlaylists(context.Background(), testToken)
	if err != nil {
		t.Fatalf("ListPlaylists() error = %v", err)
	}

	if len(playlists) != 4 {
		t.Fatalf("expected 4 playlists, got %d: %+v", len(playlists), playlists)
	}

	liked := playlists[0]
	if !liked.IsLikedSongs() || liked.TrackCount != 12 || liked.Owner != "" {
		t.Errorf("unexpected liked songs entry: %+v", liked)
	}

	tt := []models.Playlist{
		{ID: "p1", Name: "Road Trip", TrackCount: 5, Owner: "Ada"},
		{ID: "p2", Name: "Old Shape", TrackCount: 9, Owner: "u2"},
		{ID: "p3", Name: "Unnamed Playlist", TrackCount: 0, Owner: "Unknown"},
	}
	for i, want := range tt {
		if got := playlists[i+1]; got != want {
			t.Errorf("playlist %d = %+v, want %+v", i+1, got, want)
		}
	}

	t.Run("error", func(t *testing.T) {
		fake.fail("/me/playlists", http.StatusUnauthorized)
		if _, err := fake.catalog(t, nil).ListPlaylists(context.Background(), testToken); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})
}

func TestCurrentUser(t *testing.T) {
	fake := newFakeSpotify(t, 50)
	c := fake.catalog(t, nil)

	user, err := c.CurrentUser(context.Background(), testToken)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.ID != "user123" || user.DisplayName != "Ada" || user.Email != "ada@example.com" {
		t.Errorf("unexpected user: %+v", user)
	}

	t.Run("expired token", func(t *testing.T) {
		_, err := c.CurrentUser(context.Background(), &oauth2.Token{AccessToken: "stale"})
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})
}

func TestRetryAfter(t *testing.T) {
	tt := []struct {
		header string
		want   time.Duration
	}{
		{header: "", want: time.Second},
		{header: "3", want: 3 * time.Second},
		{header: "soon", want: time.Second},
		{header: "600", want: 30 * time.Second},
	}

	for _, tc := range tt {
		t.Run(tc.header, func(t *testing.T) {
			if got := retryAfter(tc.header); got != tc.want {
				t.Errorf("retryAfter(%q) = %v, want %v", tc.header, got, tc.want)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
