// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"testing"

	"github.com/goodhare/goodhare/internal/models"
	"golang.org/x/oauth2"
)

// MockCatalog is a test double for services.Catalog
type MockCatalog struct {
	Playlists   []models.Playlist
	Tracks      map[string][]models.Track
	TrackErrors map[string]error
	ListErr     error
	User        *models.User
	UserErr     error

	mu    sync.Mutex
	calls []string
}

// NewMockCatalog returns a catalog owned by user "user123" with no playlists.
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		Tracks:      map[string][]models.Track{},
		TrackErrors: map[string]error{},
		User:        &models.User{ID: "user123", DisplayName: "Test User"},
	}
}

func (m *MockCatalog) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns the recorded calls in order, e.g. "ListTracks:p1".
func (m *MockCatalog) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockCatalog) ListPlaylists(ctx context.Context, token *oauth2.Token) ([]models.Playlist, error) {
	m.record("ListPlaylists")
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Playlists, nil
}

func (m *MockCatalog) ListTracks(ctx context.Context, token *oauth2.Token, playlistID string) ([]models.Track, error) {
	m.record("ListTracks:" + playlistID)
	if err := m.TrackErrors[playlistID]; err != nil {
		return nil, err
	}
	return m.Tracks[playlistID], nil
}

func (m *MockCatalog) CurrentUser(ctx context.Context, token *oauth2.Token) (*models.User, error) {
	m.record("CurrentUser")
	if m.UserErr != nil {
		return nil, m.UserErr
	}
	return m.User, nil
}

// MockAuth is a test double for services.Authenticator
type MockAuth struct {
	Token       *oauth2.Token
	ExchangeErr error
	RefreshErr  error

	mu        sync.Mutex
	refreshed int
	codes     []string
}

// NewMockAuth returns an authenticator that hands out a non-expiring token for any code.
func NewMockAuth() *MockAuth {
	return &MockAuth{Token: &oauth2.Token{AccessToken: "mock_access", RefreshToken: "mock_refresh", TokenType: "Bearer"}}
}

func (m *MockAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state)
}

func (m *MockAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Token, nil
}

func (m *MockAuth) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	m.mu.Lock()
	m.refreshed++
	m.mu.Unlock()
	if m.RefreshErr != nil {
		return nil, m.RefreshErr
	}
	renewed := *m.Token
	renewed.AccessToken = fmt.Sprintf("refreshed_%d", m.Refreshes())
	return &renewed, nil
}

// Refreshes returns how many times Refresh was called.
func (m *MockAuth) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshed
}

// Codes returns the authorization codes passed to Exchange.
func (m *MockAuth) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.codes...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
