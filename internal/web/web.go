// Package web implements the browser front end of goodhare.
//
// # Flow
//
// The pages follow the browser through a short state machine:
//
//	unauthenticated → pending-authorization → authenticated → playlists-listed → export-in-progress → file-ready
//
// # Routes
//
//	GET  /                → login page, or redirect to /playlists when signed in
//	GET  /login           → store a random state in the session, redirect to Spotify
//	GET  /callback        → validate state, exchange the code, remember token and user
//	GET  /playlists       → checkbox form of Liked Songs and every playlist
//	POST /export          → collect the checked playlists (field playlist_ids), write the CSV, show the link
//	GET  /download/{file} → serve a recorded CSV to its owner
//	GET  /logout          → clear the session
//
// # State
//
// The OAuth token, state and user live in a signed and encrypted cookie (gorilla/sessions); nothing about the
// session is written to disk. Export files are written under the export directory and recorded through an
// [ExportStore] so downloads can be checked against the session's user.
//
// # Errors
//
// Authentication failures clear the session and redirect to / with a flash message. Rate limiting renders a
// 503 page, write failures a 500 page and unknown paths a 404 page.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/server"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/goodhare/goodhare/internal/tasks"
	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"index", "playlists", "export", "error"}

// ExportStore records exports and resolves them for download. Implemented by repositories.ExportRepository.
type ExportStore interface {
	tasks.ExportRecorder
	GetForOwner(ctx context.Context, id, ownerID string) (*models.ExportRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ExportRecord, error)
}

// Options configures [New].
type Options struct {
	Auth          services.Authenticator
	Catalog       services.Catalog
	Exports       ExportStore
	SessionSecret string
	ExportDir     string
	SecureCookies bool // set the Secure flag when served over HTTPS
	HistoryLimit  int  // recent exports listed on /playlists
	Logger        *log.Logger
}

// App serves the web shell.
type App struct {
	auth      services.Authenticator
	catalog   services.Catalog
	exports   ExportStore
	exporter  *tasks.Exporter
	store     sessions.Store
	templates map[string]*template.Template
	exportDir string
	history   int
	logger    *log.Logger
}

// New validates opts and parses the embedded templates.
func New(opts Options) (*App, error) {
	switch {
	case opts.Auth == nil || opts.Catalog == nil || opts.Exports == nil:
		return nil, fmt.Errorf("%w: auth, catalog and export store are required", shared.ErrInvalidConfig)
	case len(opts.SessionSecret) < 32:
		return nil, fmt.Errorf("%w: session secret must be at least 32 characters", shared.ErrInvalidConfig)
	case opts.ExportDir == "":
		return nil, fmt.Errorf("%w: export directory is required", shared.ErrInvalidConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = 5
	}

	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = t
	}

	return &App{
		auth:      opts.Auth,
		catalog:   opts.Catalog,
		exports:   opts.Exports,
		exporter:  tasks.NewExporter(opts.Catalog, opts.Exports, shared.WithLogger(logger, "component", "exporter")),
		store:     newCookieStore(opts.SessionSecret, opts.SecureCookies),
		templates: templates,
		exportDir: opts.ExportDir,
		history:   opts.HistoryLimit,
		logger:    logger,
	}, nil
}

// Handler returns the app wrapped in the server middleware stack.
func (a *App) Handler() http.Handler {
	r := server.NewBasicRouter()
	r.Use(server.Recover(a.logger), server.Logging(a.logger), server.SecurityHeaders)

	r.HandleFunc(http.MethodGet, "/{$}", a.index)
	r.HandleFunc(http.MethodGet, "/login", a.login)
	r.HandleFunc(http.MethodGet, "/callback", a.callback)
	r.HandleFunc(http.MethodGet, "/playlists", a.playlists)
	r.HandleFunc(http.MethodPost, "/export", a.export)
	r.HandleFunc(http.MethodGet, "/download/{file}", a.download)
	r.HandleFunc(http.MethodGet, "/logout", a.logout)
	r.HandleFunc("", "/", a.notFound)
	return r
}

// page is the data handed to every template.
type page struct {
	User    string
	Flashes []Flash
	Data    any
}

type errorPage struct {
	Title   string
	Message string
}

func (a *App) session(r *http.Request) session {
	// A cookie that fails to decode (rotated secret, tampering) yields a fresh session.
	s, err := a.store.Get(r, sessionName)
	if err != nil {
		a.logger.Debug("discarding invalid session cookie", "err", err)
	}
	return session{s}
}

func (a *App) save(w http.ResponseWriter, r *http.Request, s session) {
	if err := s.Save(r, w); err != nil {
		a.logger.Error("failed to save session", "err", err)
	}
}

// render drains flashes into the page, saves the session and writes the template.
func (a *App) render(w http.ResponseWriter, r *http.Request, s session, status int, name string, data any) {
	p := page{User: s.UserName(), Flashes: s.Flashes(), Data: data}
	a.save(w, r, s)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := a.templates[name].ExecuteTemplate(w, "layout", p); err != nil {
		a.logger.Error("failed to render template", "template", name, "err", err)
	}
}

func (a *App) renderError(w http.ResponseWriter, r *http.Request, s session, status int, title, message string) {
	a.render(w, r, s, status, "error", errorPage{Title: title, Message: message})
}

func (a *App) redirect(w http.ResponseWriter, r *http.Request, s session, to string) {
	a.save(w, r, s)
	http.Redirect(w, r, to, http.StatusFound)
}

// fail maps err to the response for its error class.
func (a *App) fail(w http.ResponseWriter, r *http.Request, s session, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		a.redirect(w, r, s, "/")
	case services.IsAuthError(err):
		a.logger.Warn("authentication lost", "err", err)
		s.Clear()
		s.Flash(flashError, "Your Spotify session has expired. Please log in again.")
		a.redirect(w, r, s, "/")
	case errors.Is(err, shared.ErrRateLimited):
		a.logger.Warn("rate limited", "err", err)
		w.Header().Set("Retry-After", "30")
		a.renderError(w, r, s, http.StatusServiceUnavailable, "Spotify is busy",
			"Spotify is rate limiting requests right now. Please wait a moment and try again.")
	case errors.Is(err, shared.ErrExportWrite):
		a.logger.Error("export write failed", "err", err)
		a.renderError(w, r, s, http.StatusInternalServerError, "Export failed",
			"The export file could not be written. Please try again later.")
	case errors.Is(err, shared.ErrAPIRequest):
		a.logger.Error("spotify request failed", "err", err)
		a.renderError(w, r, s, http.StatusBadGateway, "Spotify request failed",
			"Spotify did not answer as expected. Please try again later.")
	default:
		a.logger.Error("request failed", "err", err)
		a.renderError(w, r, s, http.StatusInternalServerError, "Something went wrong",
			"An unexpected error occurred. Please try again later.")
	}
}
