package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/goodhare/goodhare/internal/tasks"
	"golang.org/x/oauth2"
)

// token returns a usable token for the session, refreshing and storing it when it is about to expire.
func (a *App) token(ctx context.Context, s session) (*oauth2.Token, error) {
	token, refreshed, err := services.EnsureFresh(ctx, a.auth, s.Token())
	if err != nil {
		return nil, err
	}
	if refreshed {
		a.logger.Debug("refreshed access token", "user", s.UserID())
		s.SetToken(token)
	}
	return token, nil
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)
	if s.Token() != nil {
		a.redirect(w, r, s, "/playlists")
		return
	}
	a.render(w, r, s, http.StatusOK, "index", nil)
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)

	state, err := shared.GenerateState()
	if err != nil {
		a.fail(w, r, s, err)
		return
	}
	s.Values[keyState] = state
	a.redirect(w, r, s, a.auth.AuthURL(state))
}

func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)
	query := r.URL.Query()

	expected := s.str(keyState)
	delete(s.Values, keyState)

	if e := query.Get("error"); e != "" {
		s.Flash(flashError, "Spotify authorization failed: "+e)
		a.redirect(w, r, s, "/")
		return
	}

	if expected == "" || query.Get("state") != expected {
		a.logger.Warn("callback state mismatch")
		s.Flash(flashError, "The login request could not be verified. Please try again.")
		a.redirect(w, r, s, "/")
		return
	}

	code := query.Get("code")
	if code == "" {
		s.Flash(flashError, "No authorization code received.")
		a.redirect(w, r, s, "/")
		return
	}

	token, err := a.auth.Exchange(r.Context(), code)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	user, err := a.catalog.CurrentUser(r.Context(), token)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	s.SetToken(token)
	s.SetUser(user.ID, user.Name())
	s.Flash(flashSuccess, "Successfully authenticated with Spotify!")
	a.logger.Info("user logged in", "user", user.ID)
	a.redirect(w, r, s, "/playlists")
}

type playlistsPage struct {
	Playlists []models.Playlist
	History   []*models.ExportRecord
}

func (a *App) playlists(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)

	token, err := a.token(r.Context(), s)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	playlists, err := a.catalog.ListPlaylists(r.Context(), token)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	history, err := a.exports.ListByOwner(r.Context(), s.UserID(), a.history)
	if err != nil {
		a.logger.Warn("failed to load export history", "err", err)
	}

	a.render(w, r, s, http.StatusOK, "playlists", playlistsPage{Playlists: playlists, History: history})
}

type exportPage struct {
	Record  *models.ExportRecord
	Skipped []models.SkippedPlaylist
}

func (a *App) export(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)

	token, err := a.token(r.Context(), s)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		s.Flash(flashError, "The export form could not be read.")
		a.redirect(w, r, s, "/playlists")
		return
	}

	selection := models.NewSelection(r.PostForm["playlist_ids"])
	if len(selection) == 0 {
		s.Flash(flashError, "Please select at least one playlist to export.")
		a.redirect(w, r, s, "/playlists")
		return
	}

	playlists, err := a.catalog.ListPlaylists(r.Context(), token)
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	result, err := a.exporter.Export(r.Context(), token, selection, tasks.PlaylistNames(playlists), tasks.ExportOpts{
		Dir:     a.exportDir,
		OwnerID: s.UserID(),
	}, nil)
	if errors.Is(err, shared.ErrNothingExported) {
		s.Flash(flashError, "No tracks were retrieved from the selected playlists.")
		a.redirect(w, r, s, "/playlists")
		return
	}
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	a.render(w, r, s, http.StatusOK, "export", exportPage{Record: result.Record, Skipped: result.Skipped})
}

func (a *App) download(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)

	id := strings.TrimSuffix(r.PathValue("file"), ".csv")
	if !shared.IsID(id) || s.UserID() == "" {
		a.notFound(w, r)
		return
	}

	record, err := a.exports.GetForOwner(r.Context(), id, s.UserID())
	if errors.Is(err, shared.ErrExportNotFound) {
		a.notFound(w, r)
		return
	}
	if err != nil {
		a.fail(w, r, s, err)
		return
	}

	f, err := os.Open(record.Path)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("export file missing", "id", record.ID, "path", record.Path)
		a.notFound(w, r)
		return
	}
	if err != nil {
		a.fail(w, r, s, fmt.Errorf("%w: %w", shared.ErrExportWrite, err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		a.fail(w, r, s, fmt.Errorf("%w: %w", shared.ErrExportWrite, err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	http.ServeContent(w, r, record.Filename, info.ModTime(), f)
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	s := a.session(r)
	s.Clear()
	s.Flash(flashSuccess, "Logged out successfully.")
	a.redirect(w, r, s, "/")
}

func (a *App) notFound(w http.ResponseWriter, r *http.Request) {
	a.renderError(w, r, a.session(r), http.StatusNotFound, "Page not found", "There is nothing at this address.")
}
