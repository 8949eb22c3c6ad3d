package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/goodhare/goodhare/internal/models"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/tasks"
	"golang.org/x/oauth2"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	ExportView
	ResultView
)

// progressLines is how many recent progress messages the export view keeps.
const progressLines = 8

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	catalog  services.Catalog
	exporter *tasks.Exporter
	token    *oauth2.Token
	opts     tasks.ExportOpts
	width    int
	height   int

	playlistList list.Model
	playlists    []models.Playlist
	selected     map[string]bool
	trackList    list.Model
	notice       string

	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	lines        []string
	result       *tasks.ExportResult
	completed    []*tasks.ExportResult
	err          error

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, catalog services.Catalog, exporter *tasks.Exporter, token *oauth2.Token, opts tasks.ExportOpts) *Model {
	return &Model{
		ctx:      ctx,
		view:     PlaylistListView,
		catalog:  catalog,
		exporter: exporter,
		token:    token,
		opts:     opts,
		selected: map[string]bool{},
		help:     help.New(),
		keys:     newKeyMap(),

		playlistList: newList("Spotify Playlists", nil, 0, 0),
		trackList:    newList("Tracks", nil, 0, 0),
	}
}

// Result returns the export shown in the result view, or nil.
func (m *Model) Result() *tasks.ExportResult { return m.result }

// Completed returns every export written during the session, in order.
func (m *Model) Completed() []*tasks.ExportResult { return m.completed }

// Err returns the error that ended the session, if any.
func (m *Model) Err() error { return m.err }

// Selection returns the marked playlist ids in list order.
func (m *Model) Selection() models.Selection {
	var ids []string
	for _, pl := range m.playlists {
		if m.selected[pl.ID] {
			ids = append(ids, pl.ID)
		}
	}
	return models.NewSelection(ids)
}

// Init initializes the TUI by fetching playlists from Spotify.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ExportView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		m.playlists = data.playlists
		return m, m.playlistList.SetItems(m.playlistItems())

	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		if data.err != nil {
			m.notice = fmt.Sprintf("Could not load %s: %v", data.playlist.Name, data.err)
			m.view = PlaylistListView
			return m, nil
		}
		items := make([]list.Item, len(data.tracks))
		for i, track := range data.tracks {
			items[i] = trackItem{track: track}
		}
		m.trackList = newList(fmt.Sprintf("Tracks in '%s'", data.playlist.Name), items, m.width, m.height)
		m.view = TrackListView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		m.lines = append(m.lines, m.progress.Message)
		if len(m.lines) > progressLines {
			m.lines = m.lines[len(m.lines)-progressLines:]
		}
		return m, m.waitForProgress()

	case MsgExportComplete:
		data := msg.data.(exportComplete)
		m.result = data.result
		m.err = data.err
		if data.result != nil {
			m.completed = append(m.completed, data.result)
		}
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == PlaylistListView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case ExportView:
		return m.renderExport()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			m.selected[item.playlist.ID] = !m.selected[item.playlist.ID]
			item.selected = m.selected[item.playlist.ID]
			m.playlistList.SetItem(m.playlistList.GlobalIndex(), item)
		}
		m.notice = ""
		return m, nil
	case key.Matches(msg, m.keys.all):
		all := len(m.Selection()) < len(m.playlists)
		for _, pl := range m.playlists {
			m.selected[pl.ID] = all
		}
		m.playlistList.SetItems(m.playlistItems())
		m.notice = ""
		return m, nil
	case key.Matches(msg, m.keys.preview):
		if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			return m, m.fetchTracks(item.playlist)
		}
		return m, nil
	case key.Matches(msg, m.keys.export):
		if len(m.Selection()) == 0 {
			m.notice = "Select at least one playlist to export."
			return m, nil
		}
		m.notice = ""
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = ExportView
		return m, m.startExport()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = PlaylistListView
		m.selected = map[string]bool{}
		m.playlistList.SetItems(m.playlistItems())
		m.progress = tasks.ProgressUpdate{}
		m.lines = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) playlistItems() []list.Item {
	items := make([]list.Item, len(m.playlists))
	for i, pl := range m.playlists {
		items[i] = playlistItem{playlist: pl, selected: m.selected[pl.ID]}
	}
	return items
}

// newList builds a list whose quit bindings are left to the model.
func newList(title string, items []list.Item, width, height int) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.SetShowHelp(false)
	if width > 0 && height > 0 {
		l.SetSize(width-4, height-8)
	}
	return l
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.catalog.ListPlaylists(m.ctx, m.token)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlist models.Playlist) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.catalog.ListTracks(m.ctx, m.token, playlist.ID)
		return tracksFetchedMsg(playlist, tracks, err)
	}
}

func (m *Model) startExport() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.doneChan = done
	m.lines = nil

	selection := m.Selection()
	names := tasks.PlaylistNames(m.playlists)
	go func() {
		result, err := m.exporter.Export(m.ctx, m.token, selection, names, m.opts, progress)
		close(progress)
		done <- exportCompleteMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return exportCompleteMsg(m.result, m.err)
		}
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

func (m *Model) renderPlaylistList() string {
	status := fmt.Sprintf("%d selected", len(m.Selection()))
	if m.notice != "" {
		status = fmt.Sprintf("%s  %s", status, styles.warn.Render(m.notice))
	}

	helpKeys := []key.Binding{m.keys.toggle, m.keys.all, m.keys.preview, m.keys.export, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", m.playlistList.View(), status, helpView)
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	selection := m.Selection()
	names := tasks.PlaylistNames(m.playlists)

	title := styles.title.Render(fmt.Sprintf("Export %d playlists to CSV?", len(selection)))
	var b strings.Builder
	for _, id := range selection {
		fmt.Fprintf(&b, "\n  • %s", tasks.DisplayName(names, id))
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s%s\n\n%s", title, b.String(), helpView)
}

func (m *Model) renderExport() string {
	title := styles.title.Render("Exporting Playlists")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchTracks, tasks.SkipPlaylist:
		phase = fmt.Sprintf("Fetching tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.WriteExport:
		phase = "Writing CSV..."
	default:
		phase = "Starting..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, styles.help.Render(strings.Join(m.lines, "\n")))
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Export failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	record := m.result.Record
	title := styles.ok.Render("✓ Export Complete!")
	info := fmt.Sprintf("\nFile: %s\nRows: %d\nPlaylists: %d", record.Path, record.RowCount, record.PlaylistCount)

	var skipped string
	if len(m.result.Skipped) > 0 {
		skipped = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("Skipped %d playlists:", len(m.result.Skipped))))
		for _, s := range m.result.Skipped {
			skipped += fmt.Sprintf("\n  • %s (%s)", s.Name, s.Reason)
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, skipped, helpView)
}
