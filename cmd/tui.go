package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/goodhare/goodhare/internal/tasks"
	"github.com/goodhare/goodhare/internal/ui"
	"golang.org/x/oauth2"
)

// pick launches the interactive playlist picker and returns the exports written before it was closed.
func (r *Runner) pick(
	ctx context.Context,
	catalog services.Catalog,
	recorder tasks.ExportRecorder,
	token *oauth2.Token,
	opts tasks.ExportOpts,
) ([]*tasks.ExportResult, error) {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/goodhare-tui.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	exporter := tasks.NewExporter(catalog, recorder, shared.WithLogger(fileLogger, "component", "exporter"))
	model := ui.NewModel(ctx, catalog, exporter, token, opts)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	return model.Completed(), model.Err()
}
