package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/log"
	"github.com/goodhare/goodhare/internal/repositories"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	catalog     services.Catalog
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
	spin        func(ctx context.Context, title string, action func(context.Context) error) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config   // Skips loading --config when set
	Catalog services.Catalog // Replaces the Spotify catalog built from the config
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:      opts.Config,
		catalog:     opts.Catalog,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: shared.OpenBrowser,
		spin:        runSpinner,
	}
}

func runSpinner(ctx context.Context, title string, action func(context.Context) error) error {
	return spinner.New().Title(title).Context(ctx).ActionWithErr(action).Run()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, exportCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while a TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig resolves the --config file, .env and environment overrides, then applies the log level.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	config := r.config
	if config == nil {
		var err error
		if config, err = shared.ResolveConfig(cmd.String("config")); err != nil {
			return nil, err
		}
	}

	if err := shared.SetLogLevelString(r.logger, config.LogLevel); err != nil {
		r.logger.Warn("ignoring log level", "error", err)
	}
	return config, nil
}

// newCatalog returns the injected catalog or a rate-limited Spotify catalog.
func (r *Runner) newCatalog(config *shared.Config) services.Catalog {
	if r.catalog != nil {
		return r.catalog
	}
	return services.NewSpotifyCatalog(
		services.WithRateLimit(config.API.RequestsPerSecond),
		services.WithLogger(shared.WithLogger(r.logger, "component", "catalog")),
	)
}

// openExports opens the database, applies migrations and returns the export repository.
// Callers close the returned database.
func (r *Runner) openExports(config *shared.Config) (*repositories.ExportRepository, *sql.DB, error) {
	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewExportRepository(db), db, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
