package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodhare/goodhare/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to --config with a freshly generated session secret.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", configPath)

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}

	secret, err := newSessionSecret()
	if err != nil {
		return err
	}
	config.Server.SessionSecret = secret

	if err := shared.SaveConfig(configPath, config); err != nil {
		return err
	}

	r.writePlain("✓ Config written to %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Register %s as a redirect URI for your Spotify app\n", config.Credentials.Spotify.RedirectURI)
	r.writePlain("3. Run 'goodhare setup database', then 'goodhare serve' or 'goodhare export'\n")
	return nil
}

// newSessionSecret returns 64 random hex characters.
func newSessionSecret() (string, error) {
	a, err := shared.GenerateState()
	if err != nil {
		return "", err
	}
	b, err := shared.GenerateState()
	if err != nil {
		return "", err
	}
	return a + b, nil
}

// SetupDatabase initializes the database and runs migrations, or rolls the last one back.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back last migration")
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
	} else {
		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Database %s at schema version %d\n", config.Database.Path, version)
}

// SetupStatus prints the effective configuration without secrets.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err != nil {
		configPath += " (not found, using defaults)"
	}

	r.writePlainHeader("goodhare status")
	r.writePlain("Config:       %s\n", configPath)
	r.writePlain("Credentials:  %s\n", yesNo(config.HasSpotifyCredentials(), "configured", "missing"))
	r.writePlain("Redirect URI: %s\n", config.Credentials.Spotify.RedirectURI)
	r.writePlain("Listen:       %s\n", config.Server.Addr())
	r.writePlain("Export dir:   %s\n", config.Export.Dir)
	r.writePlain("Database:     %s\n", config.Database.Path)

	if _, err := os.Stat(config.Database.Path); err != nil {
		return r.writePlain("Schema:       not initialized (run 'goodhare setup database')\n")
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := shared.CurrentVersion(db)
	if err != nil {
		return r.writePlain("Schema:       not initialized (run 'goodhare setup database')\n")
	}
	return r.writePlain("Schema:       version %d\n", version)
}

func yesNo(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
