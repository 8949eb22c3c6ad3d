// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config file with a generated session secret",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "status",
				Usage: "Show the configuration and schema version in use",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.SetupStatus,
			},
		},
	}
}

// serveCommand runs the web front end.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web interface",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port from config)",
			},
			&cli.BoolFlag{
				Name:  "secure-cookies",
				Usage: "Mark session cookies Secure (serve behind HTTPS)",
			},
		},
		Action: r.Serve,
	}
}

// exportCommand exports playlists from the terminal.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Log in with Spotify and export playlists to CSV",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Playlist ID to export (repeatable, liked_songs for Liked Songs); skips the interactive picker",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: <export dir>/spotify_export_<timestamp>.csv)",
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL instead of opening a browser",
			},
		},
		Action: r.Export,
	}
}

// historyCommand lists and removes recorded exports.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded exports",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Only show exports owned by this Spotify user ID",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of exports to list",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "delete",
				Usage: "Delete a recorded export and its file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.HistoryDelete,
			},
		},
	}
}
