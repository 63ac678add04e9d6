package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/gphotosync/internal/auth"
	"github.com/hpungsan/gphotosync/internal/config"
	"github.com/hpungsan/gphotosync/internal/errors"
	"github.com/hpungsan/gphotosync/internal/exifmeta"
	"github.com/hpungsan/gphotosync/internal/ops"
	"github.com/hpungsan/gphotosync/internal/photos"
	"github.com/hpungsan/gphotosync/internal/timestamp"
)

// connectFunc builds the photo service for a run, plus a factory for
// independent per-worker services.
type connectFunc func(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (photos.Service, photos.Factory, error)

// newCLIApp creates the CLI application with all commands. Running it
// without a command performs one sync.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *logrus.Logger, connect connectFunc) *cli.App {
	sync := syncCmd(db, cfg, logger, connect)
	app := &cli.App{
		Name:    "gphotosync",
		Usage:   "Incremental Google Photos sync into album folders",
		Version: Version,
		Flags:   syncFlags(),
		Action:  sync.Action,
		Commands: []*cli.Command{
			sync,
			authCmd(cfg),
			historyCmd(db),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// syncFlags returns the flags of the sync command, also accepted without a
// command name.
func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "Print the run result as JSON instead of the text summary"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Concurrent album loaders (overrides album_workers)"},
	}
}

// syncCmd creates the sync command.
func syncCmd(db *sql.DB, cfg *config.Config, logger *logrus.Logger, connect connectFunc) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Download items added since the last run (default command)",
		Flags: syncFlags(),
		Action: func(c *cli.Context) error {
			if cfg == nil || connect == nil {
				return outputError(errors.NewInvalidConfig("configuration is not loaded"))
			}
			runCfg := *cfg
			if w := c.Int("workers"); w > 0 {
				runCfg.AlbumWorkers = w
			}

			normalizer, err := timestamp.New(runCfg.Timezone)
			if err != nil {
				return outputError(errors.NewInvalidConfig(err.Error()))
			}
			service, factory, err := connect(c.Context, &runCfg, logger)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Sync(c.Context, &ops.RunContext{
				Config:     &runCfg,
				Service:    service,
				NewService: factory,
				Normalizer: normalizer,
				Rules:      ops.RulesFromConfig(&runCfg),
				Codec:      exifmeta.Codec{},
				Logger:     logger,
				DB:         db,
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(output)
			}
			if output.NothingNew {
				fmt.Fprintln(os.Stdout, "No new items since the last run.")
				return nil
			}
			fmt.Fprint(os.Stdout, output.Summary.Text())
			return nil
		},
	}
}

// authCmd creates the auth command.
func authCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize read access to the photo library and cache the token",
		Action: func(c *cli.Context) error {
			if cfg == nil {
				return outputError(errors.NewInvalidConfig("configuration is not loaded"))
			}
			oauthCfg, err := auth.LoadConfig(cfg.CredentialsFile)
			if err != nil {
				return outputError(err)
			}
			prompt := func(authURL string) {
				fmt.Fprintf(os.Stderr, "Open this URL in a browser to authorize gphotosync:\n\n  %s\n\n", authURL)
			}
			if _, err := auth.Authorize(c.Context, oauthCfg, cfg.TokenFile, prompt); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{"token_file": cfg.TokenFile})
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent sync runs, or the items written by one run",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Maximum runs to list"},
			&cli.StringFlag{Name: "run", Aliases: []string{"r"}, Usage: "Show a single run and its items"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(db, ops.HistoryInput{
				Limit: c.Int("limit"),
				RunID: c.String("run"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// connectPhotos authorizes with the cached token and returns a Library API
// client. Every factory call builds a client with its own HTTP client over
// the shared token source and rate limiter.
func connectPhotos(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (photos.Service, photos.Factory, error) {
	ts, err := auth.NewTokenSourceFromFiles(ctx, cfg.CredentialsFile, cfg.TokenFile, logger)
	if err != nil {
		return nil, nil, err
	}
	opt := photos.Options{
		MaxRetries:        cfg.MaxRetries,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout(),
		DownloadTimeout:   cfg.ContentTimeout(),
		Logger:            logger,
		Limiter:           photos.NewLimiter(cfg.RequestsPerSecond),
	}
	factory := func() (photos.Service, error) {
		return photos.NewClient(ts.Client(), opt), nil
	}
	return photos.NewClient(ts.Client(), opt), factory, nil
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI. Wrapped errors keep their code.
func outputError(err error) error {
	code, ok := errors.CodeOf(err)
	if !ok {
		return cli.Exit(err.Error(), 1)
	}
	msg := err.Error()
	if syncErr, direct := err.(*errors.SyncError); direct {
		msg = syncErr.Message
	}
	return cli.Exit(fmt.Sprintf("[%s] %s", code, msg), 1)
}
