package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/auth"
	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/config"
	"github.com/example/yoyaku-dash/internal/db"
	"github.com/example/yoyaku-dash/internal/history"
	"github.com/example/yoyaku-dash/internal/migrate"
	"github.com/example/yoyaku-dash/internal/runner"
	"github.com/example/yoyaku-dash/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the operator panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.CheckPanel(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var repo *history.Repo
			if cfg.DatabaseURL != "" {
				d, err := connect(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer d.Close()
				if migrateUp {
					if _, err := migrate.Up(ctx, d, log); err != nil {
						return err
					}
				}
				repo = history.NewRepo(d)
			} else {
				log.Info("DATABASE_URL not set; run history is kept in memory only")
			}

			settings, err := cfg.BookingSettings()
			if err != nil {
				return err
			}
			roster, err := cfg.Roster()
			if err != nil {
				return err
			}
			opening, err := cfg.Opening()
			if err != nil {
				return err
			}

			opts := runner.Options{
				Launcher: chromeLauncher(cfg.BrowserOptions(), log),
				Settings: settings,
				Clock:    clock.System{},
				Logger:   log,
			}
			ws := &web.Server{
				Auth:    auth.NewStore(cfg.PanelPasswordHash, cfg.CookieHashKey, cfg.CookieBlockKey),
				Roster:  roster,
				Opening: opening.String(),
				Loc:     cfg.Location,
				Logger:  log.Named("web"),
			}
			if repo != nil {
				opts.History = repo
				ws.History = repo
			}
			r := runner.New(opts)
			defer r.Shutdown()
			ws.Runner = r

			log.Info("panel ready", zap.String("base_url", cfg.BaseURL), zap.Bool("commit_enabled", settings.CommitEnabled), zap.Stringer("opening", opening))
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func connect(ctx context.Context, url string) (*db.DB, error) {
	d, err := db.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return d, nil
}

// openHistory connects to the history database if one is configured. The
// returned Recorder is nil otherwise.
func openHistory(ctx context.Context, cfg config.Config, log *zap.Logger) (runner.Recorder, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	d, err := connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if _, err := migrate.Up(ctx, d, log); err != nil {
		d.Close()
		return nil, nil, err
	}
	return history.NewRepo(d), d.Close, nil
}
