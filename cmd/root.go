package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/browser"
	"github.com/example/yoyaku-dash/internal/config"
	"github.com/example/yoyaku-dash/internal/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "yoyakudash",
		Short:         "Books a same-day clinic appointment the moment the booking window opens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newPasswdCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func chromeLauncher(opts browser.Options, log *zap.Logger) booking.Launcher {
	return booking.LaunchFunc(func(ctx context.Context) (booking.Session, error) {
		s, err := browser.Launch(ctx, opts, log.Named("browser"))
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
