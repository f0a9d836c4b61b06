package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/runner"
)

func newRunCmd() *cobra.Command {
	var (
		subject     string
		at          string
		commit      bool
		strictLogin bool
		outDir      string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Wait for opening and book one slot in the foreground (Ctrl-C aborts)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			roster, err := cfg.Roster()
			if err != nil {
				return err
			}
			subj, err := roster.Lookup(subject)
			if err != nil {
				return err
			}
			slot, err := clinic.ParseSlot(at)
			if err != nil {
				return err
			}

			settings, err := cfg.BookingSettings()
			if err != nil {
				return err
			}
			settings.CommitEnabled = settings.CommitEnabled || commit
			settings.StrictLogin = settings.StrictLogin || strictLogin
			if outDir == "" {
				outDir = cfg.ScreenshotDir
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rec, closeDB, err := openHistory(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeDB()

			r := runner.New(runner.Options{
				Launcher: chromeLauncher(cfg.BrowserOptions(), log),
				Settings: settings,
				Clock:    clock.System{},
				Logger:   log,
				History:  rec,
			})
			snap, err := r.Start(booking.Request{Subject: subj, Slot: slot}, settings.CommitEnabled)
			if err != nil {
				return err
			}
			if !settings.CommitEnabled {
				log.Warn("dry run: the final reserve button will not be pressed (use --commit)")
			}

			done, err := r.Done(snap.ID)
			if err != nil {
				return err
			}
			select {
			case <-done:
			case <-ctx.Done():
				log.Info("interrupted, aborting run")
				_ = r.Cancel(snap.ID)
				<-done
			}

			final, _ := r.Get(snap.ID)
			if err := saveScreenshots(r, final, outDir, log); err != nil {
				log.Warn("saving screenshots failed", zap.Error(err))
			}
			if final.Status != runner.StatusSucceeded {
				return fmt.Errorf("run %s: %s", final.Status, final.Error)
			}
			if final.Committed {
				fmt.Fprintf(cmd.OutOrStdout(), "booked %s at %s\n", subj.Name, slot)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "dry run reached the final button for %s at %s\n", subj.Name, slot)
			}
			return nil
		},
	}

	c.Flags().StringVar(&subject, "subject", "", "subject key or patient code")
	c.Flags().StringVar(&at, "time", "", "appointment time, HH:MM")
	c.Flags().BoolVar(&commit, "commit", false, "press the final reserve button")
	c.Flags().BoolVar(&strictLogin, "strict-login", false, "abort if the login controls are missing")
	c.Flags().StringVar(&outDir, "out", "", "screenshot directory (default $SCREENSHOT_DIR)")
	_ = c.MarkFlagRequired("subject")
	_ = c.MarkFlagRequired("time")
	return c
}

func saveScreenshots(r *runner.Runner, snap runner.Snapshot, dir string, log *zap.Logger) error {
	if len(snap.Shots) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, info := range snap.Shots {
		shot, ok := r.Screenshot(snap.ID, info.Index)
		if !ok {
			continue
		}
		name := fmt.Sprintf("%s-%s-%d.png", shot.At.Format("20060102-150405"), shot.Caption, info.Index)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, shot.PNG, 0o644); err != nil {
			return err
		}
		log.Info("screenshot saved", zap.String("path", path))
	}
	return nil
}
