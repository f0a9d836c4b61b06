package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/example/yoyaku-dash/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			d, err := connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			runs, err := history.NewRepo(d).Recent(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s\n", r.ID, r.Summary())
			}
			return nil
		},
	}

	c.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return c
}
