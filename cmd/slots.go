package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/schedule"
)

func newSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List bookable times, subjects and the next opening",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
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

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tCODE")
			for _, s := range roster.Subjects {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Name, s.Code)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			var times []string
			for _, s := range clinic.Slots() {
				times = append(times, s.String())
			}
			fmt.Fprintf(out, "\ntimes: %s\n", strings.Join(times, " "))

			sched := schedule.Compute(time.Now(), opening, 10*time.Minute, 10*time.Second)
			fmt.Fprintf(out, "next opening: %s (login at %s)\n",
				sched.TargetOpen.Format("2006-01-02 15:04 MST"), sched.LoginStart.Format("15:04"))
			return nil
		},
	}
}
