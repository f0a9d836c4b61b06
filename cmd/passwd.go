package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/yoyaku-dash/internal/auth"
)

func newPasswdCmd() *cobra.Command {
	var password string

	c := &cobra.Command{
		Use:   "passwd",
		Short: "Hash an operator password for PANEL_PASSWORD_BCRYPT",
		Long:  "Hash an operator password for PANEL_PASSWORD_BCRYPT. Without --password the first line of stdin is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			// single quotes keep the $ signs intact in .env files and shells
			fmt.Fprintf(cmd.OutOrStdout(), "PANEL_PASSWORD_BCRYPT='%s'\n", hash)
			return nil
		},
	}

	c.Flags().StringVar(&password, "password", "", "password to hash (default: read from stdin)")
	return c
}
