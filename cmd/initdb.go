package cmd

import (
	"context"
	"fmt"
	"strings"

	"chatpoll/pkg/config"

	"github.com/spf13/cobra"
)

var initConfigPath string

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the chat tables and count trigger",
	Long:  "Creates the count table, the chat table and the trigger keeping counts in step. Optionally writes the effective config to a file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("cmd.init-db")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := a.openSource(ctx); err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schema ready in %s (%s, %s)\n", a.cfg.Database.Path, a.cfg.Polling.Table, a.cfg.Polling.ChatTable.Name)

		if path := strings.TrimSpace(initConfigPath); path != "" {
			if err := config.Save(path, a.cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(out, "config written to %s\n", path)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
	initDBCmd.Flags().StringVar(&initConfigPath, "write-config", "", "also save the effective config to this path")
}
