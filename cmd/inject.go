package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatpoll/pkg/config"
	"chatpoll/pkg/query"

	"github.com/spf13/cobra"
)

var (
	injectChatID string
	injectUser   string
)

var injectCmd = &cobra.Command{
	Use:   "inject --chat ID --user U TEXT",
	Short: "Write an inbound chat line into the database",
	Long:  "Inserts a message as if an external chat user had written it, so a running count poller picks it up.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := strings.TrimSpace(injectChatID)
		if chatID == "" {
			return errors.New("--chat is required")
		}
		text := joinArgs(args)
		if text == "" {
			return errors.New("message text is required")
		}

		a, err := loadApp("cmd.inject")
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

		if _, err := a.exec.Execute(ctx, injectQuery(a.cfg.Polling.ChatTable, chatID, strings.TrimSpace(injectUser), text)); err != nil {
			return fmt.Errorf("inject message: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "injected into %s\n", chatID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(injectCmd)
	injectCmd.Flags().StringVar(&injectChatID, "chat", "", "conversation id to write to")
	injectCmd.Flags().StringVar(&injectUser, "user", "user", "sender name")
}

func injectQuery(table config.ChatTableConfig, chatID string, user string, text string) query.Insert {
	columns := []string{table.ChatIDCol, table.TextCol}
	values := []any{chatID, text}
	if table.UserCol != "" {
		columns = append(columns, table.UserCol)
		values = append(values, user)
	}

	return query.Insert{Table: table.Name, Columns: columns, Values: [][]any{values}}
}
