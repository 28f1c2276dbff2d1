package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/chat"

	"github.com/spf13/cobra"
)

var sendChatID string

var sendCmd = &cobra.Command{
	Use:   "send --chat ID TEXT",
	Short: "Send one message through the configured strategy",
	Long:  "Delivers a single bot message to a conversation using the configured strategy's send path.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := strings.TrimSpace(sendChatID)
		if chatID == "" {
			return errors.New("--chat is required")
		}
		text := joinArgs(args)
		if text == "" {
			return errors.New("message text is required")
		}

		a, err := loadApp("cmd.send")
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

		mb := bus.NewMessageBus()
		defer mb.Close()

		transport, err := buildTransport(a.cfg, mb, a.log)
		if err != nil {
			return fmt.Errorf("configure transport: %w", err)
		}
		task, err := a.buildTask(mb, transport)
		if err != nil {
			return fmt.Errorf("configure chat task: %w", err)
		}

		msg := chat.Message{Destination: chatID, Text: text, User: a.cfg.Polling.BotUsername}
		if err := task.Strategy().SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sent to %s via %s\n", chatID, task.Strategy().Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendChatID, "chat", "", "conversation id to send to")
}
