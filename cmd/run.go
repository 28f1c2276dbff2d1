package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatpoll/pkg/bus"
	"chatpoll/pkg/channel"
	"chatpoll/pkg/config"
	"chatpoll/pkg/gateway"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chat task with health and status endpoints",
	Long:  "Runs the configured polling strategy until interrupted, serving /healthz, /readyz and /status.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("cmd.run")
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.openSource(runCtx); err != nil {
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

		svc, err := gateway.NewService(a.cfg.Gateway, task, gateway.Options{Bus: mb, Probe: a.probe, Logger: a.log})
		if err != nil {
			return fmt.Errorf("initialize gateway service: %w", err)
		}

		watchTransport(runCtx, stop, transport, mb, a.log)

		a.log.Info("Chat poller started",
			"strategy", task.Strategy().Name(),
			"transport", transportName(transport),
			"database", a.cfg.Database.Path,
			"interval", a.cfg.Polling.IntervalDuration())
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Chat poller failed", "error", err)
			return err
		}

		a.log.Info("Chat poller stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// watchTransport ends the run when an interactive transport is closed by
// its user, and logs replies left on the in-process bus.
func watchTransport(ctx context.Context, stop context.CancelFunc, transport channel.Transport, mb *bus.MessageBus, log *slog.Logger) {
	if closer, ok := transport.(interface{ Done() <-chan struct{} }); ok {
		go func() {
			select {
			case <-closer.Done():
				stop()
			case <-ctx.Done():
			}
		}()
	}

	if transport == nil || transport.Name() != config.TransportBus {
		return
	}

	go func() {
		for {
			msg, ok := mb.SubscribeOutbound(ctx)
			if !ok {
				return
			}
			log.Info("Outbound reply", "conversation", msg.Destination, "user", msg.User, "text", msg.Text)
		}
	}()
}

func transportName(transport channel.Transport) string {
	if transport == nil {
		return "none"
	}

	return transport.Name()
}
