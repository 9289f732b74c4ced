package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/convergence/pkg/cmd"
	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var errNoBroker = errors.New("watch needs a broker, set --event-bus to kafka")

func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Print notifications forwarded to the broker by a running server",
		Flags:   append([]cli.Flag{eventBusFlag()}, loggingFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("watch")

			publisher, subscriber, err := cmd.NewChannel(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			if subscriber == nil {
				return errNoBroker
			}

			defer func() {
				err := publisher.Close()
				if err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}

				err = subscriber.Close()
				if err != nil {
					logger.Error("Failed to close event bus subscriber", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = eventbus.Consume(ctx, subscriber, printer(log.WithModule("notifications")))
			if err != nil {
				return fmt.Errorf("failed to subscribe to notifications: %w", err)
			}

			logger.InfoContext(ctx, "Watching notifications", "event_bus", command.String("event-bus"))

			<-ctx.Done()

			return nil
		},
	}
}
