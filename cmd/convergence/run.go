package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dukex/convergence/pkg/engine"
	"github.com/dukex/convergence/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func RunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	}

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the dispatcher, simulator and HTTP API",
		Flags:   append(flags, engineFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Convergence")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := engine.New(ctx, engineConfig(command), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize engine: %w", err)
			}

			defer func() {
				err := e.Close(context.Background())
				if err != nil {
					logger.Error("Failed to close engine", "error", err)
				}
			}()

			err = e.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}

			api := NewAPI(logger, e)

			errs := make(chan error, 1)

			go func() {
				errs <- api.Start(command.Int("port"))
			}()

			logger.InfoContext(ctx, "API listening", "port", command.Int("port"))

			select {
			case err := <-errs:
				return fmt.Errorf("API server stopped: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return api.Shutdown(shutdownCtx)
		},
	}
}
