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

const defaultScenario = "live_demo"

func DemoCommand() *cli.Command {
	return &cli.Command{
		Name:      "demo",
		Aliases:   []string{"d"},
		Usage:     "Replay a scripted demo scenario without the HTTP API",
		ArgsUsage: "[scenario-id]",
		Flags:     engineFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("demo")

			scenarioID := command.Args().First()
			if scenarioID == "" {
				scenarioID = defaultScenario
			}

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

			e.Hub.Subscribe(printer(log.WithModule("notifications")))

			err = e.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start engine: %w", err)
			}

			err = e.Demo.Start(ctx, scenarioID)
			if err != nil {
				return fmt.Errorf("failed to start scenario %q: %w", scenarioID, err)
			}

			err = e.Demo.Wait(ctx)
			if err != nil {
				logger.Info("Demo interrupted", "scenario", scenarioID)

				return nil
			}

			// Let the last triggered workflows finish before shutting down.
			e.Dispatcher.Drain()
			e.Simulator.Wait()

			snapshot := e.Reporting.Snapshot()
			logger.InfoContext(ctx, "Demo finished",
				"scenario", scenarioID,
				"total_events", snapshot.TotalEvents,
				"events_by_type", snapshot.EventsByType)

			return nil
		},
	}
}
