package main

import (
	"time"

	"github.com/dukex/convergence/pkg/archive"
	"github.com/dukex/convergence/pkg/engine"
	"github.com/dukex/convergence/pkg/generator"
	"github.com/dukex/convergence/pkg/simulator"
	cli "github.com/urfave/cli/v3"
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

func eventBusFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "event-bus",
		Usage:   "Notification broker (none, gochannel, kafka)",
		Value:   "none",
		Sources: cli.EnvVars("EVENT_BUS_TYPE"),
	}
}

// engineFlags are shared by every command that runs the engine.
func engineFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Blob store URL for saved workflows (memory://, file path, redis://, postgres://)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		eventBusFlag(),
		&cli.BoolFlag{
			Name:    "demo-mode",
			Usage:   "Pause between workflow steps so executions can be watched",
			Value:   true,
			Sources: cli.EnvVars("DEMO_MODE"),
		},
		&cli.DurationFlag{
			Name:    "tick-interval",
			Usage:   "Override the interval between scripted demo events",
			Sources: cli.EnvVars("DEMO_TICK_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "step-delay",
			Usage:   "Pause between workflow steps in demo mode",
			Value:   simulator.DefaultStepDelay,
			Sources: cli.EnvVars("STEP_DELAY"),
		},
		&cli.DurationFlag{
			Name:    "command-timeout",
			Usage:   "Maximum time a device command may take",
			Value:   simulator.DefaultCommandTimeout,
			Sources: cli.EnvVars("COMMAND_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "archive-after",
			Usage:   "How long a finished execution stays active",
			Value:   simulator.DefaultArchiveAfter,
			Sources: cli.EnvVars("ARCHIVE_AFTER"),
		},
		&cli.DurationFlag{
			Name:    "command-delay",
			Usage:   "Simulated device response time",
			Value:   simulator.DefaultCommandDelay,
			Sources: cli.EnvVars("COMMAND_DELAY"),
		},
		&cli.FloatFlag{
			Name:    "success-rate",
			Usage:   "Probability that a simulated device command succeeds",
			Value:   simulator.DefaultSuccessRate,
			Sources: cli.EnvVars("COMMAND_SUCCESS_RATE"),
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Google AI API key for workflow generation",
			Sources: cli.EnvVars("GOOGLE_AI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Usage:   "Gemini model used for workflow generation",
			Value:   generator.DefaultModel,
			Sources: cli.EnvVars("GEMINI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "archive-bucket",
			Usage:   "S3 bucket receiving archived executions (disabled when empty)",
			Sources: cli.EnvVars("ARCHIVE_BUCKET"),
		},
		&cli.StringFlag{
			Name:    "archive-prefix",
			Usage:   "Object key prefix for archived executions",
			Value:   archive.DefaultPrefix,
			Sources: cli.EnvVars("ARCHIVE_PREFIX"),
		},
		&cli.StringFlag{
			Name:    "archive-region",
			Usage:   "S3 region",
			Value:   archive.DefaultRegion,
			Sources: cli.EnvVars("AWS_REGION"),
		},
		&cli.StringFlag{
			Name:    "archive-endpoint",
			Usage:   "Custom S3 endpoint (MinIO, LocalStack)",
			Sources: cli.EnvVars("ARCHIVE_ENDPOINT"),
		},
		&cli.StringFlag{
			Name:    "archive-access-key-id",
			Usage:   "S3 access key id",
			Sources: cli.EnvVars("AWS_ACCESS_KEY_ID"),
		},
		&cli.StringFlag{
			Name:    "archive-secret-access-key",
			Usage:   "S3 secret access key",
			Sources: cli.EnvVars("AWS_SECRET_ACCESS_KEY"),
		},
		&cli.BoolFlag{
			Name:    "archive-path-style",
			Usage:   "Use path-style S3 addressing",
			Sources: cli.EnvVars("ARCHIVE_PATH_STYLE"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}

	return append(flags, loggingFlags()...)
}

func engineConfig(command *cli.Command) engine.Config {
	return engine.Config{
		DatabaseURL:    command.String("database-url"),
		EventBus:       command.String("event-bus"),
		DemoMode:       command.Bool("demo-mode"),
		TickInterval:   command.Duration("tick-interval"),
		StepDelay:      command.Duration("step-delay"),
		CommandTimeout: command.Duration("command-timeout"),
		ArchiveAfter:   command.Duration("archive-after"),
		CommandDelay:   command.Duration("command-delay"),
		SuccessRate:    command.Float("success-rate"),
		Gemini: generator.GeminiConfig{
			APIKey: command.String("gemini-api-key"),
			Model:  command.String("gemini-model"),
		},
		Archive: archive.Config{
			Bucket:          command.String("archive-bucket"),
			Prefix:          command.String("archive-prefix"),
			Region:          command.String("archive-region"),
			Endpoint:        command.String("archive-endpoint"),
			AccessKeyID:     command.String("archive-access-key-id"),
			SecretAccessKey: command.String("archive-secret-access-key"),
			UsePathStyle:    command.Bool("archive-path-style"),
			Timeout:         archive.DefaultTimeout,
		},
		Tracing: command.Bool("tracing"),
	}
}

const shutdownTimeout = 10 * time.Second
