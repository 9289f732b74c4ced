// Package engine assembles the dispatcher, simulator, demo runner and their
// supporting infrastructure into one running system.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/convergence/pkg/archive"
	"github.com/dukex/convergence/pkg/catalog"
	"github.com/dukex/convergence/pkg/cmd"
	"github.com/dukex/convergence/pkg/demo"
	"github.com/dukex/convergence/pkg/dispatcher"
	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/generator"
	"github.com/dukex/convergence/pkg/otelhelper"
	"github.com/dukex/convergence/pkg/persistence"
	"github.com/dukex/convergence/pkg/reporting"
	"github.com/dukex/convergence/pkg/services"
	"github.com/dukex/convergence/pkg/simulator"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "convergence"

type Config struct {
	DatabaseURL string
	EventBus    string

	DemoMode       bool
	TickInterval   time.Duration
	StepDelay      time.Duration
	CommandTimeout time.Duration
	ArchiveAfter   time.Duration

	CommandDelay time.Duration
	SuccessRate  float64

	Gemini  generator.GeminiConfig
	Archive archive.Config

	Tracing bool
}

// DefaultConfig keeps everything in process with an in-memory store.
func DefaultConfig() Config {
	sim := simulator.DefaultConfig()

	return Config{
		DatabaseURL:    "memory://",
		EventBus:       "none",
		DemoMode:       sim.DemoMode,
		StepDelay:      sim.StepDelay,
		CommandTimeout: sim.CommandTimeout,
		ArchiveAfter:   sim.ArchiveAfter,
		CommandDelay:   simulator.DefaultCommandDelay,
		SuccessRate:    simulator.DefaultSuccessRate,
	}
}

func (c Config) simulator() simulator.Config {
	cfg := simulator.DefaultConfig()
	cfg.DemoMode = c.DemoMode

	if c.StepDelay > 0 {
		cfg.StepDelay = c.StepDelay
	}

	if c.CommandTimeout > 0 {
		cfg.CommandTimeout = c.CommandTimeout
	}

	if c.ArchiveAfter > 0 {
		cfg.ArchiveAfter = c.ArchiveAfter
	}

	return cfg
}

type Engine struct {
	Hub        *eventbus.Hub
	Workflows  *services.Workflow
	Simulator  *simulator.Simulator
	Dispatcher *dispatcher.Dispatcher
	Reporting  *reporting.Aggregator
	Demo       *demo.Runner
	Generator  *generator.Gemini

	store          persistence.BlobStore
	forwarder      *eventbus.WatermillForwarder
	subscriber     message.Subscriber
	tracerProvider *sdktrace.TracerProvider
	detach         []func()
	logger         *slog.Logger
}

// New builds every component. Nothing runs until Start.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		Hub:    eventbus.NewHub(logger),
		logger: logger.With("module", "engine"),
	}

	if cfg.Tracing {
		tp, err := otelhelper.NewTracerProvider(ctx, ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		e.tracerProvider = tp
	}

	publisher, subscriber, err := cmd.NewChannel(cfg.EventBus, logger)
	if err != nil {
		return nil, errors.Join(err, e.Close(ctx))
	}

	if publisher != nil {
		e.forwarder = eventbus.NewWatermillForwarder(publisher, logger)
		e.subscriber = subscriber
		e.detach = append(e.detach, e.forwarder.Attach(e.Hub))
	}

	e.store, err = cmd.NewBlobStore(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Join(err, e.Close(ctx))
	}

	e.Workflows = services.NewWorkflow(e.store, logger)
	e.Workflows.Load(ctx)

	devices := simulator.NewSimulatedDevices(cfg.CommandDelay, cfg.SuccessRate, nil)
	e.Simulator = simulator.New(cfg.simulator(), devices, e.Hub, logger)

	e.Reporting = reporting.New(e.Simulator, e.Hub, logger)
	e.detach = append(e.detach, e.Reporting.Attach(e.Hub))

	e.Dispatcher = dispatcher.New(catalog.Matchable{Saved: e.Workflows}, e.Simulator, e.Reporting, e.Hub, logger)

	scenarios := demo.BuiltinScenarios()
	if cfg.TickInterval > 0 {
		for i := range scenarios {
			scenarios[i].Interval = cfg.TickInterval
		}
	}

	e.Demo = demo.NewRunner(scenarios, e.Dispatcher, e.Hub, logger)

	e.Generator, err = generator.NewGemini(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, errors.Join(err, e.Close(ctx))
	}

	if !e.Generator.Configured() {
		e.logger.WarnContext(ctx, "Gemini API key not set, workflow generation is disabled")
	}

	if cfg.Archive.Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			return nil, errors.Join(err, e.Close(ctx))
		}

		sink, err := archive.NewSink(client, cfg.Archive, logger)
		if err != nil {
			return nil, errors.Join(err, e.Close(ctx))
		}

		e.detach = append(e.detach, sink.Attach(e.Hub))
	}

	return e, nil
}

// Subscriber is the broker side of the notification forwarder, nil when
// notifications stay in process.
func (e *Engine) Subscriber() message.Subscriber {
	return e.subscriber
}

// Start launches the dispatch loop and the reporting job.
func (e *Engine) Start(ctx context.Context) error {
	e.Dispatcher.Start(ctx)

	err := e.Reporting.Start(ctx)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Engine started")

	return nil
}

// HealthCheck reports the state of the blob store.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	return e.Workflows.HealthCheck(ctx)
}

// Close stops the running components in reverse dependency order, then
// releases the store, the broker and the tracer.
func (e *Engine) Close(ctx context.Context) error {
	if e.Demo != nil {
		e.Demo.Stop()
	}

	if e.Dispatcher != nil {
		e.Dispatcher.Stop()
	}

	if e.Simulator != nil {
		e.Simulator.Close()
	}

	if e.Reporting != nil {
		e.Reporting.Stop()
	}

	for _, fn := range e.detach {
		fn()
	}

	e.detach = nil

	var errs []error

	if e.store != nil {
		err := e.store.Close(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close blob store: %w", err))
		}
	}

	if e.forwarder != nil {
		err := e.forwarder.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
		}
	}

	if e.subscriber != nil {
		err := e.subscriber.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus subscriber: %w", err))
		}
	}

	if e.tracerProvider != nil {
		err := e.tracerProvider.Shutdown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}

	return errors.Join(errs...)
}
