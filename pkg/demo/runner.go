// Package demo replays scripted event sequences through the dispatcher.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is the part of the dispatcher the runner drives.
type Publisher interface {
	Publish(ctx context.Context, draft models.EventDraft) (*models.Event, error)
	ClearRecent()
}

type Status struct {
	Running    bool            `json:"running"`
	ScenarioID string          `json:"scenario_id,omitempty"`
	Cursor     int             `json:"cursor"`
	Total      int             `json:"total"`
	Progress   float64         `json:"progress"`
	Events     []*models.Event `json:"events"`
}

type run struct {
	scenario  Scenario
	cursor    int
	running   bool
	displayed []*models.Event
	cancel    context.CancelFunc
	done      chan struct{}
}

// Runner owns the cursor of one scripted replay at a time.
type Runner struct {
	publisher Publisher
	emitter   eventbus.Emitter
	logger    *slog.Logger
	tracer    trace.Tracer
	scenarios []Scenario

	mu      sync.Mutex
	current *run
}

func NewRunner(scenarios []Scenario, publisher Publisher, emitter eventbus.Emitter, logger *slog.Logger) *Runner {
	if emitter == nil {
		emitter = eventbus.Discard{}
	}

	return &Runner{
		publisher: publisher,
		emitter:   emitter,
		logger:    logger.With("module", "demo"),
		tracer:    otelhelper.Tracer("convergence/demo"),
		scenarios: scenarios,
	}
}

// Scenarios lists the scenarios the runner can replay.
func (r *Runner) Scenarios() []Scenario {
	return append([]Scenario(nil), r.scenarios...)
}

func (r *Runner) scenario(id string) (Scenario, bool) {
	for _, s := range r.scenarios {
		if s.ID == id {
			return s, true
		}
	}

	return Scenario{}, false
}

// Start replays a scenario from its first step, replacing any replay in progress.
func (r *Runner) Start(ctx context.Context, scenarioID string) error {
	scenario, ok := r.scenario(scenarioID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioID)
	}

	r.Stop()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	current := &run{
		scenario:  scenario,
		running:   true,
		displayed: []*models.Event{},
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.current = current
	r.mu.Unlock()

	r.publisher.ClearRecent()

	r.logger.InfoContext(ctx, "Demo scenario started",
		"scenario_id", scenario.ID,
		"steps", len(scenario.Steps),
		"interval", scenario.Interval)

	r.emitter.Emit(ctx, events.DemoStarted{
		BaseEvent:    events.NewBaseEvent(events.DemoStartedEvent, scenario.ID),
		ScenarioID:   scenario.ID,
		ScenarioName: scenario.Name,
		TotalSteps:   len(scenario.Steps),
	})

	go r.loop(runCtx, current)

	return nil
}

func (r *Runner) loop(ctx context.Context, current *run) {
	defer close(current.done)

	interval := current.scenario.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if current.scenario.Immediate && r.tick(ctx, current) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.tick(ctx, current) {
				return
			}
		}
	}
}

// tick publishes the next step and reports whether the replay has finished.
func (r *Runner) tick(ctx context.Context, current *run) bool {
	r.mu.Lock()
	if !current.running {
		r.mu.Unlock()

		return true
	}

	steps := current.scenario.Steps
	if current.cursor >= len(steps) {
		current.running = false
		r.mu.Unlock()

		r.complete(ctx, current)

		return true
	}

	step := steps[current.cursor]
	current.cursor++
	position := current.cursor
	r.mu.Unlock()

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "demo.tick",
		attribute.String(otelhelper.ScenarioIDKey, current.scenario.ID),
		attribute.Int("convergence.demo.cursor", position),
	)
	defer span.End()

	event, err := r.publisher.Publish(ctx, step.Draft(current.scenario))
	if err != nil {
		otelhelper.SetError(span, err)
		r.logger.ErrorContext(ctx, "Failed to publish demo event",
			"scenario_id", current.scenario.ID,
			"type", step.Type,
			"error", err)
	} else {
		r.mu.Lock()
		current.displayed = append([]*models.Event{event}, current.displayed...)
		r.mu.Unlock()
	}

	return false
}

func (r *Runner) complete(ctx context.Context, current *run) {
	r.logger.InfoContext(ctx, "Demo scenario completed", "scenario_id", current.scenario.ID)

	r.emitter.Emit(ctx, events.DemoCompleted{
		BaseEvent:  events.NewBaseEvent(events.DemoCompletedEvent, current.scenario.ID),
		ScenarioID: current.scenario.ID,
		Progress:   100,
	})
}

// Stop halts the replay before its next tick. Events already published and their
// executions are unaffected.
func (r *Runner) Stop() {
	r.mu.Lock()
	current := r.current
	if current != nil {
		current.running = false
	}
	r.mu.Unlock()

	if current == nil {
		return
	}

	current.cancel()
	<-current.done
}

// Wait blocks until the current replay finishes or is stopped.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()

	if current == nil {
		return nil
	}

	select {
	case <-current.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return Status{Events: []*models.Event{}}
	}

	current := r.current
	total := len(current.scenario.Steps)

	status := Status{
		Running:    current.running,
		ScenarioID: current.scenario.ID,
		Cursor:     current.cursor,
		Total:      total,
		Events:     make([]*models.Event, len(current.displayed)),
	}

	if total > 0 {
		status.Progress = float64(current.cursor) / float64(total) * 100
	}

	for i, event := range current.displayed {
		status.Events[i] = event.Clone()
	}

	return status
}
