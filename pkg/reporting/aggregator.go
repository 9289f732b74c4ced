// Package reporting keeps the running counters shown on the dashboard.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule = "@every 5s"

	// Placeholder figures until real response times are measured.
	placeholderResponseTime = 1.2
	placeholderSuccessRate  = 0.95
)

// ActiveCounter reports how many workflow executions are currently tracked.
type ActiveCounter interface {
	ActiveCount() int
}

type Aggregator struct {
	counter  ActiveCounter
	emitter  eventbus.Emitter
	logger   *slog.Logger
	schedule string

	mu   sync.RWMutex
	data models.ReportingData
	cron *cron.Cron
}

func New(counter ActiveCounter, emitter eventbus.Emitter, logger *slog.Logger) *Aggregator {
	if emitter == nil {
		emitter = eventbus.Discard{}
	}

	return &Aggregator{
		counter:  counter,
		emitter:  emitter,
		logger:   logger.With("module", "reporting"),
		schedule: DefaultSchedule,
		data: models.ReportingData{
			EventsByType: make(map[models.EventType]int),
			UpdatedAt:    time.Now().UTC(),
		},
	}
}

// RecordEvent counts a published event.
func (a *Aggregator) RecordEvent(ctx context.Context, event *models.Event) {
	a.mu.Lock()
	a.data.TotalEvents++
	a.data.EventsByType[event.Type]++
	a.data.UpdatedAt = time.Now().UTC()
	snapshot := a.data.Clone()
	a.mu.Unlock()

	a.emit(ctx, snapshot)
}

// Refresh recomputes the derived figures from the simulator.
func (a *Aggregator) Refresh(ctx context.Context) {
	active := 0
	if a.counter != nil {
		active = a.counter.ActiveCount()
	}

	a.mu.Lock()
	a.data.WorkflowsTriggered = active
	a.data.AverageResponseTime = placeholderResponseTime
	a.data.SuccessRate = placeholderSuccessRate
	a.data.UpdatedAt = time.Now().UTC()
	snapshot := a.data.Clone()
	a.mu.Unlock()

	a.logger.DebugContext(ctx, "Reporting refreshed",
		"total_events", snapshot.TotalEvents,
		"active_workflows", active)

	a.emit(ctx, snapshot)
}

func (a *Aggregator) emit(ctx context.Context, data models.ReportingData) {
	a.emitter.Emit(ctx, events.ReportingUpdated{
		BaseEvent: events.NewBaseEvent(events.ReportingUpdatedEvent, "reporting"),
		Data:      data,
	})
}

// Snapshot returns a copy of the current figures.
func (a *Aggregator) Snapshot() models.ReportingData {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.data.Clone()
}

// Start schedules the periodic refresh.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(a.schedule, func() {
		a.Refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reporting refresh %q: %w", a.schedule, err)
	}

	c.Start()
	a.cron = c

	a.logger.InfoContext(ctx, "Reporting aggregator started", "schedule", a.schedule)

	return nil
}

// Stop halts the refresh job and waits for a running refresh to finish.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
}

// Attach refreshes the figures whenever an execution changes state.
func (a *Aggregator) Attach(hub *eventbus.Hub) func() {
	refresh := func(ctx context.Context, _ events.Notification) {
		a.Refresh(ctx)
	}

	unsubscribe := []func(){
		hub.Handle(events.WorkflowStartedEvent, refresh),
		hub.Handle(events.WorkflowCompletedEvent, refresh),
		hub.Handle(events.WorkflowFailedEvent, refresh),
		hub.Handle(events.WorkflowArchivedEvent, refresh),
	}

	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}
