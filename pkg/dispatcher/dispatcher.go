// Package dispatcher accepts security events, keeps the recent-event buffer and
// launches the workflows whose triggers match.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	RecentCapacity = 50

	defaultQueueSize = 256
)

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrStopped      = errors.New("dispatcher stopped")
)

// Executor starts a workflow execution and returns without waiting for it.
type Executor interface {
	Execute(ctx context.Context, workflow *models.Workflow, event *models.Event) (*models.WorkflowExecution, error)
}

// WorkflowCatalog lists the workflows that take part in trigger matching.
type WorkflowCatalog interface {
	Workflows() []*models.Workflow
}

// EventRecorder is told about every published event.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *models.Event)
}

type Dispatcher struct {
	catalog  WorkflowCatalog
	executor Executor
	recorder EventRecorder
	emitter  eventbus.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	now      func() time.Time

	mu        sync.RWMutex
	recent    []*models.Event
	lastFired map[string]time.Time

	queue   chan queued
	pending sync.WaitGroup

	lifecycle sync.Mutex
	running   bool
	stopped   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(catalog WorkflowCatalog, executor Executor, recorder EventRecorder, emitter eventbus.Emitter, logger *slog.Logger) *Dispatcher {
	if emitter == nil {
		emitter = eventbus.Discard{}
	}

	return &Dispatcher{
		catalog:   catalog,
		executor:  executor,
		recorder:  recorder,
		emitter:   emitter,
		logger:    logger.With("module", "dispatcher"),
		tracer:    otelhelper.Tracer("convergence/dispatcher"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
		lastFired: make(map[string]time.Time),
		queue:     make(chan queued, defaultQueueSize),
	}
}

// queued is an event waiting for matching. ready is closed once the event has
// been announced, so processing never overtakes the publish notification.
type queued struct {
	event *models.Event
	ready chan struct{}
}

// Publish validates a draft, stamps it and queues it for matching. The returned
// copy reflects the event as published; matching happens asynchronously. An event
// that cannot be queued leaves no trace in the buffer, the counters or the hub.
func (d *Dispatcher) Publish(ctx context.Context, draft models.EventDraft) (*models.Event, error) {
	err := d.validate.Struct(draft)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	d.lifecycle.Lock()
	stopped := d.stopped
	d.lifecycle.Unlock()

	if stopped {
		return nil, ErrStopped
	}

	status := draft.Status
	if status == "" {
		status = models.EventStatusNew
	}

	event := &models.Event{
		ID:                 "evt_" + uuid.New().String(),
		Timestamp:          d.now(),
		Type:               draft.Type,
		Severity:           draft.Severity,
		Source:             draft.Source,
		Location:           draft.Location,
		Data:               draft.Data,
		CorrelationID:      draft.CorrelationID,
		Status:             status,
		TriggeredWorkflows: []string{},
		VisualMetadata:     models.VisualMetadataFor(draft.Type, draft.Severity),
	}
	event = event.Clone()

	item := queued{event: event, ready: make(chan struct{})}
	if err := d.enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to queue event %s: %w", event.ID, err)
	}
	defer close(item.ready)

	d.mu.Lock()
	d.recent = append([]*models.Event{event}, d.recent...)
	if len(d.recent) > RecentCapacity {
		d.recent = d.recent[:RecentCapacity]
	}
	snapshot := event.Clone()
	d.mu.Unlock()

	d.logger.InfoContext(ctx, "Event published",
		"event_id", event.ID,
		"type", event.Type,
		"severity", event.Severity,
		"device_id", event.Source.DeviceID)

	if d.recorder != nil {
		d.recorder.RecordEvent(ctx, snapshot)
	}

	d.emitter.Emit(ctx, events.EventPublished{
		BaseEvent: events.NewBaseEvent(events.EventPublishedEvent, event.ID),
		Event:     snapshot,
	})

	return snapshot.Clone(), nil
}

// enqueue takes a free queue slot whenever one exists and only waits on ctx when
// the queue is full.
func (d *Dispatcher) enqueue(ctx context.Context, item queued) error {
	d.pending.Add(1)

	select {
	case d.queue <- item:
		return nil
	default:
	}

	select {
	case d.queue <- item:
		return nil
	case <-ctx.Done():
		d.pending.Done()

		return ctx.Err()
	}
}

// Start launches the dispatch goroutine. Events are matched one at a time in
// publish order.
func (d *Dispatcher) Start(ctx context.Context) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running || d.stopped {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.running = true

	go d.loop(ctx, d.done)

	d.logger.InfoContext(ctx, "Dispatcher started")
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-d.queue:
			<-item.ready
			d.process(ctx, item.event)
			d.pending.Done()
		}
	}
}

// Stop halts the dispatch goroutine. Events still queued are dropped.
func (d *Dispatcher) Stop() {
	d.lifecycle.Lock()
	if d.stopped {
		d.lifecycle.Unlock()

		return
	}

	d.stopped = true
	running := d.running
	d.lifecycle.Unlock()

	if running {
		d.cancel()
		<-d.done
	}

	dropped := 0

	for {
		select {
		case <-d.queue:
			dropped++

			d.pending.Done()
		default:
			if dropped > 0 {
				d.logger.Warn("Dropped queued events on stop", "count", dropped)
			}

			d.logger.Info("Dispatcher stopped")

			return
		}
	}
}

// Drain blocks until every queued event has been processed.
func (d *Dispatcher) Drain() {
	d.pending.Wait()
}

func (d *Dispatcher) process(ctx context.Context, event *models.Event) {
	d.mu.RLock()
	snapshot := event.Clone()
	d.mu.RUnlock()

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.process",
		attribute.String(otelhelper.EventIDKey, snapshot.ID),
		attribute.String(otelhelper.EventTypeKey, string(snapshot.Type)),
		attribute.String(otelhelper.SeverityKey, string(snapshot.Severity)),
	)
	defer span.End()

	d.setStatus(event, models.EventStatusProcessing, nil)

	matched := d.match(ctx, snapshot)

	var (
		triggered   []string
		connections []models.Connection
	)

	for _, workflow := range matched {
		_, err := d.executor.Execute(ctx, workflow, snapshot)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowIDKey, workflow.ID))
			d.logger.ErrorContext(ctx, "Failed to start workflow",
				"event_id", snapshot.ID,
				"workflow_id", workflow.ID,
				"error", err)

			continue
		}

		triggered = append(triggered, workflow.ID)
		connections = append(connections, models.Connection{
			From:     snapshot.ID,
			To:       workflow.ID,
			Type:     "trigger",
			Status:   "active",
			Animated: true,
		})
	}

	status := models.EventStatusResolved
	if len(triggered) > 0 {
		status = models.EventStatusEscalated
	}

	final := d.setStatus(event, status, triggered)

	if len(triggered) > 0 {
		d.logger.InfoContext(ctx, "Workflows triggered",
			"event_id", final.ID,
			"workflows", triggered)

		d.emitter.Emit(ctx, events.WorkflowsTriggered{
			BaseEvent:   events.NewBaseEvent(events.WorkflowsTriggeredEvent, final.ID),
			Event:       final,
			WorkflowIDs: triggered,
			Connections: connections,
		})
	}

	d.emitter.Emit(ctx, events.EventProcessed{
		BaseEvent: events.NewBaseEvent(events.EventProcessedEvent, final.ID),
		Event:     final.Clone(),
	})
}

func (d *Dispatcher) setStatus(event *models.Event, status models.EventStatus, triggered []string) *models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	event.Status = status
	if triggered != nil {
		event.TriggeredWorkflows = append([]string(nil), triggered...)
	}

	return event.Clone()
}

// RecentEvents returns up to limit recent events, most recent first. A limit of
// zero or less returns the whole buffer.
func (d *Dispatcher) RecentEvents(limit int) []*models.Event {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 || limit > len(d.recent) {
		limit = len(d.recent)
	}

	out := make([]*models.Event, limit)
	for i := range limit {
		out[i] = d.recent[i].Clone()
	}

	return out
}

// ClearRecent empties the recent-event buffer.
func (d *Dispatcher) ClearRecent() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent = nil
}
