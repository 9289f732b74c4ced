// Package simulator runs workflows step by step against simulated devices and
// reports progress as notifications.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"github.com/dukex/convergence/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultStepDelay      = 1500 * time.Millisecond
	DefaultCommandTimeout = 10 * time.Second
	DefaultArchiveAfter   = 5 * time.Second

	commandEffectDuration = 2 * time.Second
)

var (
	ErrMalformedStep    = errors.New("malformed step")
	ErrCommandTimeout   = errors.New("device command timed out")
	ErrSimulatorStopped = errors.New("simulator stopped")
)

type Config struct {
	// DemoMode inserts StepDelay between steps so progress is visible on the canvas.
	DemoMode       bool
	StepDelay      time.Duration
	CommandTimeout time.Duration
	// ArchiveAfter is how long a finished execution stays visible before it is archived.
	ArchiveAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		DemoMode:       true,
		StepDelay:      DefaultStepDelay,
		CommandTimeout: DefaultCommandTimeout,
		ArchiveAfter:   DefaultArchiveAfter,
	}
}

// Simulator owns the set of active executions. Every execution runs on its own
// goroutine; observers only ever receive snapshots.
type Simulator struct {
	cfg     Config
	devices DeviceController
	emitter eventbus.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.RWMutex
	active map[string]*models.WorkflowExecution

	wg     sync.WaitGroup
	done   chan struct{}
	base   context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func New(cfg Config, devices DeviceController, emitter eventbus.Emitter, logger *slog.Logger) *Simulator {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	if emitter == nil {
		emitter = eventbus.Discard{}
	}

	base, cancel := context.WithCancel(context.Background())

	return &Simulator{
		cfg:     cfg,
		devices: devices,
		emitter: emitter,
		logger:  logger.With("module", "simulator"),
		tracer:  otelhelper.Tracer("convergence/simulator"),
		active:  make(map[string]*models.WorkflowExecution),
		done:    make(chan struct{}),
		base:    base,
		cancel:  cancel,
	}
}

// Execute registers a new execution of workflow for the triggering event and runs
// it in the background. The returned snapshot is already in the running state.
func (s *Simulator) Execute(ctx context.Context, workflow *models.Workflow, event *models.Event) (*models.WorkflowExecution, error) {
	select {
	case <-s.done:
		return nil, ErrSimulatorStopped
	default:
	}

	now := time.Now().UTC()

	execution := &models.WorkflowExecution{
		ID:           "exec_" + uuid.New().String(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Source:       workflow.Source,
		Status:       models.ExecutionRunning,
		StartTime:    now,
		TotalSteps:   len(workflow.Steps),
		TriggerEvent: event.Clone(),
		Steps:        []models.StepExecution{},
		VisualState: models.VisualState{
			Position:  models.CanvasPosition(workflow.ID),
			Color:     models.SourceColor(workflow.Source),
			Animation: models.ExecutionAnimationRunning,
		},
	}

	s.mu.Lock()
	s.active[execution.ID] = execution
	snapshot := execution.Clone()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Workflow execution started",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"steps", execution.TotalSteps)

	s.emitter.Emit(ctx, events.WorkflowStarted{
		BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, execution.ID),
		Execution: snapshot,
	})

	steps := models.CloneSteps(workflow.Steps)
	params := template.Context(event, execution.ID, workflow.ID)
	runCtx := trace.ContextWithSpan(s.base, trace.SpanFromContext(ctx))

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.run(runCtx, execution.ID, workflow.Name, steps, params)
	}()

	return snapshot, nil
}

func (s *Simulator) run(ctx context.Context, executionID, workflowName string, steps []models.Step, params map[string]any) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "simulator.execute",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkflowNameKey, workflowName),
	)
	defer span.End()

	total := len(steps)

	for i, step := range steps {
		snapshot := s.update(executionID, func(e *models.WorkflowExecution) {
			e.CurrentStep = i
			e.Progress = float64(i) / float64(total) * 100
		})

		s.emitter.Emit(ctx, events.WorkflowStepStarted{
			BaseEvent: events.NewBaseEvent(events.WorkflowStepStartedEvent, executionID),
			Execution: snapshot,
			StepIndex: i,
			StepID:    step.ID,
		})

		stepExecution, err := s.runStep(ctx, executionID, step, params)

		snapshot = s.update(executionID, func(e *models.WorkflowExecution) {
			e.Steps = append(e.Steps, stepExecution)
		})

		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))
			s.fail(ctx, executionID, err)

			return
		}

		s.emitter.Emit(ctx, events.WorkflowStepCompleted{
			BaseEvent: events.NewBaseEvent(events.WorkflowStepCompletedEvent, executionID),
			Execution: snapshot,
			StepIndex: i,
			Step:      stepExecution,
		})

		if s.cfg.DemoMode && s.cfg.StepDelay > 0 && i < total-1 {
			err = s.sleep(ctx, s.cfg.StepDelay)
			if err != nil {
				otelhelper.SetError(span, err)
				s.fail(ctx, executionID, err)

				return
			}
		}
	}

	s.complete(ctx, executionID)
}

func (s *Simulator) runStep(ctx context.Context, executionID string, step models.Step, params map[string]any) (models.StepExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "simulator.step",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Label),
	)
	defer span.End()

	start := time.Now().UTC()

	execution := models.StepExecution{
		StepID:         step.ID,
		StepName:       step.Label,
		Status:         models.StepRunning,
		StartTime:      &start,
		DeviceCommands: []models.DeviceCommand{},
		Results:        []models.CommandResult{},
		VisualEffects:  []models.VisualEffect{},
	}

	finish := func(status models.StepStatus, err error) (models.StepExecution, error) {
		end := time.Now().UTC()
		execution.EndTime = &end
		execution.Status = status

		if err != nil {
			execution.Error = err.Error()
			otelhelper.SetError(span, err)
		}

		return execution, err
	}

	commands, err := commandsFor(step, params)
	if err != nil {
		return finish(models.StepFailed, err)
	}

	devices := make([]string, len(commands))
	for i, command := range commands {
		devices[i] = command.DeviceID
	}

	span.SetAttributes(attribute.StringSlice(otelhelper.DeviceIDKey, devices))

	for _, command := range commands {
		execution.DeviceCommands = append(execution.DeviceCommands, command)

		result, err := s.dispatch(ctx, command)
		if err != nil {
			return finish(models.StepFailed, err)
		}

		execution.Results = append(execution.Results, result)
		execution.VisualEffects = append(execution.VisualEffects, models.VisualEffect{
			Type:     "command_execution",
			Target:   command.DeviceID,
			Duration: commandEffectDuration,
			Data: map[string]any{
				"command": command.Action,
				"result":  result.Success,
			},
		})

		if !result.Success {
			s.logger.WarnContext(ctx, "Device command failed",
				"execution_id", executionID,
				"device_id", command.DeviceID,
				"action", command.Action,
				"message", result.Message)
		}

		s.emitter.Emit(ctx, events.DeviceCommandExecuted{
			BaseEvent:   events.NewBaseEvent(events.DeviceCommandExecutedEvent, executionID),
			ExecutionID: executionID,
			StepID:      step.ID,
			Command:     command,
			Result:      result,
		})
	}

	return finish(models.StepCompleted, nil)
}

// dispatch bounds a single command by the configured timeout.
func (s *Simulator) dispatch(ctx context.Context, command models.DeviceCommand) (models.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	result, err := s.devices.Execute(ctx, command)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.CommandResult{}, fmt.Errorf("%w: %s on %s after %s", ErrCommandTimeout, command.Action, command.DeviceID, s.cfg.CommandTimeout)
		}

		return models.CommandResult{}, fmt.Errorf("device command %s on %s: %w", command.Action, command.DeviceID, err)
	}

	return result, nil
}

// commandsFor derives the device commands of a step: one command per step, aimed at
// the step's device or at a synthetic device named after the action. Templated
// parameters are rendered against the trigger event.
func commandsFor(step models.Step, params map[string]any) ([]models.DeviceCommand, error) {
	if step.Action == "" {
		return nil, fmt.Errorf("%w: %s has no action", ErrMalformedStep, step.ID)
	}

	deviceID := "device_" + step.Action
	if step.Device != nil && step.Device.ID != "" {
		deviceID = step.Device.ID
	}

	parameters, err := template.RenderParameters(step.Parameters, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedStep, step.ID, err)
	}

	return []models.DeviceCommand{{
		ID:         "cmd_" + uuid.New().String(),
		DeviceID:   deviceID,
		Action:     step.Action,
		Parameters: parameters,
		Timestamp:  time.Now().UTC(),
	}}, nil
}

func (s *Simulator) complete(ctx context.Context, executionID string) {
	var duration time.Duration

	snapshot := s.update(executionID, func(e *models.WorkflowExecution) {
		end := time.Now().UTC()
		e.Status = models.ExecutionCompleted
		e.EndTime = &end
		e.Progress = 100
		e.VisualState.Animation = models.ExecutionAnimationCompleted
		duration = end.Sub(e.StartTime)
	})

	s.logger.InfoContext(ctx, "Workflow execution completed",
		"execution_id", executionID,
		"duration", duration)

	s.emitter.Emit(ctx, events.WorkflowCompleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, executionID),
		Execution: snapshot,
		Duration:  duration,
	})

	s.scheduleArchive(ctx, executionID)
}

func (s *Simulator) fail(ctx context.Context, executionID string, cause error) {
	snapshot := s.update(executionID, func(e *models.WorkflowExecution) {
		end := time.Now().UTC()
		e.Status = models.ExecutionFailed
		e.EndTime = &end
		e.Error = cause.Error()
		e.VisualState.Animation = models.ExecutionAnimationError
	})

	s.logger.ErrorContext(ctx, "Workflow execution failed",
		"execution_id", executionID,
		"error", cause)

	s.emitter.Emit(ctx, events.WorkflowFailed{
		BaseEvent: events.NewBaseEvent(events.WorkflowFailedEvent, executionID),
		Execution: snapshot,
		Error:     cause.Error(),
	})

	s.scheduleArchive(ctx, executionID)
}

func (s *Simulator) scheduleArchive(ctx context.Context, executionID string) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if s.cfg.ArchiveAfter > 0 {
			timer := time.NewTimer(s.cfg.ArchiveAfter)
			defer timer.Stop()

			select {
			case <-timer.C:
			case <-s.done:
			}
		}

		s.mu.Lock()
		execution, ok := s.active[executionID]
		delete(s.active, executionID)
		s.mu.Unlock()

		if !ok {
			return
		}

		s.logger.DebugContext(ctx, "Workflow execution archived", "execution_id", executionID)

		s.emitter.Emit(context.WithoutCancel(ctx), events.WorkflowArchived{
			BaseEvent: events.NewBaseEvent(events.WorkflowArchivedEvent, executionID),
			Execution: execution,
		})
	}()
}

// update applies fn to the live execution under the lock and returns a snapshot.
func (s *Simulator) update(executionID string, fn func(*models.WorkflowExecution)) *models.WorkflowExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution, ok := s.active[executionID]
	if !ok {
		return nil
	}

	fn(execution)

	return execution.Clone()
}

func (s *Simulator) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ErrSimulatorStopped
	case <-timer.C:
		return nil
	}
}

// Active returns snapshots of every active execution, oldest first.
func (s *Simulator) Active() []*models.WorkflowExecution {
	s.mu.RLock()
	out := make([]*models.WorkflowExecution, 0, len(s.active))

	for _, execution := range s.active {
		out = append(out, execution.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}

		return out[i].StartTime.Before(out[j].StartTime)
	})

	return out
}

func (s *Simulator) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.active)
}

// Get returns a snapshot of an active execution.
func (s *Simulator) Get(executionID string) (*models.WorkflowExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.active[executionID]
	if !ok {
		return nil, false
	}

	return execution.Clone(), true
}

// Wait blocks until every started execution has finished and been archived.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

// Close cancels running executions, archives the finished ones immediately and
// waits for every goroutine to return.
func (s *Simulator) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})

	s.wg.Wait()
}
