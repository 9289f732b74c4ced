package simulator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/mocks"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testConfig() Config {
	return Config{
		CommandTimeout: time.Second,
		ArchiveAfter:   10 * time.Millisecond,
	}
}

func lockdownWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf_lockdown",
		Name:   "Lockdown",
		Source: models.WorkflowSourceCustom,
		Steps: []models.Step{
			{ID: "lock", Label: "Lock doors", Action: "Lock All Doors"},
			{ID: "alarm", Label: "Sound alarm", Action: "Activate Alarm", Device: &models.DeviceRef{ID: "siren-1", Type: "alarm"}},
			{ID: "notify", Label: "Notify police", Action: "Notify Police"},
		},
	}
}

func triggerEvent() *models.Event {
	return &models.Event{ID: "evt_1", Type: models.EventWeaponDetected, Severity: models.SeverityCritical}
}

func TestSimulator_CompletesWorkflow(t *testing.T) {
	recorder := &mocks.Recorder{}
	sim := New(testConfig(), NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	started, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)

	assert.Contains(t, started.ID, "exec_")
	assert.Equal(t, models.ExecutionRunning, started.Status)
	assert.Equal(t, 3, started.TotalSteps)
	assert.Equal(t, models.ExecutionAnimationRunning, started.VisualState.Animation)
	assert.Equal(t, "evt_1", started.TriggerEvent.ID)

	sim.Wait()

	assert.Equal(t, []events.EventType{
		events.WorkflowStartedEvent,
		events.WorkflowStepStartedEvent, events.DeviceCommandExecutedEvent, events.WorkflowStepCompletedEvent,
		events.WorkflowStepStartedEvent, events.DeviceCommandExecutedEvent, events.WorkflowStepCompletedEvent,
		events.WorkflowStepStartedEvent, events.DeviceCommandExecutedEvent, events.WorkflowStepCompletedEvent,
		events.WorkflowCompletedEvent,
		events.WorkflowArchivedEvent,
	}, recorder.Types())

	var progress []float64
	for _, n := range recorder.OfType(events.WorkflowStepStartedEvent) {
		step := n.(events.WorkflowStepStarted)
		progress = append(progress, step.Execution.Progress)
		assert.Less(t, step.Execution.Progress, 100.0)
	}

	require.Len(t, progress, 3)
	assert.InDelta(t, 0, progress[0], 0.01)
	assert.InDelta(t, 33.33, progress[1], 0.01)
	assert.InDelta(t, 66.67, progress[2], 0.01)

	completed := recorder.OfType(events.WorkflowCompletedEvent)[0].(events.WorkflowCompleted)
	assert.Equal(t, models.ExecutionCompleted, completed.Execution.Status)
	assert.InDelta(t, 100, completed.Execution.Progress, 0.001)
	assert.Equal(t, models.ExecutionAnimationCompleted, completed.Execution.VisualState.Animation)
	require.NotNil(t, completed.Execution.EndTime)
	require.Len(t, completed.Execution.Steps, 3)

	for i, id := range []string{"lock", "alarm", "notify"} {
		assert.Equal(t, id, completed.Execution.Steps[i].StepID)
		assert.Equal(t, models.StepCompleted, completed.Execution.Steps[i].Status)
	}

	assert.Equal(t, 0, sim.ActiveCount())
}

func TestSimulator_CommandTargets(t *testing.T) {
	recorder := &mocks.Recorder{}
	sim := New(testConfig(), NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	commands := recorder.OfType(events.DeviceCommandExecutedEvent)
	require.Len(t, commands, 3)

	first := commands[0].(events.DeviceCommandExecuted)
	assert.Equal(t, "device_Lock All Doors", first.Command.DeviceID)
	assert.Equal(t, "Lock All Doors executed successfully", first.Result.Message)
	assert.Equal(t, first.Command.ID, first.Result.CommandID)

	second := commands[1].(events.DeviceCommandExecuted)
	assert.Equal(t, "siren-1", second.Command.DeviceID)
	assert.Equal(t, "alarm", second.StepID)

	completed := recorder.OfType(events.WorkflowCompletedEvent)[0].(events.WorkflowCompleted)
	effect := completed.Execution.Steps[1].VisualEffects[0]
	assert.Equal(t, "command_execution", effect.Type)
	assert.Equal(t, "siren-1", effect.Target)
	assert.Equal(t, 2*time.Second, effect.Duration)
	assert.Equal(t, true, effect.Data["result"])
}

func TestSimulator_FailedCommandsDoNotFailWorkflow(t *testing.T) {
	recorder := &mocks.Recorder{}
	sim := New(testConfig(), NewSimulatedDevices(0, 0, nil), recorder, slog.Default())

	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	require.Len(t, recorder.OfType(events.WorkflowCompletedEvent), 1)
	assert.Empty(t, recorder.OfType(events.WorkflowFailedEvent))

	completed := recorder.OfType(events.WorkflowCompletedEvent)[0].(events.WorkflowCompleted)
	for _, step := range completed.Execution.Steps {
		require.Len(t, step.Results, 1)
		assert.False(t, step.Results[0].Success)
		assert.Contains(t, step.Results[0].Message, "failed")
	}
}

func TestSimulator_MalformedStepFailsWorkflow(t *testing.T) {
	recorder := &mocks.Recorder{}
	sim := New(testConfig(), NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	workflow := lockdownWorkflow()
	workflow.Steps[1].Action = ""

	_, err := sim.Execute(context.Background(), workflow, triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	assert.Empty(t, recorder.OfType(events.WorkflowCompletedEvent))
	require.Len(t, recorder.OfType(events.WorkflowFailedEvent), 1)

	failed := recorder.OfType(events.WorkflowFailedEvent)[0].(events.WorkflowFailed)
	assert.Contains(t, failed.Error, "has no action")
	assert.Equal(t, models.ExecutionFailed, failed.Execution.Status)
	assert.Equal(t, models.ExecutionAnimationError, failed.Execution.VisualState.Animation)
	assert.Less(t, failed.Execution.Progress, 100.0)

	require.Len(t, failed.Execution.Steps, 2)
	assert.Equal(t, models.StepCompleted, failed.Execution.Steps[0].Status)
	assert.Equal(t, models.StepFailed, failed.Execution.Steps[1].Status)

	assert.Len(t, recorder.OfType(events.WorkflowArchivedEvent), 1)
}

func TestSimulator_CommandTimeoutFailsWorkflow(t *testing.T) {
	devices := &mocks.MockDeviceController{}
	devices.On("Execute", mock.Anything, mock.Anything).
		Return(models.CommandResult{}, context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		})

	cfg := testConfig()
	cfg.CommandTimeout = 20 * time.Millisecond

	recorder := &mocks.Recorder{}
	sim := New(cfg, devices, recorder, slog.Default())

	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	require.Len(t, recorder.OfType(events.WorkflowFailedEvent), 1)

	failed := recorder.OfType(events.WorkflowFailedEvent)[0].(events.WorkflowFailed)
	assert.Contains(t, failed.Error, "device command timed out")
	require.Len(t, failed.Execution.Steps, 1)
	assert.Len(t, failed.Execution.Steps[0].DeviceCommands, 1)
	assert.Empty(t, failed.Execution.Steps[0].Results)

	devices.AssertNumberOfCalls(t, "Execute", 1)
}

func TestSimulator_StaysActiveUntilArchived(t *testing.T) {
	cfg := testConfig()
	cfg.ArchiveAfter = 300 * time.Millisecond

	recorder := &mocks.Recorder{}
	sim := New(cfg, NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	started, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)

	require.True(t, recorder.WaitFor(events.WorkflowCompletedEvent, 1, time.Second))

	execution, ok := sim.Get(started.ID)
	require.True(t, ok)
	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Len(t, sim.Active(), 1)

	sim.Wait()

	_, ok = sim.Get(started.ID)
	assert.False(t, ok)
	assert.Empty(t, sim.Active())
}

func TestSimulator_DemoModeDelaysSteps(t *testing.T) {
	cfg := testConfig()
	cfg.DemoMode = true
	cfg.StepDelay = 30 * time.Millisecond

	sim := New(cfg, NewSimulatedDevices(0, 1, nil), &mocks.Recorder{}, slog.Default())

	start := time.Now()
	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestSimulator_CloseCancelsRunningExecutions(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 10 * time.Second
	cfg.ArchiveAfter = time.Hour

	recorder := &mocks.Recorder{}
	sim := New(cfg, NewSimulatedDevices(time.Hour, 1, nil), recorder, slog.Default())

	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)

	sim.Close()

	require.Len(t, recorder.OfType(events.WorkflowFailedEvent), 1)
	assert.Len(t, recorder.OfType(events.WorkflowArchivedEvent), 1)
	assert.Equal(t, 0, sim.ActiveCount())

	_, err = sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.ErrorIs(t, err, ErrSimulatorStopped)
}

func TestSimulatedDevices_Deterministic(t *testing.T) {
	devices := NewSimulatedDevices(0, 0.5, rand.New(rand.NewPCG(1, 2)))
	command := models.DeviceCommand{ID: "cmd_1", DeviceID: "door-1", Action: "Lock"}

	successes := 0

	for range 200 {
		result, err := devices.Execute(context.Background(), command)
		require.NoError(t, err)

		if result.Success {
			successes++
		}
	}

	assert.Greater(t, successes, 50)
	assert.Less(t, successes, 150)
}

func TestSimulatedDevices_HonoursContext(t *testing.T) {
	devices := NewSimulatedDevices(time.Hour, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := devices.Execute(ctx, models.DeviceCommand{Action: "Lock"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_RendersStepParameters(t *testing.T) {
	recorder := &mocks.Recorder{}
	sim := New(testConfig(), NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	workflow := &models.Workflow{
		ID:   "wf_zone_lock",
		Name: "Zone lock",
		Steps: []models.Step{{
			ID:     "lock",
			Label:  "Lock zone",
			Action: "Lock Zone",
			Parameters: map[string]any{
				"zone":   "{{ .event.source.zone }}",
				"reason": "{{ .event.type }} on {{ .event.source.device_id }}",
				"force":  true,
			},
		}},
	}

	event := triggerEvent()
	event.Source = models.EventSource{DeviceID: "cam-3", Zone: "Library"}

	_, err := sim.Execute(context.Background(), workflow, event)
	require.NoError(t, err)
	sim.Wait()

	commands := recorder.OfType(events.DeviceCommandExecutedEvent)
	require.Len(t, commands, 1)

	params := commands[0].(events.DeviceCommandExecuted).Command.Parameters
	assert.Equal(t, "Library", params["zone"])
	assert.Equal(t, "weapon_detected on cam-3", params["reason"])
	assert.Equal(t, true, params["force"])

	workflow.Steps[0].Parameters = map[string]any{"zone": "{{ .event.source.zone "}

	recorder = &mocks.Recorder{}
	sim = New(testConfig(), NewSimulatedDevices(0, 1, nil), recorder, slog.Default())

	_, err = sim.Execute(context.Background(), workflow, event)
	require.NoError(t, err)
	sim.Wait()

	failed := recorder.OfType(events.WorkflowFailedEvent)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].(events.WorkflowFailed).Error, "malformed step")
}

func TestSimulator_StepSpansCarryDevices(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	sim := New(testConfig(), NewSimulatedDevices(0, 1, nil), nil, slog.Default())
	sim.tracer = provider.Tracer("test")

	_, err := sim.Execute(context.Background(), lockdownWorkflow(), triggerEvent())
	require.NoError(t, err)
	sim.Wait()

	devices := map[string][]string{}

	for _, span := range spans.Ended() {
		if span.Name() != "simulator.step" {
			continue
		}

		var step string

		var targets []string

		for _, kv := range span.Attributes() {
			switch string(kv.Key) {
			case otelhelper.StepIDKey:
				step = kv.Value.AsString()
			case otelhelper.DeviceIDKey:
				targets = kv.Value.AsStringSlice()
			}
		}

		devices[step] = targets
	}

	assert.Equal(t, map[string][]string{
		"lock":   {"device_Lock All Doors"},
		"alarm":  {"siren-1"},
		"notify": {"device_Notify Police"},
	}, devices)
}
