package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/mocks"
	"github.com/dukex/convergence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DatabaseURL = t.TempDir()
	cfg.CommandDelay = time.Millisecond
	cfg.SuccessRate = 1
	cfg.DemoMode = false
	cfg.ArchiveAfter = 20 * time.Millisecond

	return cfg
}

func TestEngine_FireEventRunsTemplateWorkflow(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, testConfig(t), slog.Default())
	require.NoError(t, err)

	recorder := &mocks.Recorder{}
	e.Hub.Subscribe(recorder.Emit)

	require.NoError(t, e.Start(ctx))

	t.Cleanup(func() {
		assert.NoError(t, e.Close(ctx))
	})

	event, err := e.Dispatcher.Publish(ctx, models.EventDraft{
		Type:     models.EventFireDetected,
		Severity: models.SeverityCritical,
		Source:   models.EventSource{DeviceID: "smoke-1", Zone: "Cafeteria"},
	})
	require.NoError(t, err)

	require.True(t, recorder.WaitFor(events.WorkflowCompletedEvent, 1, 5*time.Second))
	require.True(t, recorder.WaitFor(events.EventProcessedEvent, 1, time.Second))

	recent := e.Dispatcher.RecentEvents(0)
	require.NotEmpty(t, recent)
	assert.Equal(t, event.ID, recent[0].ID)
	assert.Equal(t, models.EventStatusEscalated, recent[0].Status)
	assert.Contains(t, recent[0].TriggeredWorkflows, "tmpl-fire-safety")

	assert.Equal(t, 1, e.Reporting.Snapshot().TotalEvents)
	assert.NotEmpty(t, recorder.OfType(events.ReportingUpdatedEvent))

	require.True(t, recorder.WaitFor(events.WorkflowArchivedEvent, 1, 5*time.Second))
	assert.Zero(t, e.Simulator.ActiveCount())
}

func TestEngine_PersistsWorkflowsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(ctx, cfg, slog.Default())
	require.NoError(t, err)

	activated, err := first.Workflows.ActivateTemplate(ctx, "tmpl-fire-safety")
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := New(ctx, cfg, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, second.Close(ctx))
	})

	workflows := second.Workflows.Workflows()
	require.Len(t, workflows, 1)
	assert.Equal(t, activated.ID, workflows[0].ID)

	message, ok := second.HealthCheck(ctx)
	assert.True(t, ok, message)
}

func TestEngine_GochannelForwarder(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.EventBus = "gochannel"

	e, err := New(ctx, cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, e.Subscriber())
	require.NoError(t, e.Close(ctx))
}

func TestEngine_UnknownEventBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventBus = "carrier-pigeon"

	_, err := New(context.Background(), cfg, slog.Default())
	require.Error(t, err)
}

func TestEngine_TickIntervalOverridesScenarios(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.TickInterval = 10 * time.Millisecond

	e, err := New(ctx, cfg, slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, e.Close(ctx))
	})

	for _, scenario := range e.Demo.Scenarios() {
		assert.Equal(t, 10*time.Millisecond, scenario.Interval, scenario.ID)
	}
}

func TestEngine_ActivatedTemplateFiresOnce(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, testConfig(t), slog.Default())
	require.NoError(t, err)

	recorder := &mocks.Recorder{}
	e.Hub.Subscribe(recorder.Emit)

	require.NoError(t, e.Start(ctx))

	t.Cleanup(func() {
		assert.NoError(t, e.Close(ctx))
	})

	activated, err := e.Workflows.ActivateTemplate(ctx, "tmpl-fire-safety")
	require.NoError(t, err)

	alarm := models.EventDraft{
		Type:     models.EventFireAlarm,
		Severity: models.SeverityCritical,
		Source:   models.EventSource{DeviceID: "fire-panel-1", Zone: "Lobby"},
	}

	_, err = e.Dispatcher.Publish(ctx, alarm)
	require.NoError(t, err)
	e.Dispatcher.Drain()

	processed := recorder.OfType(events.EventProcessedEvent)
	require.Len(t, processed, 1)
	assert.Equal(t, []string{activated.ID}, processed[0].(events.EventProcessed).Event.TriggeredWorkflows)
	assert.Len(t, recorder.OfType(events.WorkflowStartedEvent), 1)

	_, err = e.Workflows.SetActive(ctx, activated.ID, false)
	require.NoError(t, err)

	_, err = e.Dispatcher.Publish(ctx, alarm)
	require.NoError(t, err)
	e.Dispatcher.Drain()

	processed = recorder.OfType(events.EventProcessedEvent)
	require.Len(t, processed, 2)
	assert.Empty(t, processed[1].(events.EventProcessed).Event.TriggeredWorkflows)
	assert.Equal(t, models.EventStatusResolved, processed[1].(events.EventProcessed).Event.Status)
}
