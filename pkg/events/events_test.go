package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/convergence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(WorkflowStartedEvent, "exec-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, WorkflowStartedEvent, base.Type)
	assert.Equal(t, "exec-1", base.Key)
	assert.False(t, base.Timestamp.IsZero())
	assert.Equal(t, "exec-1", base.GetKey())
}

func TestNew_CoversEveryKind(t *testing.T) {
	kinds := []EventType{
		EventPublishedEvent,
		EventProcessedEvent,
		WorkflowsTriggeredEvent,
		WorkflowStartedEvent,
		WorkflowStepStartedEvent,
		WorkflowStepCompletedEvent,
		WorkflowCompletedEvent,
		WorkflowFailedEvent,
		WorkflowArchivedEvent,
		DeviceCommandExecutedEvent,
		ReportingUpdatedEvent,
		DemoStartedEvent,
		DemoCompletedEvent,
	}

	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			notification, ok := New(kind)
			require.True(t, ok)
			assert.Equal(t, kind, notification.GetType())
		})
	}

	_, ok := New("unknown.kind")
	assert.False(t, ok)
}

func TestWorkflowsTriggered_DecodesFromJSON(t *testing.T) {
	original := WorkflowsTriggered{
		BaseEvent:   NewBaseEvent(WorkflowsTriggeredEvent, "evt_1"),
		Event:       &models.Event{ID: "evt_1", Type: models.EventFireAlarm},
		WorkflowIDs: []string{"tmpl-fire-safety"},
		Connections: []models.Connection{{From: "evt_1", To: "tmpl-fire-safety", Type: "trigger", Status: "active", Animated: true}},
	}

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, ok := New(WorkflowsTriggeredEvent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, decoded))

	triggered, ok := decoded.(*WorkflowsTriggered)
	require.True(t, ok)
	assert.Equal(t, original.WorkflowIDs, triggered.WorkflowIDs)
	assert.Equal(t, original.Connections, triggered.Connections)
	assert.Equal(t, "evt_1", triggered.Event.ID)
}
