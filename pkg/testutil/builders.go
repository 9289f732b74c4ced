// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"strconv"
	"time"

	"github.com/dukex/convergence/pkg/models"
	"github.com/google/uuid"
)

// CreateTestEvent creates a processed-ready Event with default values that can be overridden.
func CreateTestEvent(overrides ...func(*models.Event)) *models.Event {
	event := &models.Event{
		ID:        "evt_" + uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      models.EventFireAlarm,
		Severity:  models.SeverityHigh,
		Source: models.EventSource{
			DeviceID: "sensor-1",
			Zone:     "North",
		},
		Data:               map[string]any{},
		Status:             models.EventStatusNew,
		TriggeredWorkflows: []string{},
	}

	for _, override := range overrides {
		override(event)
	}

	return event
}

func WithEventType(eventType models.EventType) func(*models.Event) {
	return func(e *models.Event) {
		e.Type = eventType
	}
}

func WithSource(deviceID, zone string) func(*models.Event) {
	return func(e *models.Event) {
		e.Source.DeviceID = deviceID
		e.Source.Zone = zone
	}
}

func WithData(key string, value any) func(*models.Event) {
	return func(e *models.Event) {
		e.Data[key] = value
	}
}

// CreateTestWorkflow creates an active custom workflow with one step and no triggers.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:     "wf_" + uuid.New().String(),
		Name:   "Test Workflow",
		Source: models.WorkflowSourceCustom,
		Active: true,
		Steps: []models.Step{
			{ID: "step-1", Label: "Log", Action: "Log Event"},
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithSteps replaces the steps with one step per action.
func WithSteps(actions ...string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Steps = make([]models.Step, len(actions))

		for i, action := range actions {
			w.Steps[i] = models.Step{
				ID:     "step-" + strconv.Itoa(i+1),
				Label:  action,
				Action: action,
			}
		}
	}
}

// WithTrigger appends a trigger for eventType, adjusted by the given options.
func WithTrigger(eventType models.EventType, options ...func(*models.Trigger)) func(*models.Workflow) {
	return func(w *models.Workflow) {
		trigger := models.Trigger{
			ID:        string(eventType) + "-trigger",
			EventType: eventType,
		}

		for _, option := range options {
			option(&trigger)
		}

		w.Triggers = append(w.Triggers, trigger)
	}
}

func WithDevices(deviceIDs ...string) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.DeviceIDs = deviceIDs
	}
}

func WithZones(zones ...string) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Zones = zones
	}
}

func WithCondition(field string, operator models.ConditionOperator, value any) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Conditions = append(t.Conditions, models.Condition{Field: field, Operator: operator, Value: value})
	}
}

func WithCooldown(cooldown time.Duration) func(*models.Trigger) {
	return func(t *models.Trigger) {
		t.Cooldown = cooldown
	}
}
