// Package events defines the notifications emitted while events are dispatched and workflows execute.
package events

import (
	"time"

	"github.com/dukex/convergence/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is where forwarded notifications are published.
const Topic = "convergence.notifications"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatcher.
	EventPublishedEvent     EventType = "event.published"
	EventProcessedEvent     EventType = "event.processed"
	WorkflowsTriggeredEvent EventType = "workflows.triggered"

	// Execution lifecycle.
	WorkflowStartedEvent       EventType = "workflow.started"
	WorkflowStepStartedEvent   EventType = "workflow.step.started"
	WorkflowStepCompletedEvent EventType = "workflow.step.completed"
	WorkflowCompletedEvent     EventType = "workflow.completed"
	WorkflowFailedEvent        EventType = "workflow.failed"
	WorkflowArchivedEvent      EventType = "workflow.archived"
	DeviceCommandExecutedEvent EventType = "device.command.executed"

	// Reporting and demo.
	ReportingUpdatedEvent EventType = "reporting.updated"
	DemoStartedEvent      EventType = "demo.started"
	DemoCompletedEvent    EventType = "demo.completed"
)

// Notification is implemented by every notification payload.
type Notification interface {
	GetType() EventType
	GetKey() string
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key,omitempty"`
}

func NewBaseEvent(eventType EventType, key string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Key:       key,
	}
}

func (b BaseEvent) GetKey() string {
	return b.Key
}

type EventPublished struct {
	BaseEvent

	Event *models.Event `json:"event"`
}

func (e EventPublished) GetType() EventType {
	return EventPublishedEvent
}

type EventProcessed struct {
	BaseEvent

	Event *models.Event `json:"event"`
}

func (e EventProcessed) GetType() EventType {
	return EventProcessedEvent
}

type WorkflowsTriggered struct {
	BaseEvent

	Event       *models.Event       `json:"event"`
	WorkflowIDs []string            `json:"workflow_ids"`
	Connections []models.Connection `json:"connections"`
}

func (e WorkflowsTriggered) GetType() EventType {
	return WorkflowsTriggeredEvent
}

type WorkflowStarted struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type WorkflowStepStarted struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
	StepIndex int                       `json:"step_index"`
	StepID    string                    `json:"step_id"`
}

func (e WorkflowStepStarted) GetType() EventType {
	return WorkflowStepStartedEvent
}

type WorkflowStepCompleted struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
	StepIndex int                       `json:"step_index"`
	Step      models.StepExecution      `json:"step"`
}

func (e WorkflowStepCompleted) GetType() EventType {
	return WorkflowStepCompletedEvent
}

type WorkflowCompleted struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
	Duration  time.Duration             `json:"duration"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type WorkflowFailed struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
	Error     string                    `json:"error"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

type WorkflowArchived struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
}

func (e WorkflowArchived) GetType() EventType {
	return WorkflowArchivedEvent
}

type DeviceCommandExecuted struct {
	BaseEvent

	ExecutionID string               `json:"execution_id"`
	StepID      string               `json:"step_id"`
	Command     models.DeviceCommand `json:"command"`
	Result      models.CommandResult `json:"result"`
}

func (e DeviceCommandExecuted) GetType() EventType {
	return DeviceCommandExecutedEvent
}

type ReportingUpdated struct {
	BaseEvent

	Data models.ReportingData `json:"data"`
}

func (e ReportingUpdated) GetType() EventType {
	return ReportingUpdatedEvent
}

type DemoStarted struct {
	BaseEvent

	ScenarioID   string `json:"scenario_id"`
	ScenarioName string `json:"scenario_name"`
	TotalSteps   int    `json:"total_steps"`
}

func (e DemoStarted) GetType() EventType {
	return DemoStartedEvent
}

type DemoCompleted struct {
	BaseEvent

	ScenarioID string  `json:"scenario_id"`
	Progress   float64 `json:"progress"`
}

func (e DemoCompleted) GetType() EventType {
	return DemoCompletedEvent
}

// New returns an empty notification of the given kind, used when decoding forwarded messages.
func New(eventType EventType) (Notification, bool) {
	switch eventType {
	case EventPublishedEvent:
		return &EventPublished{}, true
	case EventProcessedEvent:
		return &EventProcessed{}, true
	case WorkflowsTriggeredEvent:
		return &WorkflowsTriggered{}, true
	case WorkflowStartedEvent:
		return &WorkflowStarted{}, true
	case WorkflowStepStartedEvent:
		return &WorkflowStepStarted{}, true
	case WorkflowStepCompletedEvent:
		return &WorkflowStepCompleted{}, true
	case WorkflowCompletedEvent:
		return &WorkflowCompleted{}, true
	case WorkflowFailedEvent:
		return &WorkflowFailed{}, true
	case WorkflowArchivedEvent:
		return &WorkflowArchived{}, true
	case DeviceCommandExecutedEvent:
		return &DeviceCommandExecuted{}, true
	case ReportingUpdatedEvent:
		return &ReportingUpdated{}, true
	case DemoStartedEvent:
		return &DemoStarted{}, true
	case DemoCompletedEvent:
		return &DemoCompleted{}, true
	default:
		return nil, false
	}
}
