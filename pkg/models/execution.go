package models

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPaused    ExecutionStatus = "paused"
)

// Terminal reports whether no further transitions are possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type VisualState struct {
	Position  Position `json:"position"`
	Color     string   `json:"color"`
	Animation string   `json:"animation"`
}

type VisualEffect struct {
	Type      string         `json:"type"`
	Target    string         `json:"target"`
	Duration  time.Duration  `json:"duration"`
	Animation string         `json:"animation,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type DeviceCommand struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type CommandResult struct {
	CommandID string         `json:"command_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type StepExecution struct {
	StepID         string          `json:"step_id"`
	StepName       string          `json:"step_name"`
	Status         StepStatus      `json:"status"`
	StartTime      *time.Time      `json:"start_time,omitempty"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	DeviceCommands []DeviceCommand `json:"device_commands"`
	Results        []CommandResult `json:"results"`
	VisualEffects  []VisualEffect  `json:"visual_effects"`
	Error          string          `json:"error,omitempty"`
}

type WorkflowExecution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	Source       WorkflowSource  `json:"source"`
	Status       ExecutionStatus `json:"status"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	CurrentStep  int             `json:"current_step"`
	TotalSteps   int             `json:"total_steps"`
	TriggerEvent *Event          `json:"trigger_event,omitempty"`
	Steps        []StepExecution `json:"steps"`
	Progress     float64         `json:"progress"`
	VisualState  VisualState     `json:"visual_state"`
	Error        string          `json:"error,omitempty"`
}

// Clone returns a deep copy suitable for handing to observers.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}

	clone := *e
	clone.TriggerEvent = e.TriggerEvent.Clone()

	if e.EndTime != nil {
		end := *e.EndTime
		clone.EndTime = &end
	}

	clone.Steps = make([]StepExecution, len(e.Steps))
	for i, s := range e.Steps {
		clone.Steps[i] = s
		clone.Steps[i].DeviceCommands = append([]DeviceCommand(nil), s.DeviceCommands...)
		clone.Steps[i].Results = append([]CommandResult(nil), s.Results...)
		clone.Steps[i].VisualEffects = append([]VisualEffect(nil), s.VisualEffects...)
	}

	return &clone
}

// Connection links an event to the workflow it triggered on the canvas.
type Connection struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Animated bool   `json:"animated"`
}

type ReportingData struct {
	TotalEvents         int               `json:"total_events"`
	EventsByType        map[EventType]int `json:"events_by_type"`
	WorkflowsTriggered  int               `json:"workflows_triggered"`
	AverageResponseTime float64           `json:"average_response_time"`
	SuccessRate         float64           `json:"success_rate"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the reporting data.
func (r ReportingData) Clone() ReportingData {
	clone := r
	clone.EventsByType = make(map[EventType]int, len(r.EventsByType))

	for k, v := range r.EventsByType {
		clone.EventsByType[k] = v
	}

	return clone
}

const (
	ExecutionAnimationRunning   = "running"
	ExecutionAnimationCompleted = "completed"
	ExecutionAnimationError     = "error"
)
