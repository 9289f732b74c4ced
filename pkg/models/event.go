// Package models provides the core domain types for security events, workflows and executions.
package models

import (
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

type EventType string

const (
	EventMotionDetected         EventType = "motion_detected"
	EventWeaponDetected         EventType = "weapon_detected"
	EventIntrusionAlert         EventType = "intrusion_alert"
	EventPerimeterBreach        EventType = "perimeter_breach"
	EventAccessGranted          EventType = "access_granted"
	EventAccessDenied           EventType = "access_denied"
	EventBadgeScanSuccess       EventType = "badge_scan_success"
	EventBadgeScanFailed        EventType = "badge_scan_failed"
	EventDoorForced             EventType = "door_forced"
	EventMultipleFailedAttempts EventType = "multiple_failed_attempts"
	EventSuspiciousBehavior     EventType = "suspicious_behavior"
	EventCrowdDetected          EventType = "crowd_detected"
	EventFaceRecognized         EventType = "face_recognized"
	EventFaceUnknown            EventType = "face_unknown"
	EventFireAlarm              EventType = "fire_alarm"
	EventMedicalEmergency       EventType = "medical_emergency"
	EventEvacuationTriggered    EventType = "evacuation_triggered"
	EventLockdownInitiated      EventType = "lockdown_initiated"
	EventDeviceOffline          EventType = "device_offline"
	EventDeviceOnline           EventType = "device_online"
	EventWorkflowTriggered      EventType = "workflow_triggered"
	EventWorkflowCompleted      EventType = "workflow_completed"
	EventWorkflowFailed         EventType = "workflow_failed"

	// Demo script and template vocabulary.
	EventDoorUnlock         EventType = "door_unlock"
	EventDoorLock           EventType = "door_lock"
	EventFireDetected       EventType = "fire_detected"
	EventFireDrill          EventType = "fire_drill"
	EventInfantTagBreach    EventType = "infant_tag_breach"
	EventUnscheduledVisitor EventType = "unscheduled_visitor"
	EventInfo               EventType = "info"
)

type EventStatus string

const (
	EventStatusNew        EventStatus = "new"
	EventStatusProcessing EventStatus = "processing"
	EventStatusResolved   EventStatus = "resolved"
	EventStatusEscalated  EventStatus = "escalated"
)

type EventSource struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type,omitempty"`
	Location   string `json:"location,omitempty"`
	Zone       string `json:"zone,omitempty"`
	Building   string `json:"building,omitempty"`
}

type Location struct {
	Building string   `json:"building,omitempty"`
	Floor    string   `json:"floor,omitempty"`
	Zone     string   `json:"zone,omitempty"`
	Room     string   `json:"room,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

type Event struct {
	ID                 string         `json:"id"`
	Timestamp          time.Time      `json:"timestamp"`
	Type               EventType      `json:"type"`
	Severity           Severity       `json:"severity"`
	Source             EventSource    `json:"source"`
	Location           Location       `json:"location"`
	Data               map[string]any `json:"data,omitempty"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	Status             EventStatus    `json:"status"`
	TriggeredWorkflows []string       `json:"triggered_workflows"`
	VisualMetadata     VisualMetadata `json:"visual_metadata"`
}

// EventDraft is what callers hand to the dispatcher; identity, timestamp and
// visual metadata are assigned on publish.
type EventDraft struct {
	Type          EventType      `json:"type"                     validate:"required"`
	Severity      Severity       `json:"severity"                 validate:"required,oneof=low medium high critical"`
	Source        EventSource    `json:"source"`
	Location      Location       `json:"location"`
	Data          map[string]any `json:"data,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Status        EventStatus    `json:"status,omitempty"         validate:"omitempty,oneof=new processing resolved escalated"`
}

// Clone returns a deep copy so observers never share mutable state with the dispatcher.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Data = cloneMap(e.Data)

	if e.TriggeredWorkflows != nil {
		clone.TriggeredWorkflows = append([]string(nil), e.TriggeredWorkflows...)
	}

	if e.Location.X != nil {
		x := *e.Location.X
		clone.Location.X = &x
	}

	if e.Location.Y != nil {
		y := *e.Location.Y
		clone.Location.Y = &y
	}

	return &clone
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))

	for k, v := range in {
		switch val := v.(type) {
		case map[string]any:
			out[k] = cloneMap(val)
		case []any:
			out[k] = append([]any(nil), val...)
		default:
			out[k] = v
		}
	}

	return out
}
