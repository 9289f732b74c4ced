package models

const (
	AnimationPulse = "pulse"
	AnimationFlash = "flash"

	defaultColor = "#6b7280"
	defaultIcon  = "AlertCircle"
)

var severityColors = map[Severity]string{
	SeverityLow:      "#10b981",
	SeverityMedium:   "#f59e0b",
	SeverityHigh:     "#ef4444",
	SeverityCritical: "#dc2626",
}

var eventIcons = map[EventType]string{
	EventWeaponDetected:    "AlertTriangle",
	EventMotionDetected:    "Eye",
	EventAccessDenied:      "Lock",
	EventFireAlarm:         "Flame",
	EventLockdownInitiated: "Shield",
}

var sourceColors = map[WorkflowSource]string{
	WorkflowSourceTemplate:    "#3b82f6",
	WorkflowSourceCustom:      "#10b981",
	WorkflowSourceAIGenerated: "#8b5cf6",
}

type VisualMetadata struct {
	Color      string `json:"color"`
	Icon       string `json:"icon"`
	Animation  string `json:"animation"`
	DurationMs int    `json:"duration_ms"`
	Priority   int    `json:"priority"`
}

// VisualMetadataFor derives the display hints for an event. It is a pure function of type and severity.
func VisualMetadataFor(eventType EventType, severity Severity) VisualMetadata {
	color, ok := severityColors[severity]
	if !ok {
		color = defaultColor
	}

	icon, ok := eventIcons[eventType]
	if !ok {
		icon = defaultIcon
	}

	vm := VisualMetadata{
		Color:      color,
		Icon:       icon,
		Animation:  AnimationPulse,
		DurationMs: 3000,
		Priority:   3,
	}

	switch severity {
	case SeverityCritical:
		vm.Animation = AnimationFlash
		vm.DurationMs = 5000
		vm.Priority = 1
	case SeverityHigh:
		vm.Priority = 2
	case SeverityLow, SeverityMedium:
	}

	return vm
}

// SourceColor is the canvas colour used for executions of a workflow with the given origin.
func SourceColor(source WorkflowSource) string {
	if color, ok := sourceColors[source]; ok {
		return color
	}

	return defaultColor
}

// CanvasPosition places a workflow on the canvas from a stable hash of its id.
func CanvasPosition(id string) Position {
	var hash int32

	for _, c := range id {
		hash = hash*31 + int32(c)
	}

	return Position{
		X: 100 + float64(abs32(hash)%400),
		Y: 100 + float64(abs32(hash>>8)%300),
	}
}

func abs32(v int32) int64 {
	n := int64(v)
	if n < 0 {
		return -n
	}

	return n
}
