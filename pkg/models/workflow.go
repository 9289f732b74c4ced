package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type WorkflowSource string

const (
	WorkflowSourceTemplate    WorkflowSource = "template"
	WorkflowSourceCustom      WorkflowSource = "custom"
	WorkflowSourceAIGenerated WorkflowSource = "ai_generated"
)

type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationRejected  ValidationStatus = "rejected"
)

type Sector string

const (
	SectorEducation  Sector = "Education"
	SectorHealthcare Sector = "Healthcare"
	SectorCommercial Sector = "Commercial"
	SectorRetail     Sector = "Retail"
)

type DeviceRef struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Location     Location `json:"location"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type EscalationType string

const (
	EscalationLocal      EscalationType = "Local"
	EscalationPolice     EscalationType = "Police"
	EscalationFacilities EscalationType = "Facilities"
	EscalationFire       EscalationType = "Fire"
)

type EscalationRef struct {
	Type    EscalationType `json:"type"`
	Contact string         `json:"contact"`
}

type Step struct {
	ID         string         `json:"id"                   validate:"required"`
	Label      string         `json:"label"                validate:"required"`
	Action     string         `json:"action"`
	Device     *DeviceRef     `json:"device,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Escalation *EscalationRef `json:"escalation,omitempty"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

type Trigger struct {
	ID          string         `json:"id"                   validate:"required"`
	Source      string         `json:"source,omitempty"`
	EventType   EventType      `json:"event_type"           validate:"required"`
	Conditions  []Condition    `json:"conditions,omitempty" validate:"dive"`
	Priority    int            `json:"priority,omitempty"`
	Cooldown    time.Duration  `json:"-"`
	DeviceIDs   []string       `json:"device_ids,omitempty"`
	Zones       []string       `json:"zones,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
}

type triggerJSON struct {
	ID          string         `json:"id"`
	Source      string         `json:"source,omitempty"`
	EventType   EventType      `json:"event_type"`
	Conditions  []Condition    `json:"conditions,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Cooldown    any            `json:"cooldown,omitempty"`
	DeviceIDs   []string       `json:"device_ids,omitempty"`
	Zones       []string       `json:"zones,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
}

// MarshalJSON writes the cooldown as whole milliseconds.
func (t Trigger) MarshalJSON() ([]byte, error) {
	wire := triggerJSON{
		ID:          t.ID,
		Source:      t.Source,
		EventType:   t.EventType,
		Conditions:  t.Conditions,
		Priority:    t.Priority,
		DeviceIDs:   t.DeviceIDs,
		Zones:       t.Zones,
		Parameters:  t.Parameters,
		Description: t.Description,
	}

	if t.Cooldown > 0 {
		wire.Cooldown = t.Cooldown.Milliseconds()
	}

	return json.Marshal(wire)
}

// UnmarshalJSON reads the cooldown either as milliseconds or as a duration
// string such as "5s".
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var wire struct {
		triggerJSON

		Cooldown json.RawMessage `json:"cooldown,omitempty"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	cooldown, err := parseCooldown(wire.Cooldown)
	if err != nil {
		return fmt.Errorf("trigger %q: %w", wire.ID, err)
	}

	*t = Trigger{
		ID:          wire.ID,
		Source:      wire.Source,
		EventType:   wire.EventType,
		Conditions:  wire.Conditions,
		Priority:    wire.Priority,
		Cooldown:    cooldown,
		DeviceIDs:   wire.DeviceIDs,
		Zones:       wire.Zones,
		Parameters:  wire.Parameters,
		Description: wire.Description,
	}

	return nil
}

func parseCooldown(raw json.RawMessage) (time.Duration, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}

		if ms, err := strconv.ParseFloat(text, 64); err == nil {
			return millis(ms)
		}

		d, err := time.ParseDuration(text)
		if err != nil {
			return 0, fmt.Errorf("invalid cooldown %q: %w", text, err)
		}

		if d < 0 {
			return 0, fmt.Errorf("invalid cooldown %q: negative", text)
		}

		return d, nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return 0, fmt.Errorf("invalid cooldown %s: %w", raw, err)
	}

	return millis(ms)
}

func millis(ms float64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("invalid cooldown %vms: negative", ms)
	}

	return time.Duration(ms * float64(time.Millisecond)), nil
}

type Schedule struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Days  []string `json:"days,omitempty"`
}

type AIGenerationMetadata struct {
	OriginalPrompt   string    `json:"original_prompt"`
	GeneratedAt      time.Time `json:"generated_at"`
	Model            string    `json:"model"`
	TokensUsed       int       `json:"tokens_used"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	FinishReason     string    `json:"finish_reason,omitempty"`
	Reasoning        []string  `json:"reasoning,omitempty"`
}

type Workflow struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"                        validate:"required"`
	Description      string                `json:"description,omitempty"`
	Steps            []Step                `json:"steps"                       validate:"required,min=1,dive"`
	Triggers         []Trigger             `json:"triggers,omitempty"          validate:"dive"`
	Source           WorkflowSource        `json:"source"`
	Active           bool                  `json:"active"`
	Location         *Location             `json:"location,omitempty"`
	Schedule         *Schedule             `json:"schedule,omitempty"`
	ComplianceTags   []string              `json:"compliance_tags,omitempty"`
	AIMetadata       *AIGenerationMetadata `json:"ai_metadata,omitempty"`
	ConfidenceScore  float64               `json:"confidence_score,omitempty"`
	ValidationStatus ValidationStatus      `json:"validation_status,omitempty"`
	TemplateID       string                `json:"template_id,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

type Template struct {
	ID                 string      `json:"id"                  validate:"required"`
	Name               string      `json:"name"                validate:"required"`
	Description        string      `json:"description"`
	Sector             Sector      `json:"sector"              validate:"oneof=Education Healthcare Commercial Retail"`
	Steps              []Step      `json:"steps"               validate:"required,min=1,dive"`
	Triggers           []Trigger   `json:"triggers"            validate:"dive"`
	RecommendedDevices []DeviceRef `json:"recommended_devices"`
	ComplianceTags     []string    `json:"compliance_tags"`
}

// AsWorkflow exposes a template to trigger matching and execution under its own id.
func (t *Template) AsWorkflow() *Workflow {
	return &Workflow{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Steps:          CloneSteps(t.Steps),
		Triggers:       CloneTriggers(t.Triggers),
		Source:         WorkflowSourceTemplate,
		Active:         true,
		ComplianceTags: append([]string(nil), t.ComplianceTags...),
		TemplateID:     t.ID,
	}
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w
	clone.Steps = CloneSteps(w.Steps)
	clone.Triggers = CloneTriggers(w.Triggers)

	if w.ComplianceTags != nil {
		clone.ComplianceTags = append([]string(nil), w.ComplianceTags...)
	}

	if w.Location != nil {
		location := *w.Location
		clone.Location = &location
	}

	if w.Schedule != nil {
		schedule := *w.Schedule
		schedule.Days = append([]string(nil), w.Schedule.Days...)
		clone.Schedule = &schedule
	}

	if w.AIMetadata != nil {
		meta := *w.AIMetadata
		meta.Reasoning = append([]string(nil), w.AIMetadata.Reasoning...)
		clone.AIMetadata = &meta
	}

	return &clone
}

func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}

	out := make([]Step, len(steps))

	for i, s := range steps {
		out[i] = s
		out[i].Parameters = cloneMap(s.Parameters)

		if s.Device != nil {
			device := *s.Device
			device.Capabilities = append([]string(nil), s.Device.Capabilities...)
			out[i].Device = &device
		}

		if s.Escalation != nil {
			escalation := *s.Escalation
			out[i].Escalation = &escalation
		}
	}

	return out
}

func CloneTriggers(triggers []Trigger) []Trigger {
	if triggers == nil {
		return nil
	}

	out := make([]Trigger, len(triggers))

	for i, t := range triggers {
		out[i] = t
		out[i].Conditions = append([]Condition(nil), t.Conditions...)
		out[i].DeviceIDs = append([]string(nil), t.DeviceIDs...)
		out[i].Zones = append([]string(nil), t.Zones...)
		out[i].Parameters = cloneMap(t.Parameters)
	}

	return out
}
