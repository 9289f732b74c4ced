package demo

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/convergence/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval   = 2500 * time.Millisecond
	defaultConfidence = 0.95
	scriptDeviceID    = "demo-script"
)

//go:embed scenarios.yaml
var builtinScenarios []byte

var ErrScenarioNotFound = errors.New("demo scenario not found")

type Scenario struct {
	ID          string        `yaml:"id"          json:"id"`
	Name        string        `yaml:"name"        json:"name"`
	Description string        `yaml:"description" json:"description"`
	Interval    time.Duration `yaml:"interval"    json:"interval"`
	// Immediate publishes the first step at start instead of after one interval.
	Immediate bool   `yaml:"immediate" json:"immediate"`
	Zone      string `yaml:"zone"      json:"zone,omitempty"`
	Building  string `yaml:"building"  json:"building,omitempty"`
	Steps     []Step `yaml:"steps"     json:"steps"`
}

// Step is one scripted event. In YAML it is either a plain message or a mapping.
type Step struct {
	Message    string           `yaml:"message"     json:"message,omitempty"`
	Type       models.EventType `yaml:"type"        json:"type"`
	Severity   models.Severity  `yaml:"severity"    json:"severity"`
	DeviceID   string           `yaml:"device_id"   json:"device_id,omitempty"`
	DeviceType string           `yaml:"device_type" json:"device_type,omitempty"`
	Location   string           `yaml:"location"    json:"location,omitempty"`
	Sensor     string           `yaml:"sensor"      json:"sensor,omitempty"`
	Confidence float64          `yaml:"confidence"  json:"confidence,omitempty"`
	Workflow   string           `yaml:"workflow"    json:"workflow,omitempty"`
}

func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = Step{Message: value.Value, Type: models.EventInfo, Severity: models.SeverityLow}

		return nil
	}

	type plain Step

	var decoded plain

	err := value.Decode(&decoded)
	if err != nil {
		return err
	}

	*s = Step(decoded)

	if s.Type == "" {
		s.Type = models.EventInfo
	}

	if s.Severity == "" {
		s.Severity = models.SeverityLow
	}

	return nil
}

// informational reports whether the step is a plain scripted message.
func (s Step) informational() bool {
	return s.Type == models.EventInfo && s.DeviceID == ""
}

// Draft turns a step into the event handed to the dispatcher.
func (s Step) Draft(scenario Scenario) models.EventDraft {
	data := map[string]any{
		"demo":     true,
		"scenario": scenario.ID,
	}

	if s.Message != "" {
		data["message"] = s.Message
	}

	if s.informational() {
		return models.EventDraft{
			Type:     s.Type,
			Severity: s.Severity,
			Source: models.EventSource{
				DeviceID: scriptDeviceID,
				Zone:     scenario.Zone,
				Building: scenario.Building,
			},
			Location: models.Location{Building: scenario.Building, Zone: scenario.Zone},
			Data:     data,
		}
	}

	confidence := s.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	data["confidence"] = confidence

	if s.Sensor != "" {
		data["sensor"] = s.Sensor
	}

	if s.Workflow != "" {
		data["workflow"] = s.Workflow
	}

	return models.EventDraft{
		Type:     s.Type,
		Severity: s.Severity,
		Source: models.EventSource{
			DeviceID:   s.DeviceID,
			DeviceType: s.DeviceType,
			Location:   s.Location,
			Zone:       scenario.Zone,
			Building:   scenario.Building,
		},
		Location: models.Location{Building: scenario.Building, Zone: scenario.Zone, Room: s.Location},
		Data:     data,
	}
}

type document struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadScenarios parses a scenario document.
func LoadScenarios(body []byte) ([]Scenario, error) {
	var doc document

	err := yaml.Unmarshal(body, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse demo scenarios: %w", err)
	}

	seen := make(map[string]bool, len(doc.Scenarios))

	for i := range doc.Scenarios {
		scenario := &doc.Scenarios[i]

		if scenario.ID == "" {
			return nil, fmt.Errorf("demo scenario %d has no id", i)
		}

		if seen[scenario.ID] {
			return nil, fmt.Errorf("duplicate demo scenario %q", scenario.ID)
		}

		seen[scenario.ID] = true

		if len(scenario.Steps) == 0 {
			return nil, fmt.Errorf("demo scenario %q has no steps", scenario.ID)
		}

		if scenario.Interval <= 0 {
			scenario.Interval = DefaultInterval
		}
	}

	return doc.Scenarios, nil
}

// BuiltinScenarios returns the scenarios shipped with the binary.
func BuiltinScenarios() []Scenario {
	scenarios, err := LoadScenarios(builtinScenarios)
	if err != nil {
		panic(err)
	}

	return scenarios
}
