package web

import (
	"github.com/dukex/convergence/pkg/demo"
	"github.com/dukex/convergence/pkg/models"
)

// ValidateWorkflowRequest carries a reviewer's verdict on an AI-generated workflow.
type ValidateWorkflowRequest struct {
	Status models.ValidationStatus `json:"status" validate:"required,oneof=validated rejected"`
}

// SetActiveRequest enables or disables trigger matching for a saved workflow.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type ScenarioSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Steps       int    `json:"steps"`
	IntervalMS  int64  `json:"interval_ms"`
}

type DemoResponse struct {
	Scenarios []ScenarioSummary `json:"scenarios"`
	Status    demo.Status       `json:"status"`
}

func summarize(scenarios []demo.Scenario) []ScenarioSummary {
	out := make([]ScenarioSummary, len(scenarios))

	for i, s := range scenarios {
		out[i] = ScenarioSummary{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Steps:       len(s.Steps),
			IntervalMS:  s.Interval.Milliseconds(),
		}
	}

	return out
}
