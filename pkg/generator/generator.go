// Package generator turns free-text requests into proposed security workflows
// using a generative model.
package generator

import (
	"context"
	"time"

	"github.com/dukex/convergence/pkg/models"
)

// Generator produces a workflow proposal. Failures are reported in the result,
// never as an error.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) GenerationResult
}

type GenerationRequest struct {
	Input           string   `json:"input"                      validate:"required"`
	Sector          string   `json:"sector,omitempty"`
	BuildingInfo    string   `json:"building_info,omitempty"`
	CurrentTime     string   `json:"current_time,omitempty"`
	ComplianceRules []string `json:"compliance_rules,omitempty"`
}

type ReasoningStep struct {
	Step       int     `json:"step"`
	Question   string  `json:"question"`
	Analysis   string  `json:"analysis"`
	Conclusion string  `json:"conclusion"`
	Confidence float64 `json:"confidence"`
}

type GenerationResult struct {
	Success               bool             `json:"success"`
	Workflow              *models.Workflow `json:"workflow,omitempty"`
	Confidence            float64          `json:"confidence"`
	Warnings              []string         `json:"warnings"`
	Suggestions           []string         `json:"suggestions"`
	TokensUsed            int              `json:"tokens_used"`
	ProcessingTime        time.Duration    `json:"processing_time"`
	Error                 string           `json:"error,omitempty"`
	Reasoning             []ReasoningStep  `json:"reasoning,omitempty"`
	RiskAssessment        string           `json:"risk_assessment,omitempty"`
	ComplianceAnalysis    string           `json:"compliance_analysis,omitempty"`
	AlternativeApproaches []string         `json:"alternative_approaches,omitempty"`
}

// Failed builds the result reported for any generation error.
func Failed(err error) GenerationResult {
	return GenerationResult{
		Success:     false,
		Confidence:  0,
		Warnings:    []string{},
		Suggestions: []string{},
		Error:       err.Error(),
	}
}
