package generator

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/otelhelper"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const (
	DefaultModel       = "gemini-1.5-flash"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.1
	DefaultTimeout     = 45 * time.Second

	defaultConfidence = 0.5
)

//go:embed response.schema.json
var responseSchema []byte

var (
	ErrMissingAPIKey   = errors.New("gemini API key is required, set GOOGLE_AI_API_KEY")
	ErrNoCandidate     = errors.New("no response candidate from Gemini")
	ErrNoContent       = errors.New("no text content in Gemini response")
	ErrInvalidResponse = errors.New("gemini response does not match the workflow schema")

	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
)

type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Gemini calls the Gemini generateContent endpoint through the genai SDK.
type Gemini struct {
	config   GeminiConfig
	client   *genai.Client
	schema   *gojsonschema.Schema
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewGemini builds the generator. Without an API key it still succeeds and every
// generation reports ErrMissingAPIKey.
func NewGemini(ctx context.Context, config GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if config.Model == "" {
		config.Model = DefaultModel
	}

	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	if config.Temperature <= 0 {
		config.Temperature = DefaultTemperature
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load response schema: %w", err)
	}

	var client *genai.Client

	if config.APIKey != "" {
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      config.APIKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPClient:  &http.Client{Timeout: config.Timeout},
			HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
	}

	return &Gemini{
		config:   config,
		client:   client,
		schema:   schema,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "generator", "model", config.Model),
		tracer:   otelhelper.Tracer("convergence/generator"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Configured reports whether an API key is set.
func (g *Gemini) Configured() bool {
	return g.client != nil
}

func (g *Gemini) Generate(ctx context.Context, req GenerationRequest) GenerationResult {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "generator.generate",
		attribute.String("convergence.generator.model", g.config.Model),
	)
	defer span.End()

	result, err := g.generate(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)
		g.logger.ErrorContext(ctx, "Workflow generation failed", "error", err)

		return Failed(err)
	}

	g.logger.InfoContext(ctx, "Workflow generated",
		"name", result.Workflow.Name,
		"steps", len(result.Workflow.Steps),
		"confidence", result.Confidence,
		"tokens", result.TokensUsed,
		"processing_time", result.ProcessingTime)

	return result
}

func (g *Gemini) generate(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	if !g.Configured() {
		return GenerationResult{}, ErrMissingAPIKey
	}

	err := g.validate.Struct(req)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("invalid generation request: %w", err)
	}

	start := time.Now()

	response, err := g.call(ctx, buildPrompt(req, g.now()))
	if err != nil {
		return GenerationResult{}, err
	}

	return g.parse(response, req.Input, time.Since(start))
}

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Gemini API error: HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("Gemini API error: HTTP %d: %s", e.StatusCode, e.Message)
}

func (g *Gemini) call(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	response, err := g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(g.config.Temperature)),
		MaxOutputTokens:   int32(g.config.MaxTokens),
		CandidateCount:    1,
		// Security scenarios mention weapons and violence by nature.
		SafetySettings: []*genai.SafetySetting{{
			Category:  genai.HarmCategoryDangerousContent,
			Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
		}},
	})
	if err != nil {
		return nil, apiError(err)
	}

	return response, nil
}

func apiError(err error) error {
	var value genai.APIError
	if errors.As(err, &value) {
		return &APIError{StatusCode: value.Code, Message: value.Message}
	}

	var pointer *genai.APIError
	if errors.As(err, &pointer) {
		return &APIError{StatusCode: pointer.Code, Message: pointer.Message}
	}

	return fmt.Errorf("request failed: %w", err)
}

type generatedStep struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Action     string         `json:"action"`
	Reasoning  string         `json:"reasoning"`
	Parameters map[string]any `json:"parameters"`
}

type generatedTrigger struct {
	Source      string  `json:"source"`
	EventType   string  `json:"eventType"`
	Description string  `json:"naturalLanguageDescription"`
	Confidence  float64 `json:"confidence"`
}

type generatedPayload struct {
	Workflow struct {
		Name           string             `json:"name"`
		Description    string             `json:"description"`
		Steps          []generatedStep    `json:"steps"`
		Triggers       []generatedTrigger `json:"triggers"`
		ComplianceTags []string           `json:"complianceTags"`
	} `json:"workflow"`
	Confidence            float64         `json:"confidence"`
	Reasoning             []ReasoningStep `json:"reasoning"`
	Warnings              []string        `json:"warnings"`
	Suggestions           []string        `json:"suggestions"`
	RiskAssessment        string          `json:"riskAssessment"`
	ComplianceAnalysis    string          `json:"complianceAnalysis"`
	AlternativeApproaches []string        `json:"alternativeApproaches"`
}

// extractJSON returns the JSON object of a reply, unwrapping a markdown code fence.
func extractJSON(text string) string {
	match := fencedJSON.FindStringSubmatch(text)
	if match != nil {
		return match[1]
	}

	return strings.TrimSpace(text)
}

func (g *Gemini) parse(response *genai.GenerateContentResponse, prompt string, elapsed time.Duration) (GenerationResult, error) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0] == nil {
		return GenerationResult{}, ErrNoCandidate
	}

	candidate := response.Candidates[0]

	text := candidateText(candidate)
	if text == "" {
		return GenerationResult{}, ErrNoContent
	}

	raw := extractJSON(text)

	validation, err := g.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	if !validation.Valid() {
		var problems []string
		for _, e := range validation.Errors() {
			problems = append(problems, e.String())
		}

		return GenerationResult{}, fmt.Errorf("%w: %s", ErrInvalidResponse, strings.Join(problems, "; "))
	}

	var payload generatedPayload

	err = json.Unmarshal([]byte(raw), &payload)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	confidence := payload.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	finishReason := string(candidate.FinishReason)
	if finishReason == "" {
		finishReason = string(genai.FinishReasonStop)
	}

	now := g.now()
	usage := usageFrom(response.UsageMetadata)

	workflow := &models.Workflow{
		ID:             "ai_wf_" + strconv.FormatInt(now.UnixMilli(), 10),
		Name:           payload.Workflow.Name,
		Description:    payload.Workflow.Description,
		Steps:          stepsFrom(payload.Workflow.Steps),
		Triggers:       triggersFrom(payload.Workflow.Triggers),
		Source:         models.WorkflowSourceAIGenerated,
		Active:         true,
		ComplianceTags: nonNil(payload.Workflow.ComplianceTags),
		AIMetadata: &models.AIGenerationMetadata{
			OriginalPrompt:   prompt,
			GeneratedAt:      now,
			Model:            g.config.Model,
			TokensUsed:       usage.total,
			PromptTokens:     usage.prompt,
			CompletionTokens: usage.completion,
			ProcessingTimeMs: elapsed.Milliseconds(),
			FinishReason:     finishReason,
			Reasoning:        conclusions(payload.Reasoning),
		},
		ConfidenceScore:  confidence,
		ValidationStatus: models.ValidationPending,
		CreatedAt:        now,
	}

	return GenerationResult{
		Success:               true,
		Workflow:              workflow,
		Confidence:            confidence,
		Warnings:              nonNil(payload.Warnings),
		Suggestions:           nonNil(payload.Suggestions),
		TokensUsed:            usage.total,
		ProcessingTime:        elapsed,
		Reasoning:             payload.Reasoning,
		RiskAssessment:        payload.RiskAssessment,
		ComplianceAnalysis:    payload.ComplianceAnalysis,
		AlternativeApproaches: nonNil(payload.AlternativeApproaches),
	}, nil
}

func candidateText(candidate *genai.Candidate) string {
	if candidate.Content == nil {
		return ""
	}

	var text strings.Builder

	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}

	return text.String()
}

type tokenUsage struct {
	prompt     int
	completion int
	total      int
}

func usageFrom(metadata *genai.GenerateContentResponseUsageMetadata) tokenUsage {
	if metadata == nil {
		return tokenUsage{}
	}

	return tokenUsage{
		prompt:     int(metadata.PromptTokenCount),
		completion: int(metadata.CandidatesTokenCount),
		total:      int(metadata.TotalTokenCount),
	}
}

func stepsFrom(generated []generatedStep) []models.Step {
	steps := make([]models.Step, len(generated))

	for i, s := range generated {
		id := s.ID
		if id == "" {
			id = "step-" + strconv.Itoa(i+1)
		}

		steps[i] = models.Step{
			ID:         id,
			Label:      s.Label,
			Action:     s.Action,
			Parameters: s.Parameters,
			Reasoning:  s.Reasoning,
		}
	}

	return steps
}

// triggersFrom maps free-form event names such as "weapon detected" onto event types.
func triggersFrom(generated []generatedTrigger) []models.Trigger {
	triggers := make([]models.Trigger, len(generated))

	for i, t := range generated {
		eventType := strings.ToLower(strings.TrimSpace(t.EventType))
		eventType = strings.NewReplacer(" ", "_", "-", "_").Replace(eventType)

		triggers[i] = models.Trigger{
			ID:          "trigger-" + strconv.Itoa(i+1),
			Source:      t.Source,
			EventType:   models.EventType(eventType),
			Description: t.Description,
		}
	}

	return triggers
}

func conclusions(reasoning []ReasoningStep) []string {
	var out []string

	for _, r := range reasoning {
		if r.Conclusion != "" {
			out = append(out, r.Conclusion)
		}
	}

	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}

	return values
}
