package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/convergence/pkg/catalog"
	"github.com/dukex/convergence/pkg/demo"
	"github.com/dukex/convergence/pkg/dispatcher"
	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/generator"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/persistence/file"
	"github.com/dukex/convergence/pkg/reporting"
	"github.com/dukex/convergence/pkg/services"
	"github.com/dukex/convergence/pkg/simulator"
	"github.com/dukex/convergence/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	result generator.GenerationResult
	got    []generator.GenerationRequest
}

func (g *stubGenerator) Generate(_ context.Context, req generator.GenerationRequest) generator.GenerationResult {
	g.got = append(g.got, req)

	return g.result
}

type testEnv struct {
	app        *fiber.App
	workflows  *services.Workflow
	dispatcher *dispatcher.Dispatcher
	simulator  *simulator.Simulator
	demo       *demo.Runner
	generator  *stubGenerator
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.Default()
	hub := eventbus.NewHub(logger)

	workflowService := services.NewWorkflow(file.NewStore(t.TempDir()), logger)

	sim := simulator.New(simulator.Config{
		CommandTimeout: time.Second,
		ArchiveAfter:   time.Hour,
	}, simulator.NewSimulatedDevices(0, 1, nil), hub, logger)

	aggregator := reporting.New(sim, hub, logger)
	d := dispatcher.New(catalog.Matchable{Saved: workflowService}, sim, aggregator, hub, logger)
	d.Start(context.Background())

	runner := demo.NewRunner([]demo.Scenario{{
		ID:       "short",
		Name:     "Short",
		Interval: time.Hour,
		Steps: []demo.Step{
			{Message: "Badge accepted", Type: models.EventInfo, Severity: models.SeverityLow},
		},
	}}, d, hub, logger)

	gen := &stubGenerator{}

	t.Cleanup(func() {
		runner.Stop()
		d.Stop()
		sim.Close()
	})

	handlers := web.NewAPIHandlers(workflowService, d, sim, aggregator, runner, gen,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	app.Get("/health", handlers.HealthCheck)

	e := app.Group("/events")
	e.Get("/", handlers.GetEvents)
	e.Post("/", handlers.PublishEvent)

	x := app.Group("/executions")
	x.Get("/", handlers.GetExecutions)
	x.Get("/:id", handlers.GetExecution)

	tg := app.Group("/templates")
	tg.Get("/", handlers.GetTemplates)
	tg.Post("/:id/activate", handlers.ActivateTemplate)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Delete("/", handlers.ClearWorkflows)
	w.Post("/generate", handlers.GenerateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.SetWorkflowActive)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)

	dg := app.Group("/demo")
	dg.Get("/", handlers.GetDemo)
	dg.Post("/stop", handlers.StopDemo)
	dg.Post("/:scenarioId/start", handlers.StartDemo)

	app.Get("/reporting", handlers.GetReporting)

	return &testEnv{
		app:        app,
		workflows:  workflowService,
		dispatcher: d,
		simulator:  sim,
		demo:       runner,
		generator:  gen,
	}
}

func do(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp, body := do(t, env.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "checkers")
}

func TestAPIHandlers_PublishEvent(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedType   string
	}{
		{
			name: "fire event is accepted",
			body: models.EventDraft{
				Type:     models.EventFireDetected,
				Severity: models.SeverityCritical,
				Source:   models.EventSource{DeviceID: "smoke-1"},
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing type",
			body:           map[string]any{"severity": "low"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "unknown severity",
			body:           map[string]any{"type": "door_lock", "severity": "apocalyptic"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			resp, body := do(t, env.app, http.MethodPost, "/events", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedType != "" {
				assert.Equal(t, tt.expectedType, problemType(t, body))

				return
			}

			var event models.Event
			require.NoError(t, json.Unmarshal(body, &event))
			assert.NotEmpty(t, event.ID)
			assert.Equal(t, models.EventFireDetected, event.Type)
		})
	}
}

func TestAPIHandlers_EventsAndExecutions(t *testing.T) {
	env := setupTestApp(t)

	for range 3 {
		resp, body := do(t, env.app, http.MethodPost, "/events", models.EventDraft{
			Type:     models.EventFireAlarm,
			Severity: models.SeverityHigh,
			Source:   models.EventSource{DeviceID: "pull-station-2"},
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	}

	env.dispatcher.Drain()

	resp, body := do(t, env.app, http.MethodGet, "/events?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recent []models.Event
	require.NoError(t, json.Unmarshal(body, &recent))
	assert.Len(t, recent, 2)

	resp, _ = do(t, env.app, http.MethodGet, "/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, env.app, http.MethodGet, "/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var executions []models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &executions))
	require.NotEmpty(t, executions)

	resp, body = do(t, env.app, http.MethodGet, "/executions/"+executions[0].ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var execution models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &execution))
	assert.Equal(t, executions[0].ID, execution.ID)

	resp, body = do(t, env.app, http.MethodGet, "/executions/exec_missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "execution_not_found", problemType(t, body))

	resp, body = do(t, env.app, http.MethodGet, "/reporting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data models.ReportingData
	require.NoError(t, json.Unmarshal(body, &data))
	assert.Equal(t, 3, data.TotalEvents)
}

func TestAPIHandlers_Templates(t *testing.T) {
	env := setupTestApp(t)

	resp, body := do(t, env.app, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var templates []models.Template
	require.NoError(t, json.Unmarshal(body, &templates))
	assert.Len(t, templates, len(catalog.Templates()))

	resp, body = do(t, env.app, http.MethodPost, "/templates/tmpl-fire-safety/activate", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, "tmpl-fire-safety", workflow.TemplateID)
	assert.Equal(t, models.WorkflowSourceTemplate, workflow.Source)

	resp, body = do(t, env.app, http.MethodPost, "/templates/tmpl-missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "template_not_found", problemType(t, body))
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	env := setupTestApp(t)

	resp, body := do(t, env.app, http.MethodPost, "/workflows", services.AddWorkflowRequest{
		Name:  "Gym lockdown",
		Steps: []models.Step{{Label: "Lock", Action: "Lock All Doors"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created models.Workflow
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Active)

	resp, body = do(t, env.app, http.MethodPost, "/workflows", services.AddWorkflowRequest{Name: "No steps"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", problemType(t, body))

	resp, body = do(t, env.app, http.MethodGet, "/workflows/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, env.app, http.MethodPatch, "/workflows/"+created.ID, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Empty(t, env.workflows.ActiveWorkflows())

	resp, body = do(t, env.app, http.MethodPost, "/workflows/"+created.ID+"/validate", web.ValidateWorkflowRequest{Status: models.ValidationValidated})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "custom workflows cannot be validated")
	assert.Equal(t, "validation_error", problemType(t, body))

	resp, _ = do(t, env.app, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, env.app, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "workflow_not_found", problemType(t, body))
}

func TestAPIHandlers_ValidateAIWorkflow(t *testing.T) {
	env := setupTestApp(t)

	created, err := env.workflows.AddWorkflow(context.Background(), services.AddWorkflowRequest{
		Name:       "AI lockdown",
		Steps:      []models.Step{{Label: "Lock", Action: "Lock All Doors"}},
		AIMetadata: &models.AIGenerationMetadata{OriginalPrompt: "lock it"},
	})
	require.NoError(t, err)

	resp, body := do(t, env.app, http.MethodPost, "/workflows/"+created.ID+"/validate", map[string]any{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = do(t, env.app, http.MethodPost, "/workflows/"+created.ID+"/validate", web.ValidateWorkflowRequest{Status: models.ValidationRejected})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, models.ValidationRejected, workflow.ValidationStatus)
	assert.Empty(t, env.workflows.ActiveWorkflows())

	resp, _ = do(t, env.app, http.MethodDelete, "/workflows", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.workflows.Workflows())
}

func TestAPIHandlers_GenerateWorkflow(t *testing.T) {
	env := setupTestApp(t)

	resp, body := do(t, env.app, http.MethodPost, "/workflows/generate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	assert.Empty(t, env.generator.got)

	env.generator.result = generator.GenerationResult{
		Success:    true,
		Confidence: 0.8,
		Workflow:   &models.Workflow{ID: "ai_wf_1", Name: "Proposal"},
	}

	resp, body = do(t, env.app, http.MethodPost, "/workflows/generate", generator.GenerationRequest{Input: "lock the gym", Sector: "Education"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Len(t, env.generator.got, 1)
	assert.Equal(t, "Education", env.generator.got[0].Sector)

	var result generator.GenerationResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success)
	assert.Equal(t, "ai_wf_1", result.Workflow.ID)
	assert.Empty(t, env.workflows.Workflows(), "generated proposals are not saved")
}

func TestAPIHandlers_Demo(t *testing.T) {
	env := setupTestApp(t)

	resp, body := do(t, env.app, http.MethodGet, "/demo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var demoResp web.DemoResponse
	require.NoError(t, json.Unmarshal(body, &demoResp))
	require.Len(t, demoResp.Scenarios, 1)
	assert.Equal(t, "short", demoResp.Scenarios[0].ID)
	assert.Equal(t, 1, demoResp.Scenarios[0].Steps)
	assert.False(t, demoResp.Status.Running)

	resp, body = do(t, env.app, http.MethodPost, "/demo/unknown/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "scenario_not_found", problemType(t, body))

	resp, body = do(t, env.app, http.MethodPost, "/demo/short/start", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var status demo.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Running)
	assert.Equal(t, "short", status.ScenarioID)

	resp, body = do(t, env.app, http.MethodPost, "/demo/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &status))
	assert.False(t, status.Running)
}

func TestAPIHandlers_PublishAfterStop(t *testing.T) {
	env := setupTestApp(t)
	env.dispatcher.Stop()

	resp, body := do(t, env.app, http.MethodPost, "/events", models.EventDraft{
		Type:     models.EventDoorLock,
		Severity: models.SeverityLow,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "dispatcher_stopped", problemType(t, body))
}
