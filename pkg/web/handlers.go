// Package web provides the HTTP control surface: event injection, workflow
// management, demo control and live state for the dashboard.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/convergence/pkg/catalog"
	"github.com/dukex/convergence/pkg/demo"
	"github.com/dukex/convergence/pkg/dispatcher"
	"github.com/dukex/convergence/pkg/generator"
	"github.com/dukex/convergence/pkg/models"
	"github.com/dukex/convergence/pkg/reporting"
	"github.com/dukex/convergence/pkg/services"
	"github.com/dukex/convergence/pkg/simulator"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	dispatcher      *dispatcher.Dispatcher
	simulator       *simulator.Simulator
	reporting       *reporting.Aggregator
	demo            *demo.Runner
	generator       generator.Generator
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	dispatcher *dispatcher.Dispatcher,
	simulator *simulator.Simulator,
	reporting *reporting.Aggregator,
	demo *demo.Runner,
	generator generator.Generator,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		dispatcher:      dispatcher,
		simulator:       simulator,
		reporting:       reporting,
		demo:            demo,
		generator:       generator,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Convergence is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Convergence is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"active_executions": h.simulator.ActiveCount(),
		"timestamp":         time.Now().UTC(),
	})
}

// Events

func (h *APIHandlers) GetEvents(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}

		limit = parsed
	}

	return c.JSON(h.dispatcher.RecentEvents(limit))
}

func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var draft models.EventDraft
	if err := c.Bind().JSON(&draft); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	event, err := h.dispatcher.Publish(c.Context(), draft)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(event)
}

// Executions

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	return c.JSON(h.simulator.Active())
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, ok := h.simulator.Get(c.Params("id"))
	if !ok {
		return notFound(c, "execution_not_found", "execution not found")
	}

	return c.JSON(execution)
}

// Templates

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	return c.JSON(catalog.Templates())
}

func (h *APIHandlers) ActivateTemplate(c fiber.Ctx) error {
	workflow, err := h.workflowService.ActivateTemplate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// Workflows

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	return c.JSON(h.workflowService.Workflows())
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Get(c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req services.AddWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflow, err := h.workflowService.AddWorkflow(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) SetWorkflowActive(c fiber.Ctx) error {
	var req SetActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.SetActive(c.Context(), c.Params("id"), *req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.RemoveWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ClearWorkflows(c fiber.Ctx) error {
	err := h.workflowService.ClearWorkflows(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var req ValidateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.ValidateWorkflow(c.Context(), c.Params("id"), req.Status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// GenerateWorkflow asks the generator for a proposal. The proposal is not saved;
// a failed generation is still a 200 with success=false in the body.
func (h *APIHandlers) GenerateWorkflow(c fiber.Ctx) error {
	var req generator.GenerationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(h.generator.Generate(c.Context(), req))
}

// Demo

func (h *APIHandlers) GetDemo(c fiber.Ctx) error {
	return c.JSON(DemoResponse{
		Scenarios: summarize(h.demo.Scenarios()),
		Status:    h.demo.Status(),
	})
}

func (h *APIHandlers) StartDemo(c fiber.Ctx) error {
	// The replay outlives the request.
	err := h.demo.Start(context.Background(), c.Params("scenarioId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(h.demo.Status())
}

func (h *APIHandlers) StopDemo(c fiber.Ctx) error {
	h.demo.Stop()

	return c.JSON(h.demo.Status())
}

// Reporting

func (h *APIHandlers) GetReporting(c fiber.Ctx) error {
	return c.JSON(h.reporting.Snapshot())
}
