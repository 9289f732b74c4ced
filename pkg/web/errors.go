package web

import (
	"errors"

	"github.com/dukex/convergence/pkg/demo"
	"github.com/dukex/convergence/pkg/dispatcher"
	"github.com/dukex/convergence/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	return problem(c, fiber.StatusNotFound, kind, detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps classified errors from the service, dispatcher and
// demo layers to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, services.ErrWorkflowNotFound):
		return notFound(c, "workflow_not_found", "workflow not found")

	case errors.Is(err, services.ErrTemplateNotFound):
		return notFound(c, "template_not_found", "template not found")

	case errors.Is(err, demo.ErrScenarioNotFound):
		return notFound(c, "scenario_not_found", "demo scenario not found")

	case errors.Is(err, dispatcher.ErrInvalidEvent):
		return badRequest(c, err.Error())

	case errors.Is(err, dispatcher.ErrStopped):
		return problem(c, fiber.StatusServiceUnavailable, "dispatcher_stopped", "event dispatcher is not accepting events")

	default:
		return internalError(c, err)
	}
}
