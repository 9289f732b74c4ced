package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/convergence/pkg/engine"
	"github.com/dukex/convergence/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	engine   *engine.Engine
	validate *validator.Validate
	app      *fiber.App
}

func NewAPI(logger *slog.Logger, e *engine.Engine) *API {
	api := &API{
		logger:   logger,
		engine:   e,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	api.app = api.App()

	return api
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.engine.Workflows,
		a.engine.Dispatcher,
		a.engine.Simulator,
		a.engine.Reporting,
		a.engine.Demo,
		a.engine.Generator,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Convergence")
	})

	e := app.Group("/events")
	e.Get("/", handlers.GetEvents)
	e.Post("/", handlers.PublishEvent)

	x := app.Group("/executions")
	x.Get("/", handlers.GetExecutions)
	x.Get("/:id", handlers.GetExecution)

	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/:id/activate", handlers.ActivateTemplate)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Delete("/", handlers.ClearWorkflows)
	w.Post("/generate", handlers.GenerateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.SetWorkflowActive)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)

	d := app.Group("/demo")
	d.Get("/", handlers.GetDemo)
	d.Post("/stop", handlers.StopDemo)
	d.Post("/:scenarioId/start", handlers.StartDemo)

	app.Get("/reporting", handlers.GetReporting)
	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves the API until Shutdown is called.
func (a *API) Start(port int) error {
	return a.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}
