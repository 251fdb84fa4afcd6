package api

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouteOptions struct {
	RateLimit      int
	MetricsEnabled bool
}

func SetupRoutes(app *fiber.App, handler *Handler, opts RouteOptions) {
	app.Use(RequestID())
	app.Use(ErrorHandler())

	// sem rate limiting
	app.Get("/health", handler.HealthCheck)
	app.Get("/ready", handler.ReadinessCheck)
	if opts.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
	app.Get("/swagger/*", swagger.HandlerDefault)

	v1 := app.Group("/api/v1")
	if opts.RateLimit > 0 {
		v1.Use(RateLimiter(opts.RateLimit))
	}
	v1.Use(PrometheusMiddleware())

	v1.Get("/categories", handler.ListCategories)

	history := v1.Group("/history")
	history.Get("/:category/:code", handler.GetHistory)
	history.Get("/:category/:code/csv", handler.GetHistoryCSV)
	history.Get("/:category/:code/chart/:kind", handler.GetHistoryChart)

	sessions := v1.Group("/sessions")
	sessions.Post("/", handler.CreateSession)
	sessions.Get("/:id", handler.GetSession)
	sessions.Delete("/:id", handler.DeleteSession)
	sessions.Post("/:id/search", handler.SearchSession)
	sessions.Post("/:id/reset", handler.ResetSession)
	sessions.Post("/:id/charts/:kind", handler.AddSessionChart)
	sessions.Get("/:id/charts/:kind", handler.GetSessionChart)
}
