package server

import (
	"context"

	"linkscan/internal/core/export"
	"linkscan/internal/core/history"
	"linkscan/internal/core/scheduler"
	"linkscan/internal/health"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Dependencies struct {
	Scheduler *scheduler.Service
	Exports   *export.Service
	Results   history.ResultStore
	Current   history.CurrentScan
	// Checks are the dependencies reported by /v1/health, keyed by name.
	Checks map[string]func(context.Context) error
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	checks := make(map[string]health.Check, len(d.Checks))
	for name, fn := range d.Checks {
		checks[name] = fn
	}
	healthHandler := health.NewHealthHandler(checks)
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/v1")

	scans := scheduler.NewHandler(d.Scheduler)
	api.Post("/scans", scans.HandleSchedule)
	api.Get("/scans/status", scans.HandleStatus)
	api.Post("/scans/stop", scans.HandleStop)

	hist := history.NewHandler(d.Results, d.Exports, d.Current)
	api.Get("/scans", hist.HandleList)
	api.Delete("/scans", hist.HandleDeleteAll)
	api.Delete("/scans/:scanId", hist.HandleDelete)

	csv := export.NewHandler(d.Exports)
	api.Post("/scans/:scanId/csv", csv.HandleRequest)
	api.Get("/scans/:scanId/csv", csv.HandleDownload)

	return healthHandler
}
