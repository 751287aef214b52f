package scheduler

import (
	"errors"

	"linkscan/internal/core/sites"
	"linkscan/internal/httpapi"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

type scheduleResponse struct {
	Success bool `json:"success"`
	Scheduled
}

type progressResponse struct {
	Success bool `json:"success"`
	Progress
}

type stopResponse struct {
	Success bool `json:"success"`
	Stopped
}

// HandleSchedule starts a scan for the request scope.
func (h *Handler) HandleSchedule(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	out, err := h.svc.Schedule(c.UserContext(), sc)
	if errors.Is(err, sites.ErrSiteNotFound) {
		return httpapi.Fail(c, fiber.StatusNotFound, "site not found")
	}
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(scheduleResponse{Success: true, Scheduled: out})
}

func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	p, err := h.svc.Progress(c.UserContext(), sc)
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(progressResponse{Success: true, Progress: p})
}

func (h *Handler) HandleStop(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	out, err := h.svc.StopAll(c.UserContext(), sc)
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(stopResponse{Success: true, Stopped: out})
}
