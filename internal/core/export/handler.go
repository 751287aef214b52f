package export

import (
	"errors"

	"linkscan/internal/httpapi"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

type stateResponse struct {
	Success bool   `json:"success"`
	ScanID  string `json:"scan_id"`
	State   State  `json:"state"`
}

// HandleRequest queues a (re)generation of the scan's CSV.
func (h *Handler) HandleRequest(c *fiber.Ctx) error {
	id := c.Params("scanId")
	st, err := h.svc.Request(c.UserContext(), id)
	if errors.Is(err, ErrInvalidScanID) {
		return httpapi.Fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(stateResponse{Success: true, ScanID: id, State: st})
}

// HandleDownload sends the CSV when it exists, 202 while it is being
// generated and 404 otherwise.
func (h *Handler) HandleDownload(c *fiber.Ctx) error {
	id := c.Params("scanId")
	st, err := h.svc.State(c.UserContext(), id)
	if errors.Is(err, ErrInvalidScanID) {
		return httpapi.Fail(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	switch st {
	case StateReady:
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Download(h.svc.Path(id), FileName(id))
	case StateQueued:
		return c.Status(fiber.StatusAccepted).JSON(stateResponse{Success: true, ScanID: id, State: st})
	default:
		return httpapi.Fail(c, fiber.StatusNotFound, "not_found")
	}
}
