// Package history serves the list of stored scans and their deletion.
package history

import (
	"context"
	"time"

	"linkscan/internal/core/export"
	"linkscan/internal/core/results"
	"linkscan/internal/core/scanid"
	"linkscan/internal/core/scope"
	"linkscan/internal/httpapi"
	"linkscan/internal/logger"

	"github.com/gofiber/fiber/v2"
)

type ResultStore interface {
	ListSummaries(ctx context.Context, sc scope.Scope) ([]results.Summary, error)
	DeleteScan(ctx context.Context, scanID string, sc scope.Scope) (int64, error)
	DeleteAll(ctx context.Context, sc scope.Scope) error
}

type Exports interface {
	State(ctx context.Context, scanID string) (export.State, error)
	Remove(ctx context.Context, scanID string) error
}

type CurrentScan interface {
	Get(ctx context.Context, sc scope.Scope) (string, bool, error)
}

type Handler struct {
	results ResultStore
	exports Exports
	current CurrentScan
	log     *logger.Logger
}

func NewHandler(rs ResultStore, ex Exports, cur CurrentScan) *Handler {
	return &Handler{results: rs, exports: ex, current: cur, log: logger.New("History")}
}

type Entry struct {
	ScanID    string       `json:"scan_id"`
	StartedAt time.Time    `json:"started_at"`
	Rows      int64        `json:"rows"`
	Scanning  bool         `json:"scanning"`
	CSV       export.State `json:"csv"`
}

type listResponse struct {
	Success bool    `json:"success"`
	Scans   []Entry `json:"scans"`
}

// List returns the scope's scans newest first. The scan currently in
// flight is flagged and has no CSV state.
func (h *Handler) List(ctx context.Context, sc scope.Scope) ([]Entry, error) {
	sums, err := h.results.ListSummaries(ctx, sc)
	if err != nil {
		return nil, err
	}
	current, _, err := h.current.Get(ctx, sc)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(sums))
	for _, s := range sums {
		e := Entry{ScanID: s.ScanID, StartedAt: s.StartedAt, Rows: s.Rows, CSV: export.StateNone}
		if current != "" && s.ScanID == current {
			e.Scanning = true
		} else if e.CSV, err = h.exports.State(ctx, s.ScanID); err != nil {
			// Ids that predate validation have no export either way.
			h.log.LogDebugf("csv state of %s: %v", s.ScanID, err)
			e.CSV = export.StateNone
		}
		out = append(out, e)
	}
	return out, nil
}

func (h *Handler) HandleList(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	entries, err := h.List(c.UserContext(), sc)
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(listResponse{Success: true, Scans: entries})
}

// HandleDelete removes one scan's rows in scope and its CSV.
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	id := c.Params("scanId")
	if !scanid.Valid(id) {
		return httpapi.Fail(c, fiber.StatusBadRequest, export.ErrInvalidScanID.Error())
	}
	n, err := h.results.DeleteScan(c.UserContext(), id, sc)
	if err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if err := h.exports.Remove(c.UserContext(), id); err != nil {
		h.log.LogWarnf("remove csv of %s: %v", id, err)
	}
	h.log.LogInfof("deleted scan %s (%s): %d rows", id, sc, n)
	return c.JSON(fiber.Map{"success": true, "scan_id": id, "rows_deleted": n})
}

// HandleDeleteAll drops every row in scope. CSV files are left in place.
func (h *Handler) HandleDeleteAll(c *fiber.Ctx) error {
	sc, ok, err := httpapi.ScopeOrFail(c)
	if !ok {
		return err
	}
	if err := h.results.DeleteAll(c.UserContext(), sc); err != nil {
		return httpapi.Fail(c, fiber.StatusInternalServerError, err.Error())
	}
	h.log.LogInfof("deleted all scan results (%s)", sc)
	return c.JSON(fiber.Map{"success": true})
}
