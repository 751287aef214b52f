// Package httpapi holds the response envelope and request helpers shared by
// the HTTP handlers.
package httpapi

import (
	"linkscan/internal/core/scope"
	"linkscan/internal/utils/parser"

	"github.com/gofiber/fiber/v2"
)

type Error struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func Fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(Error{Success: false, Error: msg})
}

type scopeQuery struct {
	SiteID string `form:"site_id"`
}

// Scope reads the request scope from ?site_id=. No site id means the network.
func Scope(c *fiber.Ctx) (scope.Scope, error) {
	var q scopeQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return scope.Network(), err
	}
	return scope.Parse(q.SiteID)
}

// ScopeOrFail is Scope with the 400 response already written on failure.
func ScopeOrFail(c *fiber.Ctx) (scope.Scope, bool, error) {
	sc, err := Scope(c)
	if err != nil {
		return sc, false, Fail(c, fiber.StatusBadRequest, err.Error())
	}
	return sc, true, nil
}
