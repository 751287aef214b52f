package parser

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type query struct {
	SiteID  *int64 `form:"site_id"`
	Label   string `form:"label"`
	Limit   uint   `form:"limit"`
	Verbose bool   `form:"verbose"`
	Ignored string
}

func bind(t *testing.T, target string) (query, int, string) {
	t.Helper()
	var got query
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if err := ParseQuery(c, &got); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return got, resp.StatusCode, string(body)
}

func TestParseQueryBindsTaggedFields(t *testing.T) {
	got, status, _ := bind(t, "/?site_id=12&label=main&limit=5&verbose=true&Ignored=x")
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, got.SiteID)
	assert.Equal(t, int64(12), *got.SiteID)
	assert.Equal(t, "main", got.Label)
	assert.Equal(t, uint(5), got.Limit)
	assert.True(t, got.Verbose)
	assert.Empty(t, got.Ignored)
}

func TestParseQueryLeavesAbsentFieldsAlone(t *testing.T) {
	got, status, _ := bind(t, "/?site_id=")
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, got.SiteID)
}

func TestParseQueryRejectsBadNumbers(t *testing.T) {
	_, status, body := bind(t, "/?site_id=abc")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "invalid site_id")

	_, status, _ = bind(t, "/?limit=-1")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestParseQueryNeedsStructPointer(t *testing.T) {
	app := fiber.New()
	var gotErr error
	app.Get("/", func(c *fiber.Ctx) error {
		var q query
		gotErr = ParseQuery(c, q)
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Error(t, gotErr)
}
