package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagatesIncomingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, "req-1", GetCorrelationID(c))
		require.Equal(t, "req-1", CorrelationIDFromContext(c.UserContext()))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-1", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDGeneratesWhenMissing(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestContextWithCorrelationIgnoresBlank(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  ")
	require.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelation(nil, " grading-7 ")
	require.Equal(t, "grading-7", CorrelationIDFromContext(ctx))
}

func TestCorrelationIDReplacesUnusableHeader(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, strings.Repeat("a", maxCorrelationIDLength+1))
	resp, err := app.Test(req)
	require.NoError(t, err)

	issued := resp.Header.Get(CorrelationHeader)
	require.NotEmpty(t, issued)
	require.LessOrEqual(t, len(issued), maxCorrelationIDLength)
}

func TestSanitizeCorrelationID(t *testing.T) {
	require.Equal(t, "grade-1", sanitizeCorrelationID("  grade-1 "))
	require.Empty(t, sanitizeCorrelationID("bad\x00id"))
	require.Empty(t, sanitizeCorrelationID(strings.Repeat("x", maxCorrelationIDLength+1)))
}

func TestRegisterExposesCorrelationHeader(t *testing.T) {
	app := fiber.New()
	Register(app, Config{})
	app.Get("/api/v2/grading/activity", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v2/grading/activity", nil)
	req.Header.Set("Origin", "http://grader.local")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(CorrelationHeader))
	require.Equal(t, CorrelationHeader, resp.Header.Get("Access-Control-Expose-Headers"))
}
