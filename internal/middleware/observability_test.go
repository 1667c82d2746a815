package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/observability"
)

func TestObservabilityRecordsGradingRoutesOnly(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(CorrelationID())
	app.Use(Observability(zerolog.New(&buf)))
	app.Get("/api/v2/grading/submissions/:id/summary", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})
	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	route := "/api/v2/grading/submissions/:id/summary"
	before := testutil.ToFloat64(observability.GradingErrors().WithLabelValues(http.MethodGet, route, "404"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/grading/submissions/7/summary", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	after := testutil.ToFloat64(observability.GradingErrors().WithLabelValues(http.MethodGet, route, "404"))
	require.Equal(t, before+1, after)
	require.Contains(t, buf.String(), "grading request completed with client error")

	buf.Reset()
	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Empty(t, buf.String())
}

func TestLatencyBucket(t *testing.T) {
	require.Equal(t, "<=25ms", latencyBucket(10*time.Millisecond))
	require.Equal(t, "<=250ms", latencyBucket(200*time.Millisecond))
	require.Equal(t, ">500ms", latencyBucket(time.Second))
}
