package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTProtectedStoresGraderIdentity(t *testing.T) {
	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "role": c.Locals("user_role")})
	})

	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
		role   string
	}{
		{name: "numeric subject", claims: jwt.MapClaims{"user_id": 17, "role": "Teacher"}, want: "17", role: "teacher"},
		{name: "string subject", claims: jwt.MapClaims{"sub": "grader-abc", "roles": []string{"admin"}}, want: "grader-abc", role: "admin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", tc.claims))
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tc.want, body["user_id"])
			require.Equal(t, tc.role, body["role"])
		})
	}
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, header := range []string{"", "Token abc", "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "x"})} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := normalizeUserID(float64(42))
	require.NoError(t, err)
	require.Equal(t, "42", id)

	_, err = normalizeUserID(float64(1.5))
	require.Error(t, err)

	_, err = normalizeUserID("  ")
	require.Error(t, err)

	id, err = normalizeUserID(" teacher-1 ")
	require.NoError(t, err)
	require.Equal(t, "teacher-1", id)
}

func TestRateLimitRejectsAfterMax(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "teacher-1")
		return c.Next()
	})
	app.Post("/", RateLimit("bulk", 1, time.Minute), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	first, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, first.StatusCode)

	second, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, second.StatusCode)
}
