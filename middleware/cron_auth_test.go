package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCronTestApp(cronSecret, serviceKey string) *fiber.App {
	app := fiber.New()
	app.Get("/cron/ping", CronProtected(cronSecret, serviceKey), func(c *fiber.Ctx) error {
		caller := c.Locals("cronCaller").(*CronCaller)
		return c.JSON(fiber.Map{"credential": caller.Credential})
	})
	return app
}

func TestCronProtectedAcceptsEachCredential(t *testing.T) {
	app := newCronTestApp("cron-sekrit", "svc-key")

	cases := []struct {
		name    string
		header  string
		value   string
		verdict string
	}{
		{"cron secret header", "X-Cron-Secret", "cron-sekrit", "cron-secret"},
		{"service key header", "X-Service-Key", "svc-key", "service-key"},
		{"bearer service key", "Authorization", "Bearer svc-key", "bearer"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/cron/ping", nil)
			req.Header.Set(tc.header, tc.value)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tc.verdict)
		})
	}
}

func TestCronProtectedRejects(t *testing.T) {
	app := newCronTestApp("cron-sekrit", "svc-key")

	cases := []struct {
		name   string
		header string
		value  string
	}{
		{"no credential", "", ""},
		{"wrong cron secret", "X-Cron-Secret", "nope"},
		{"wrong service key", "X-Service-Key", "nope"},
		{"bearer wrong key", "Authorization", "Bearer nope"},
		{"bearer cron secret is not accepted", "Authorization", "Bearer cron-sekrit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/cron/ping", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestCronProtectedRejectsWhenUnconfigured(t *testing.T) {
	// Empty configured secrets must never match an empty presented header
	app := newCronTestApp("", "")

	req := httptest.NewRequest("GET", "/cron/ping", nil)
	req.Header.Set("X-Cron-Secret", "")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
