package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/http/middleware"
	"engagely/internal/metrics"
	"engagely/internal/testsupport"
)

func TestAdminTokenAuth(t *testing.T) {
	testCases := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "valid token", configured: "s3cret", header: "s3cret", wantStatus: fiber.StatusOK},
		{name: "surrounding spaces are ignored", configured: "s3cret", header: " s3cret ", wantStatus: fiber.StatusOK},
		{name: "missing header", configured: "s3cret", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong token", configured: "s3cret", header: "s3cre", wantStatus: fiber.StatusUnauthorized},
		{name: "disabled without a configured token", configured: "", header: "anything", wantStatus: fiber.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(middleware.AdminTokenAuth(tc.configured, testsupport.GetLogger()))
			app.Get("/admin", func(c *fiber.Ctx) error { return c.SendString("ok") })

			req := httptest.NewRequest("GET", "/admin", nil)
			if tc.header != "" {
				req.Header.Set(middleware.AdminTokenHeader, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}
}

func TestRequestMetrics(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.RequestMetrics())
	app.Get("/items/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "no") })

	before := testutil.CollectAndCount(metrics.HTTPRequestDuration)

	for _, path := range []string{"/items/1", "/items/2", "/fail"} {
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
	}

	// Both item requests share the route label
	assert.Equal(t, before+2, testutil.CollectAndCount(metrics.HTTPRequestDuration))
}
