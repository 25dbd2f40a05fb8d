package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"engagely/internal/http/middleware"
	"engagely/internal/models"
	"engagely/internal/testsupport"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	return testsupport.CreateMinimalTestApp(t, db), db
}

// call sends an authenticated request and decodes the JSON response into out
// when out is not nil.
func call(t *testing.T, app *fiber.App, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.AdminTokenHeader, testsupport.AdminToken)

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

// seedPost stores two actors of post 1 with one view each.
func seedPost(t *testing.T, db *gorm.DB) {
	t.Helper()
	visited := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	for _, actor := range []struct {
		key     string
		browser string
		country string
	}{
		{"visitor:a", "Firefox", "DE"},
		{"visitor:b", "Chrome", "US"},
	} {
		record := testsupport.CreateAnalytic(t, db, models.AnalyticRecord{
			EntityType:     "post",
			EntityID:       "1",
			ActorKey:       actor.key,
			VisitorToken:   ptr(strings.TrimPrefix(actor.key, "visitor:")),
			Counters:       models.Counters{ViewsCount: 1, LikesCount: 1},
			LastActivityAt: &visited,
		})
		view := models.ViewRecord{
			AnalyticID:   record.ID,
			EntityType:   "post",
			EntityID:     "1",
			ActorKey:     actor.key,
			VisitorToken: record.VisitorToken,
			ActionType:   "show",
			RequestPath:  "/posts/1",
			Browser:      actor.browser,
			OS:           "Linux",
			Device:       "Desktop",
			VisitedAt:    visited,
		}
		view.CountryCode = actor.country
		testsupport.CreateView(t, db, view)
	}
}

func ptr(s string) *string { return &s }

func TestHealthHandler(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health struct {
		Status      string `json:"status"`
		DBStatus    string `json:"db_status"`
		GeoDBStatus string `json:"geo_db_status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DBStatus)
	assert.Equal(t, "unmanaged", health.GeoDBStatus)
}

func TestMetricsAction(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// One request so the HTTP histogram has a series
	call(t, app, "GET", "/_health", nil, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set(middleware.AdminTokenHeader, testsupport.AdminToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "engagely_http_request_duration_seconds")
}
