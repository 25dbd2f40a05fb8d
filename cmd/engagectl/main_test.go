package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal"
	"engagely/internal/models"
	"engagely/internal/testsupport"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  string
		wantArgs []string
	}{
		{"no args shows help", nil, "help", []string{}},
		{"command only", []string{"status"}, "status", []string{}},
		{"command with flags", []string{"aggregate", "--type", "post"}, "aggregate", []string{"--type", "post"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parseArgs(tt.args)
			if cmd != tt.wantCmd {
				t.Errorf("parseArgs(%v) cmd = %q, want %q", tt.args, cmd, tt.wantCmd)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"aggregate", "backfill", "cleanup", "migrate", "seed", "status", "help"} {
		if cmd := findCommand(name); cmd == nil || cmd.Name() != name {
			t.Errorf("findCommand(%q) = %v", name, cmd)
		}
	}
	if cmd := findCommand("create-admin-user"); cmd != nil {
		t.Errorf("unexpected command %q", cmd.Name())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := confirm(strings.NewReader(tt.input), "Continue?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	assert.Contains(t, buf.String(), "Usage: engagectl")
	assert.Contains(t, buf.String(), "backfill:")
}

func setupCommandApp(t *testing.T) *internal.Application {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CleanAllTables(dbManager.GetConnection())
	cfg := testsupport.LoadTestConfig(t)
	svc := internal.NewServices(cfg, dbManager, logger)
	t.Cleanup(func() { svc.Close() })
	return &internal.Application{Services: svc}
}

func TestAggregateCommand(t *testing.T) {
	app := setupCommandApp(t)
	db := app.Services.DBManager.GetConnection()
	now := time.Now().UTC()
	for _, actor := range []string{"visitor:a", "visitor:b"} {
		testsupport.CreateAnalytic(t, db, models.AnalyticRecord{
			EntityType:     "post",
			EntityID:       "1",
			ActorKey:       actor,
			Counters:       models.Counters{ViewsCount: 1, UniqueViewers: 1},
			LastActivityAt: &now,
		})
	}

	cmd := &AggregateCommand{}
	require.Error(t, cmd.Execute(context.Background(), app, []string{"--id", "1"}))
	require.NoError(t, cmd.Execute(context.Background(), app, []string{"--type", "post", "--id", "1"}))

	var base models.AnalyticRecord
	require.NoError(t, db.Where("entity_type = ? AND entity_id = ? AND actor_key = ?", "post", "1", models.BaseActorKey).Take(&base).Error)
	assert.EqualValues(t, 2, base.ViewsCount)

	t.Run("orphan cleanup needs confirmation", func(t *testing.T) {
		cmd := &AggregateCommand{In: strings.NewReader("n\n")}
		require.NoError(t, cmd.Execute(context.Background(), app, []string{"--recent", "--orphaned"}))

		var count int64
		require.NoError(t, db.Model(&models.AnalyticRecord{}).Count(&count).Error)
		assert.EqualValues(t, 3, count)
	})

	t.Run("orphan cleanup keeps live entities", func(t *testing.T) {
		app.Services.Resolvers.Register("post", func(_ context.Context, _ string) ([]string, error) {
			return []string{"1"}, nil
		})
		require.NoError(t, cmd.Execute(context.Background(), app, []string{"--orphaned", "--yes"}))

		var count int64
		require.NoError(t, db.Model(&models.AnalyticRecord{}).Count(&count).Error)
		assert.EqualValues(t, 3, count)
	})
}

func TestCleanupCommand(t *testing.T) {
	app := setupCommandApp(t)
	db := app.Services.DBManager.GetConnection()
	now := time.Now().UTC()
	for id, age := range map[string]int{"old": 90, "new": 1} {
		createdAt := now.AddDate(0, 0, -age)
		record := testsupport.CreateAnalytic(t, db, models.AnalyticRecord{
			EntityType: "post",
			EntityID:   id,
			ActorKey:   "visitor:" + id,
			CreatedAt:  createdAt,
		})
		testsupport.CreateView(t, db, models.ViewRecord{
			AnalyticID:  record.ID,
			EntityType:  "post",
			EntityID:    id,
			ActorKey:    record.ActorKey,
			ActionType:  "show",
			RequestPath: "/posts/" + id,
			VisitedAt:   createdAt,
			CreatedAt:   createdAt,
			Status:      true,
		})
	}

	cmd := &CleanupCommand{}
	assert.Error(t, cmd.Execute(context.Background(), app, []string{"--kind", "sessions"}))
	assert.Error(t, cmd.Execute(context.Background(), app, []string{"--days", "-1"}))
	require.NoError(t, cmd.Execute(context.Background(), app, []string{"--days", "30", "--yes"}))

	var ids []string
	require.NoError(t, db.Model(&models.ViewRecord{}).Pluck("entity_id", &ids).Error)
	assert.Equal(t, []string{"new"}, ids)
}
