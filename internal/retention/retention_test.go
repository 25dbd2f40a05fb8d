package retention_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"engagely/internal/config"
	"engagely/internal/models"
	"engagely/internal/retention"
	"engagely/internal/testsupport"
	"engagely/internal/timeframe"
)

var cutoff = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*retention.Sweeper, *gorm.DB, *config.Config) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	cfg := config.GetConfig()
	cfg.AggregationBatchSize = 2
	return retention.NewSweeper(cfg, dbManager, logger).WithPause(0), db, cfg
}

func analyticAt(t *testing.T, db *gorm.DB, entityType, entityID string, createdAt time.Time) models.AnalyticRecord {
	t.Helper()
	record := testsupport.CreateAnalytic(t, db, models.AnalyticRecord{
		EntityType: entityType,
		EntityID:   entityID,
		ActorKey:   "visitor:" + entityID + createdAt.Format("150405"),
		CreatedAt:  createdAt,
	})
	testsupport.CreateView(t, db, models.ViewRecord{
		AnalyticID:  record.ID,
		EntityType:  entityType,
		EntityID:    entityID,
		ActorKey:    record.ActorKey,
		ActionType:  "show",
		RequestPath: "/" + entityID,
		CreatedAt:   createdAt,
	})
	require.NoError(t, db.Create(&models.PeriodRecord{
		AnalyticID:  record.ID,
		Metric:      "views_count",
		Granularity: timeframe.Daily,
		PeriodStart: cutoff,
		PeriodEnd:   timeframe.BucketEnd(cutoff, timeframe.Daily),
		Status:      true,
		CreatedAt:   createdAt,
	}).Error)
	return record
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()

	t.Run("rows at the cutoff are retained", func(t *testing.T) {
		sweeper, db, _ := setup(t)
		analyticAt(t, db, "post", "old", cutoff.Add(-time.Second))
		kept := analyticAt(t, db, "post", "exact", cutoff)
		analyticAt(t, db, "post", "new", cutoff.Add(time.Second))

		deleted, err := sweeper.PurgeOlderThan(ctx, retention.KindAnalytics, cutoff)
		require.NoError(t, err)

		assert.EqualValues(t, 1, deleted)
		assert.EqualValues(t, 2, count(t, db, &models.AnalyticRecord{}))
		var exact models.AnalyticRecord
		assert.NoError(t, db.Where("id = ?", kept.ID).Take(&exact).Error)
	})

	t.Run("deleting analytics removes their views and periods", func(t *testing.T) {
		sweeper, db, _ := setup(t)
		analyticAt(t, db, "post", "old", cutoff.Add(-time.Hour))
		analyticAt(t, db, "post", "new", cutoff.Add(time.Hour))

		_, err := sweeper.PurgeOlderThan(ctx, retention.KindAnalytics, cutoff)
		require.NoError(t, err)

		assert.EqualValues(t, 1, count(t, db, &models.ViewRecord{}))
		assert.EqualValues(t, 1, count(t, db, &models.PeriodRecord{}))
	})

	t.Run("views in several batches", func(t *testing.T) {
		sweeper, db, _ := setup(t)
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			analyticAt(t, db, "post", id, cutoff.AddDate(0, 0, -1))
		}
		analyticAt(t, db, "post", "f", cutoff)

		deleted, err := sweeper.PurgeOlderThan(ctx, retention.KindViews, cutoff)
		require.NoError(t, err)

		assert.EqualValues(t, 5, deleted)
		assert.EqualValues(t, 1, count(t, db, &models.ViewRecord{}))
		assert.EqualValues(t, 6, count(t, db, &models.AnalyticRecord{}))
	})

	t.Run("periods", func(t *testing.T) {
		sweeper, db, _ := setup(t)
		analyticAt(t, db, "post", "a", cutoff.Add(-time.Minute))
		analyticAt(t, db, "post", "b", cutoff)

		deleted, err := sweeper.PurgeOlderThan(ctx, retention.KindPeriods, cutoff)
		require.NoError(t, err)

		assert.EqualValues(t, 1, deleted)
		assert.EqualValues(t, 2, count(t, db, &models.ViewRecord{}))
	})

	t.Run("unknown kind", func(t *testing.T) {
		sweeper, _, _ := setup(t)

		_, err := sweeper.PurgeOlderThan(ctx, retention.Kind("sessions"), cutoff)
		assert.ErrorIs(t, err, retention.ErrUnknownKind)
	})
}

func TestPurgeOrphaned(t *testing.T) {
	ctx := context.Background()
	sweeper, db, _ := setup(t)
	now := cutoff.AddDate(0, 1, 0)

	for _, id := range []string{"1", "2", "3"} {
		analyticAt(t, db, "post", id, now)
	}
	analyticAt(t, db, "video", "1", now)
	analyticAt(t, db, "gone", "1", now)

	resolver := retention.EntityResolverFunc(func(_ context.Context, entityType string) ([]string, error) {
		switch entityType {
		case "post":
			return []string{"1", "3"}, nil
		case "video":
			return []string{"1"}, nil
		default:
			return nil, errors.New("no such table")
		}
	})

	deleted, err := sweeper.PurgeOrphaned(ctx, resolver)
	require.NoError(t, err)

	assert.EqualValues(t, 2, deleted)
	var remaining []string
	require.NoError(t, db.Model(&models.AnalyticRecord{}).Order("entity_type, entity_id").Pluck("entity_type || ':' || entity_id", &remaining).Error)
	assert.Equal(t, []string{"post:1", "post:3", "video:1"}, remaining)
	assert.EqualValues(t, 3, count(t, db, &models.ViewRecord{}))
}

func TestPurgeOrphanedManyLiveIDs(t *testing.T) {
	ctx := context.Background()
	sweeper, db, _ := setup(t)
	now := cutoff.AddDate(0, 1, 0)

	live := make([]string, 40000)
	for i := range live {
		live[i] = strconv.Itoa(i + 1)
	}
	analyticAt(t, db, "post", "1", now)
	analyticAt(t, db, "post", "40000", now)
	analyticAt(t, db, "post", "40001", now)
	analyticAt(t, db, "post", "50000", now)

	deleted, err := sweeper.PurgeOrphaned(ctx, retention.StaticResolver{"post": live})
	require.NoError(t, err)

	assert.EqualValues(t, 2, deleted)
	var remaining []string
	require.NoError(t, db.Model(&models.AnalyticRecord{}).Order("entity_id").Pluck("entity_id", &remaining).Error)
	assert.Equal(t, []string{"1", "40000"}, remaining)
}

func TestPurgeExpired(t *testing.T) {
	sweeper, db, cfg := setup(t)
	require.Equal(t, 365, cfg.RetentionViewsDays)

	now := cutoff.AddDate(2, 0, 0)
	analyticAt(t, db, "post", "ancient", now.AddDate(0, 0, -800))
	analyticAt(t, db, "post", "last-year", now.AddDate(0, 0, -400))
	analyticAt(t, db, "post", "recent", now.AddDate(0, 0, -10))

	counts, err := sweeper.PurgeExpired(context.Background(), now)
	require.NoError(t, err)

	assert.EqualValues(t, 2, counts[retention.KindViews])
	assert.EqualValues(t, 0, counts[retention.KindPeriods])
	assert.EqualValues(t, 1, counts[retention.KindAnalytics])
	assert.EqualValues(t, 2, count(t, db, &models.AnalyticRecord{}))
}

func TestParseKind(t *testing.T) {
	kind, err := retention.ParseKind("views")
	require.NoError(t, err)
	assert.Equal(t, retention.KindViews, kind)

	_, err = retention.ParseKind("everything")
	assert.ErrorIs(t, err, retention.ErrUnknownKind)
}
