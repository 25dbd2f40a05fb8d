package tracking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/models"
	"engagely/internal/tracking"
)

func TestInteractions(t *testing.T) {
	ctx := context.Background()
	actor := models.UserActor("u1")

	t.Run("likes accumulate and refresh derived metrics", func(t *testing.T) {
		f := setup(t)
		interactions := f.tracker.Interactions()

		interactions.TrackLike(ctx, post, actor)
		record := interactions.TrackLike(ctx, post, actor)

		require.NotNil(t, record)
		assert.EqualValues(t, 2, record.LikesCount)
		assert.EqualValues(t, 1, record.UniqueViewers)
		assert.Equal(t, 0.5, record.TrendScore)
		assert.EqualValues(t, 4, f.count(t, &models.PeriodRecord{}, "analytic_id = ? AND metric = ?", record.ID, "likes_count"))
	})

	t.Run("click through rate", func(t *testing.T) {
		f := setup(t)
		interactions := f.tracker.Interactions()

		for i := 0; i < 3; i++ {
			interactions.TrackImpression(ctx, post, actor)
		}
		record := interactions.TrackClick(ctx, post, actor)

		require.NotNil(t, record)
		assert.Equal(t, 33.33, record.ClickThroughRate)
	})

	t.Run("decrement clamps at zero", func(t *testing.T) {
		f := setup(t)
		interactions := f.tracker.Interactions()

		_, err := interactions.IncrementMetric(ctx, post, actor, "shares_count", 2)
		require.NoError(t, err)
		record, err := interactions.DecrementMetric(ctx, post, actor, "shares_count", 5)
		require.NoError(t, err)

		require.NotNil(t, record)
		assert.Zero(t, record.SharesCount)
	})

	t.Run("decrement without a row does nothing", func(t *testing.T) {
		f := setup(t)

		record, err := f.tracker.Interactions().DecrementMetric(ctx, post, models.VisitorActor("nobody"), "likes_count", 1)

		require.NoError(t, err)
		assert.Nil(t, record)
		assert.Zero(t, f.count(t, &models.AnalyticRecord{}))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := setup(t)
		interactions := f.tracker.Interactions()

		_, err := interactions.IncrementMetric(ctx, post, actor, "karma", 1)
		assert.ErrorIs(t, err, models.ErrUnknownMetric)

		_, err = interactions.IncrementMetric(ctx, post, actor, "unique_viewers", 1)
		assert.ErrorIs(t, err, models.ErrUnknownMetric)

		_, err = interactions.IncrementMetric(ctx, post, actor, "likes_count", 0)
		assert.ErrorIs(t, err, tracking.ErrInvalidAmount)

		_, err = interactions.IncrementMetric(ctx, post, models.Actor{}, "likes_count", 1)
		assert.ErrorIs(t, err, models.ErrUnresolvableActor)

		assert.Nil(t, interactions.TrackShare(ctx, models.EntityRef{}, actor))
	})
}
