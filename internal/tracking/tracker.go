// Package tracking records views and interactions against trackable entities.
package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"engagely/internal/config"
	"engagely/internal/metrics"
	"engagely/internal/models"
	"engagely/internal/pkg/geoip"
	"engagely/internal/rollup"
	"engagely/internal/timeframe"
	"engagely/internal/visitors"
)

// TrackRequest is one ingestion call.
type TrackRequest struct {
	Entity    models.Trackable
	Actor     models.Actor
	SessionID string
	Request   RequestInfo

	// RequireTrackedAction restricts automatic tracking to the configured
	// tracked actions.
	RequireTrackedAction bool

	// At overrides the event time, mostly for seeding.
	At time.Time
}

// Tracker runs the ingestion pipeline: classify, count, deduplicate the view
// and refresh the view rollup.
type Tracker struct {
	cfg          *config.Config
	logger       *slog.Logger
	clock        timeframe.TimeProvider
	classifier   *Classifier
	aggregator   *Aggregator
	views        *Views
	rollup       *rollup.Engine
	interactions *Interactions
}

// NewTracker wires the pipeline over dbManager. The locator may be nil.
func NewTracker(cfg *config.Config, dbManager cartridge.DBManager, locator geoip.Locator, logger *slog.Logger) *Tracker {
	engine := rollup.NewEngine(dbManager, logger, cfg.Location())
	aggregator := NewAggregator(dbManager, logger, cfg.EngagementWeights)

	return &Tracker{
		cfg:          cfg,
		logger:       logger,
		clock:        &timeframe.DefaultTimeProvider{},
		classifier:   NewClassifier(locator, cfg.GeolocationTimeout(), logger),
		aggregator:   aggregator,
		views:        NewViews(dbManager, logger),
		rollup:       engine,
		interactions: NewInteractions(dbManager, logger, aggregator, engine),
	}
}

// WithClock replaces the wall clock.
func (t *Tracker) WithClock(clock timeframe.TimeProvider) *Tracker {
	t.clock = clock
	return t
}

// Interactions returns the recorder for likes, shares and other interactions.
func (t *Tracker) Interactions() *Interactions {
	return t.interactions
}

// Aggregator returns the per-actor aggregator.
func (t *Tracker) Aggregator() *Aggregator {
	return t.aggregator
}

// Track records req and returns the actor's analytic record, or nil when
// nothing was recorded. It never fails the caller.
func (t *Tracker) Track(ctx context.Context, scope *RequestScope, req TrackRequest) *models.AnalyticRecord {
	if !t.cfg.TrackingEnabled {
		metrics.RecordTrackOutcome(metrics.OutcomeSkipped)
		return nil
	}

	ref, err := models.ValidateEntity(req.Entity)
	if err != nil {
		return t.skip("invalid entity", slog.Any("error", err))
	}
	actor := req.Actor.Normalize()
	actorKey, err := actor.Key()
	if err != nil {
		return t.skip("unresolvable actor", slog.String("entity", ref.String()))
	}

	action := ResolveAction(req.Request)
	if action == "" {
		return t.skip("no action", slog.String("entity", ref.String()))
	}
	if req.RequireTrackedAction && !t.cfg.IsTrackedAction(action) {
		return t.skip("untracked action", slog.String("action", action))
	}

	signature := visitors.RequestSignature(ref.Type, ref.ID, action, req.Request.URL, req.SessionID, actorKey)
	if !scope.Claim(signature) {
		metrics.RecordTrackOutcome(metrics.OutcomeSuppressed)
		return nil
	}

	classification := t.classifier.Classify(ctx, req.Request)
	if classification.IsBot() && !t.cfg.TrackBots {
		return t.skip("bot traffic", slog.String("bot", classification.Agent.BotName))
	}

	at := req.At
	if at.IsZero() {
		at = t.clock.Now(time.UTC)
	}

	record := t.aggregator.RecordAction(ctx, ref, actor, ActionInput{
		Action:    action,
		Path:      req.Request.Path,
		SessionID: req.SessionID,
		IPAddress: req.Request.IPAddress,
		IsBot:     classification.IsBot(),
		At:        at,
	})
	if record == nil {
		metrics.RecordTrackOutcome(metrics.OutcomeFailed)
		return nil
	}

	if view := t.views.RecordView(ctx, record, ViewInput{
		Action:         action,
		SessionID:      req.SessionID,
		Request:        req.Request,
		Classification: classification,
		VisitedAt:      at,
	}); view == nil {
		t.logger.Warn("View was not stored", slog.String("analytic_id", record.ID))
	}

	t.rollup.UpsertAll(ctx, record.ID, "views_count", record.ViewsCount, at)

	metrics.RecordTrackOutcome(metrics.OutcomeTracked)
	return record
}

func (t *Tracker) skip(reason string, attrs ...any) *models.AnalyticRecord {
	t.logger.Debug("Tracking skipped", append([]any{slog.String("reason", reason)}, attrs...)...)
	metrics.RecordTrackOutcome(metrics.OutcomeSkipped)
	return nil
}
