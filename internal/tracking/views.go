package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engagely/internal/models"
	"engagely/internal/pkg/geoip"
)

// ViewInput describes one view of an analytic record's entity.
type ViewInput struct {
	Action         string
	SessionID      string
	Request        RequestInfo
	Classification Classification
	VisitedAt      time.Time
}

// Views deduplicates views per entity, actor, action and path.
type Views struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

// NewViews creates a view deduplicator.
func NewViews(dbManager cartridge.DBManager, logger *slog.Logger) *Views {
	return &Views{dbManager: dbManager, logger: logger}
}

// RecordView stores the view or refreshes the existing one. It never creates
// a second row for the same key. Failures are logged and reported as nil.
func (v *Views) RecordView(ctx context.Context, record *models.AnalyticRecord, in ViewInput) *models.ViewRecord {
	if record == nil || record.IsBase() {
		return nil
	}
	if (record.UserID == nil) == (record.VisitorToken == nil) {
		v.logger.Warn("Skipping view without a single actor identity",
			slog.String("analytic_id", record.ID),
			slog.String("actor", record.ActorKey))
		return nil
	}

	visitedAt := in.VisitedAt
	if visitedAt.IsZero() {
		visitedAt = time.Now()
	}
	visitedAt = visitedAt.UTC()

	location := in.Classification.Location
	if location.CountryCode == "" {
		location = geoip.Unknown()
	}
	agent := in.Classification.Agent

	view := models.ViewRecord{
		AnalyticID:     record.ID,
		EntityType:     record.EntityType,
		EntityID:       record.EntityID,
		ActorKey:       record.ActorKey,
		ActionType:     in.Action,
		RequestPath:    in.Request.Path,
		UserID:         record.UserID,
		VisitorToken:   record.VisitorToken,
		SessionID:      in.SessionID,
		IPAddress:      in.Request.IPAddress,
		Method:         in.Request.Method,
		URL:            in.Request.URL,
		Referer:        in.Request.Referer,
		PageURL:        in.Request.PageURL,
		Languages:      in.Request.Languages,
		UserAgent:      in.Request.UserAgent,
		Headers:        models.NewJSON(in.Request.Headers),
		Device:         agent.Device,
		DeviceType:     agent.DeviceType,
		OS:             agent.OS,
		Browser:        agent.Browser,
		BrowserVersion: agent.BrowserVersion,
		IsRobot:        agent.Bot,
		RobotName:      agent.BotName,
		RobotCategory:  agent.BotCategory,
		Location:       location,
		VisitedAt:      visitedAt,
		Status:         true,
	}

	var stored models.ViewRecord
	db := v.dbManager.GetConnection().WithContext(ctx)
	err := models.PerformWrite(v.logger, db, func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
		if result.Error != nil {
			return fmt.Errorf("insert view: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			stored = view
			return nil
		}

		var existing models.ViewRecord
		if err := viewRow(tx, &view).Take(&existing).Error; err != nil {
			return fmt.Errorf("reload view: %w", err)
		}

		updates := map[string]any{
			"analytic_id":     record.ID,
			"visited_at":      visitedAt,
			"session_id":      view.SessionID,
			"ip_address":      view.IPAddress,
			"method":          view.Method,
			"url":             view.URL,
			"referer":         view.Referer,
			"page_url":        view.PageURL,
			"languages":       view.Languages,
			"user_agent":      view.UserAgent,
			"headers":         view.Headers,
			"device":          view.Device,
			"device_type":     view.DeviceType,
			"os":              view.OS,
			"browser":         view.Browser,
			"browser_version": view.BrowserVersion,
			"is_robot":        view.IsRobot,
			"robot_name":      view.RobotName,
			"robot_category":  view.RobotCategory,
			"updated_at":      time.Now().UTC(),
		}
		if !existing.HasLocation() {
			for column, value := range locationColumns(location) {
				updates[column] = value
			}
		}

		if err := viewRow(tx, &view).Updates(updates).Error; err != nil {
			return fmt.Errorf("update view: %w", err)
		}
		return viewRow(tx, &view).Take(&stored).Error
	})
	if err != nil {
		v.logger.Error("Failed to record view",
			slog.String("analytic_id", record.ID),
			slog.String("action", in.Action),
			slog.Any("error", err))
		return nil
	}
	return &stored
}

func viewRow(tx *gorm.DB, view *models.ViewRecord) *gorm.DB {
	return tx.Model(&models.ViewRecord{}).
		Where("entity_type = ? AND entity_id = ? AND actor_key = ? AND action_type = ? AND request_path = ?",
			view.EntityType, view.EntityID, view.ActorKey, view.ActionType, view.RequestPath)
}

// locationColumns is keyed by field name so the embedded columns resolve
// through the model schema.
func locationColumns(l geoip.Location) map[string]any {
	return map[string]any{
		"Country":     l.Country,
		"CountryCode": l.CountryCode,
		"Region":      l.Region,
		"RegionName":  l.RegionName,
		"City":        l.City,
		"Zip":         l.Zip,
		"Lat":         l.Lat,
		"Lon":         l.Lon,
		"Timezone":    l.Timezone,
		"ISP":         l.ISP,
		"Org":         l.Org,
		"ASName":      l.ASName,
	}
}
