package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"engagely/internal/models"
	"engagely/internal/visitors"
)

// TopViewer is an actor ranked by views. Anonymous actors are shown by alias.
type TopViewer struct {
	Name            string     `json:"name"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	Views           int64      `json:"views"`
	LastActivityAt  *time.Time `json:"lastActivityAt,omitempty"`
}

// UniqueViewerStats counts the distinct audiences of an entity.
type UniqueViewerStats struct {
	UniqueViewers      int64       `json:"uniqueViewers"`
	AuthenticatedUsers int64       `json:"authenticatedUsers"`
	VisitorTokens      int64       `json:"visitorTokens"`
	Sessions           int64       `json:"sessions"`
	IPAddresses        int64       `json:"ipAddresses"`
	AuthenticatedViews int64       `json:"authenticatedViews"`
	GuestViews         int64       `json:"guestViews"`
	TopViewers         []TopViewer `json:"topViewers"`
}

// GetUniqueViewerStats counts distinct users, visitor tokens, sessions and IPs
// over the views of the entity.
func GetUniqueViewerStats(db *gorm.DB, params EntityScopedQueryParams) (*UniqueViewerStats, error) {
	where, args := params.viewScope()

	var stats UniqueViewerStats
	query := fmt.Sprintf(`
    SELECT
        COUNT(DISTINCT actor_key) as unique_viewers,
        COUNT(DISTINCT user_id) as authenticated_users,
        COUNT(DISTINCT visitor_token) as visitor_tokens,
        COUNT(DISTINCT NULLIF(session_id, '')) as sessions,
        COUNT(DISTINCT NULLIF(ip_address, '')) as ip_addresses,
        COALESCE(SUM(CASE WHEN user_id IS NOT NULL THEN 1 ELSE 0 END), 0) as authenticated_views,
        COALESCE(SUM(CASE WHEN user_id IS NULL THEN 1 ELSE 0 END), 0) as guest_views
    FROM views
    WHERE %s
    `, where)
	if err := db.Raw(query, args...).Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("error fetching viewer stats: %w", err)
	}

	var actors []models.AnalyticRecord
	if err := db.Where("entity_type = ? AND entity_id = ? AND actor_key <> ? AND status = 1",
		params.Ref.Type, params.Ref.ID, models.BaseActorKey).
		Order("views_count DESC, actor_key ASC").
		Limit(params.limit()).
		Find(&actors).Error; err != nil {
		return nil, fmt.Errorf("error fetching top viewers: %w", err)
	}

	stats.TopViewers = make([]TopViewer, len(actors))
	for i, a := range actors {
		name := visitors.Alias(a.ActorKey)
		if a.UserID != nil {
			name = "User " + *a.UserID
		}
		stats.TopViewers[i] = TopViewer{
			Name:            name,
			IsAuthenticated: a.IsAuthenticated(),
			Views:           a.ViewsCount,
			LastActivityAt:  a.LastActivityAt,
		}
	}
	return &stats, nil
}
