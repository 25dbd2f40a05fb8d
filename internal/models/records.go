package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"engagely/internal/pkg/geoip"
	"engagely/internal/timeframe"
)

var ErrUnknownMetric = errors.New("unknown metric")

// Counters are the additive engagement counters of an AnalyticRecord.
type Counters struct {
	ViewsCount    int64 `gorm:"not null;default:0" json:"viewsCount"`
	UniqueViewers int64 `gorm:"not null;default:0" json:"uniqueViewers"`
	UserViews     int64 `gorm:"not null;default:0" json:"userViews"`
	PublicViews   int64 `gorm:"not null;default:0" json:"publicViews"`
	BotViews      int64 `gorm:"not null;default:0" json:"botViews"`
	HumanViews    int64 `gorm:"not null;default:0" json:"humanViews"`

	ImpressionsCount int64 `gorm:"not null;default:0" json:"impressionsCount"`
	LikesCount       int64 `gorm:"not null;default:0" json:"likesCount"`
	SharesCount      int64 `gorm:"not null;default:0" json:"sharesCount"`
	VotesCount       int64 `gorm:"not null;default:0" json:"votesCount"`
	FollowsCount     int64 `gorm:"not null;default:0" json:"followsCount"`
	RepliesCount     int64 `gorm:"not null;default:0" json:"repliesCount"`
	ComplaintsCount  int64 `gorm:"not null;default:0" json:"complaintsCount"`
	BookmarksCount   int64 `gorm:"not null;default:0" json:"bookmarksCount"`
	ClicksCount      int64 `gorm:"not null;default:0" json:"clicksCount"`
	CommentsCount    int64 `gorm:"not null;default:0" json:"commentsCount"`

	MessagesCount      int64 `gorm:"not null;default:0" json:"messagesCount"`
	ChatsCount         int64 `gorm:"not null;default:0" json:"chatsCount"`
	ContactsCount      int64 `gorm:"not null;default:0" json:"contactsCount"`
	WishlistsCount     int64 `gorm:"not null;default:0" json:"wishlistsCount"`
	ListingsCount      int64 `gorm:"not null;default:0" json:"listingsCount"`
	SubscriptionsCount int64 `gorm:"not null;default:0" json:"subscriptionsCount"`
	UsersCount         int64 `gorm:"not null;default:0" json:"usersCount"`
	SellersCount       int64 `gorm:"not null;default:0" json:"sellersCount"`
	CartitemsCount     int64 `gorm:"not null;default:0" json:"cartitemsCount"`
	CheckoutsCount     int64 `gorm:"not null;default:0" json:"checkoutsCount"`
	PaymentsCount      int64 `gorm:"not null;default:0" json:"paymentsCount"`
	OrdersCount        int64 `gorm:"not null;default:0" json:"ordersCount"`
	BrandsCount        int64 `gorm:"not null;default:0" json:"brandsCount"`
	ShopsCount         int64 `gorm:"not null;default:0" json:"shopsCount"`
	ArticlesCount      int64 `gorm:"not null;default:0" json:"articlesCount"`
	PostsCount         int64 `gorm:"not null;default:0" json:"postsCount"`
	VideoCount         int64 `gorm:"not null;default:0" json:"videoCount"`
}

type counterField struct {
	column string
	ptr    func(c *Counters) *int64
}

// counterFields maps column names to struct fields. unique_viewers is listed
// first and is the only counter that is not summed by the base aggregate.
var counterFields = []counterField{
	{"unique_viewers", func(c *Counters) *int64 { return &c.UniqueViewers }},
	{"views_count", func(c *Counters) *int64 { return &c.ViewsCount }},
	{"user_views", func(c *Counters) *int64 { return &c.UserViews }},
	{"public_views", func(c *Counters) *int64 { return &c.PublicViews }},
	{"bot_views", func(c *Counters) *int64 { return &c.BotViews }},
	{"human_views", func(c *Counters) *int64 { return &c.HumanViews }},
	{"impressions_count", func(c *Counters) *int64 { return &c.ImpressionsCount }},
	{"likes_count", func(c *Counters) *int64 { return &c.LikesCount }},
	{"shares_count", func(c *Counters) *int64 { return &c.SharesCount }},
	{"votes_count", func(c *Counters) *int64 { return &c.VotesCount }},
	{"follows_count", func(c *Counters) *int64 { return &c.FollowsCount }},
	{"replies_count", func(c *Counters) *int64 { return &c.RepliesCount }},
	{"complaints_count", func(c *Counters) *int64 { return &c.ComplaintsCount }},
	{"bookmarks_count", func(c *Counters) *int64 { return &c.BookmarksCount }},
	{"clicks_count", func(c *Counters) *int64 { return &c.ClicksCount }},
	{"comments_count", func(c *Counters) *int64 { return &c.CommentsCount }},
	{"messages_count", func(c *Counters) *int64 { return &c.MessagesCount }},
	{"chats_count", func(c *Counters) *int64 { return &c.ChatsCount }},
	{"contacts_count", func(c *Counters) *int64 { return &c.ContactsCount }},
	{"wishlists_count", func(c *Counters) *int64 { return &c.WishlistsCount }},
	{"listings_count", func(c *Counters) *int64 { return &c.ListingsCount }},
	{"subscriptions_count", func(c *Counters) *int64 { return &c.SubscriptionsCount }},
	{"users_count", func(c *Counters) *int64 { return &c.UsersCount }},
	{"sellers_count", func(c *Counters) *int64 { return &c.SellersCount }},
	{"cartitems_count", func(c *Counters) *int64 { return &c.CartitemsCount }},
	{"checkouts_count", func(c *Counters) *int64 { return &c.CheckoutsCount }},
	{"payments_count", func(c *Counters) *int64 { return &c.PaymentsCount }},
	{"orders_count", func(c *Counters) *int64 { return &c.OrdersCount }},
	{"brands_count", func(c *Counters) *int64 { return &c.BrandsCount }},
	{"shops_count", func(c *Counters) *int64 { return &c.ShopsCount }},
	{"articles_count", func(c *Counters) *int64 { return &c.ArticlesCount }},
	{"posts_count", func(c *Counters) *int64 { return &c.PostsCount }},
	{"video_count", func(c *Counters) *int64 { return &c.VideoCount }},
}

// AdditiveCounterColumns lists every counter the base aggregate sums.
func AdditiveCounterColumns() []string {
	cols := make([]string, 0, len(counterFields)-1)
	for _, f := range counterFields[1:] {
		cols = append(cols, f.column)
	}
	return cols
}

// IsCounter reports whether metric names a counter column.
func IsCounter(metric string) bool {
	for _, f := range counterFields {
		if f.column == metric {
			return true
		}
	}
	return false
}

// Get returns the value of the named counter.
func (c *Counters) Get(metric string) (int64, error) {
	for _, f := range counterFields {
		if f.column == metric {
			return *f.ptr(c), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
}

// Set overwrites the named counter.
func (c *Counters) Set(metric string, value int64) error {
	for _, f := range counterFields {
		if f.column == metric {
			*f.ptr(c) = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
}

// Map returns every counter keyed by column name.
func (c *Counters) Map() map[string]int64 {
	out := make(map[string]int64, len(counterFields))
	for _, f := range counterFields {
		out[f.column] = *f.ptr(c)
	}
	return out
}

// Audit records who moved a record through its moderation states.
type Audit struct {
	CreatedBy  *string    `gorm:"size:64" json:"createdBy,omitempty"`
	UpdatedBy  *string    `gorm:"size:64" json:"updatedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy *string    `gorm:"size:64" json:"approvedBy,omitempty"`
	RejectedAt *time.Time `json:"rejectedAt,omitempty"`
	RejectedBy *string    `gorm:"size:64" json:"rejectedBy,omitempty"`
	RestoredAt *time.Time `json:"restoredAt,omitempty"`
	RestoredBy *string    `gorm:"size:64" json:"restoredBy,omitempty"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	ReadBy     *string    `gorm:"size:64" json:"readBy,omitempty"`
}

// AnalyticRecord holds the counters of one actor on one entity, or the base
// aggregate of all actors when ActorKey is BaseActorKey.
type AnalyticRecord struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	EntityType   string  `gorm:"size:191;not null;uniqueIndex:idx_analytics_actor_unique,priority:1;index:idx_analytics_entity,priority:1" json:"entityType"`
	EntityID     string  `gorm:"size:64;not null;uniqueIndex:idx_analytics_actor_unique,priority:2;index:idx_analytics_entity,priority:2" json:"entityId"`
	ActorKey     string  `gorm:"size:255;not null;uniqueIndex:idx_analytics_actor_unique,priority:3" json:"actorKey"`
	UserID       *string `gorm:"size:64;index" json:"userId,omitempty"`
	VisitorToken *string `gorm:"size:255;index" json:"visitorToken,omitempty"`
	SessionID    string  `gorm:"size:255;index" json:"sessionId,omitempty"`
	IPAddress    string  `gorm:"size:45;index" json:"ipAddress,omitempty"`
	ActionType   string  `gorm:"size:64;index" json:"actionType"`
	RequestPath  string  `gorm:"type:text" json:"requestPath"`

	Counters `gorm:"embedded"`

	ClickThroughRate  float64 `gorm:"not null;default:0" json:"clickThroughRate"`
	TrendScore        float64 `gorm:"not null;default:0;index" json:"trendScore"`
	ReactionCounts    int64   `gorm:"not null;default:0" json:"reactionCounts"`
	ContributorsCount int64   `gorm:"not null;default:0" json:"contributorsCount"`

	Status         bool       `gorm:"not null;default:true" json:"status"`
	Locked         bool       `gorm:"not null;default:false" json:"locked"`
	LastActivityAt *time.Time `gorm:"index" json:"lastActivityAt,omitempty"`

	Audit `gorm:"embedded"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (AnalyticRecord) TableName() string { return "analytics" }

// BeforeCreate assigns a UUID and UTC timestamps.
func (a *AnalyticRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	stampUTC(&a.CreatedAt, &a.UpdatedAt)
	return nil
}

// IsBase reports whether this is the actor-less aggregate row.
func (a *AnalyticRecord) IsBase() bool {
	return a.ActorKey == BaseActorKey
}

// IsAuthenticated reports whether the row belongs to a known user.
func (a *AnalyticRecord) IsAuthenticated() bool {
	return a.UserID != nil
}

// Ref returns the entity the record belongs to.
func (a *AnalyticRecord) Ref() EntityRef {
	return EntityRef{Type: a.EntityType, ID: a.EntityID}
}

// ViewRecord is the deduplicated view of one actor on one entity, action and path.
type ViewRecord struct {
	ID         string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AnalyticID string          `gorm:"type:varchar(36);not null;index" json:"analyticId"`
	Analytic   *AnalyticRecord `gorm:"foreignKey:AnalyticID;constraint:OnDelete:CASCADE" json:"-"`

	EntityType   string  `gorm:"size:191;not null;uniqueIndex:idx_views_dedup,priority:1" json:"entityType"`
	EntityID     string  `gorm:"size:64;not null;uniqueIndex:idx_views_dedup,priority:2" json:"entityId"`
	ActorKey     string  `gorm:"size:255;not null;uniqueIndex:idx_views_dedup,priority:3" json:"actorKey"`
	ActionType   string  `gorm:"size:64;not null;uniqueIndex:idx_views_dedup,priority:4" json:"actionType"`
	RequestPath  string  `gorm:"type:text;not null;uniqueIndex:idx_views_dedup,priority:5" json:"requestPath"`
	UserID       *string `gorm:"size:64;index" json:"userId,omitempty"`
	VisitorToken *string `gorm:"size:255;index" json:"visitorToken,omitempty"`
	SessionID    string  `gorm:"size:255;index" json:"sessionId,omitempty"`
	IPAddress    string  `gorm:"size:45;index" json:"ipAddress,omitempty"`

	Method    string `gorm:"size:16" json:"method"`
	URL       string `gorm:"type:text" json:"url"`
	Referer   string `gorm:"type:text" json:"referer,omitempty"`
	PageURL   string `gorm:"type:text" json:"pageUrl,omitempty"`
	Languages string `gorm:"size:255" json:"languages,omitempty"`
	UserAgent string `gorm:"type:text" json:"userAgent,omitempty"`
	Headers   JSON   `gorm:"type:text" json:"headers,omitempty"`

	Device         string `gorm:"size:64;index" json:"device"`
	DeviceType     string `gorm:"size:32;index" json:"deviceType"`
	OS             string `gorm:"size:64;index" json:"os"`
	Browser        string `gorm:"size:64;index" json:"browser"`
	BrowserVersion string `gorm:"size:32" json:"browserVersion,omitempty"`
	IsRobot        bool   `gorm:"not null;default:false;index" json:"isRobot"`
	RobotName      string `gorm:"size:128" json:"robotName,omitempty"`
	RobotCategory  string `gorm:"size:64" json:"robotCategory,omitempty"`

	geoip.Location `gorm:"embedded"`

	VisitedAt time.Time `gorm:"not null;index" json:"visitedAt"`
	Status    bool      `gorm:"not null;default:true" json:"status"`
	Locked    bool      `gorm:"not null;default:false" json:"locked"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ViewRecord) TableName() string { return "views" }

// BeforeCreate assigns a UUID and UTC timestamps.
func (v *ViewRecord) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	stampUTC(&v.CreatedAt, &v.UpdatedAt)
	return nil
}

// HasLocation reports whether a real geolocation has been stored.
func (v *ViewRecord) HasLocation() bool {
	return v.Location.IsKnown()
}

// Growth indicators
const (
	GrowthPositive = "positive"
	GrowthNegative = "negative"
	GrowthNeutral  = "neutral"
)

// Growth thresholds used by the trending and declining scopes.
const (
	TrendingGrowthThreshold  = 10.0
	DecliningGrowthThreshold = -5.0
)

// PeriodRecord is the snapshot of one metric of one AnalyticRecord within a
// calendar bucket.
type PeriodRecord struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	AnalyticID string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_periods_unique,priority:1" json:"analyticId"`
	Analytic   *AnalyticRecord `gorm:"foreignKey:AnalyticID;constraint:OnDelete:CASCADE" json:"-"`

	Metric      string                `gorm:"size:64;not null;uniqueIndex:idx_periods_unique,priority:2" json:"metric"`
	Granularity timeframe.Granularity `gorm:"size:16;not null;uniqueIndex:idx_periods_unique,priority:3" json:"granularity"`
	PeriodStart time.Time             `gorm:"not null;uniqueIndex:idx_periods_unique,priority:4;index" json:"periodStart"`
	PeriodEnd   time.Time             `gorm:"not null" json:"periodEnd"`

	Value         int64    `gorm:"not null;default:0" json:"value"`
	PreviousValue int64    `gorm:"not null;default:0" json:"previousValue"`
	GrowthRate    *float64 `gorm:"index" json:"growthRate"`

	Status    bool      `gorm:"not null;default:true" json:"status"`
	Locked    bool      `gorm:"not null;default:false" json:"locked"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (PeriodRecord) TableName() string { return "periods" }

// BeforeCreate stamps UTC timestamps.
func (p *PeriodRecord) BeforeCreate(tx *gorm.DB) error {
	stampUTC(&p.CreatedAt, &p.UpdatedAt)
	return nil
}

// Label names the bucket in loc, e.g. "Week of Jan 5, 2026".
func (p *PeriodRecord) Label(loc *time.Location) string {
	return timeframe.Label(p.PeriodStart.In(loc), p.Granularity)
}

// FormattedGrowth renders the growth rate with a sign, or N/A when unset.
func (p *PeriodRecord) FormattedGrowth() string {
	if p.GrowthRate == nil {
		return "N/A"
	}
	if *p.GrowthRate > 0 {
		return fmt.Sprintf("+%.2f%%", *p.GrowthRate)
	}
	return fmt.Sprintf("%.2f%%", *p.GrowthRate)
}

// GrowthIndicator classifies the growth rate.
func (p *PeriodRecord) GrowthIndicator() string {
	switch {
	case p.GrowthRate == nil || *p.GrowthRate == 0:
		return GrowthNeutral
	case *p.GrowthRate > 0:
		return GrowthPositive
	default:
		return GrowthNegative
	}
}

// DurationDays is the number of calendar days the bucket spans.
func (p *PeriodRecord) DurationDays() int {
	return int(math.Floor(p.PeriodEnd.Sub(p.PeriodStart).Hours()/24)) + 1
}

func stampUTC(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	} else {
		*created = created.UTC()
	}
	if updated.IsZero() {
		*updated = *created
	}
}
