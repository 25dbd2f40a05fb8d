package analytics

import (
	"fmt"
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"engagely/internal/pkg/geoip"
)

var countries = gountries.New()

// groupViews counts the views of the entity grouped by column. Only columns
// of the views table may be passed.
func groupViews(db *gorm.DB, params EntityScopedQueryParams, column, extra string) ([]MetricCountResult, error) {
	where, args := params.viewScope()
	if extra != "" {
		where += " AND " + extra
	}

	var rawResults []struct {
		Name  string
		Count int64
	}
	query := fmt.Sprintf(`
    SELECT
        COALESCE(NULLIF(%[1]s, ''), 'Unknown') as name,
        COUNT(*) as count
    FROM views
    WHERE %[2]s
    GROUP BY name
    ORDER BY count DESC, name ASC
    LIMIT ?
    `, column, where)

	if err := db.Raw(query, append(args, params.limit())...).Scan(&rawResults).Error; err != nil {
		return nil, fmt.Errorf("error grouping views by %s: %w", column, err)
	}

	results := make([]MetricCountResult, len(rawResults))
	for i, r := range rawResults {
		results[i] = MetricCountResult{Name: r.Name, Count: r.Count}
	}
	return results, nil
}

// GetBrowserBreakdown counts human views per browser.
func GetBrowserBreakdown(db *gorm.DB, params EntityScopedQueryParams) ([]MetricCountResult, error) {
	return groupViews(db, params, "browser", "is_robot = 0")
}

// GetOSBreakdown counts human views per operating system.
func GetOSBreakdown(db *gorm.DB, params EntityScopedQueryParams) ([]MetricCountResult, error) {
	return groupViews(db, params, "os", "is_robot = 0")
}

// GetDeviceBreakdown counts views per device, bots included.
func GetDeviceBreakdown(db *gorm.DB, params EntityScopedQueryParams) ([]MetricCountResult, error) {
	return groupViews(db, params, "device", "")
}

// BotBreakdown groups crawler views by bot and by category.
type BotBreakdown struct {
	ByName     []MetricCountResult `json:"byName"`
	ByCategory []MetricCountResult `json:"byCategory"`
	Total      int64               `json:"total"`
}

// GetBotBreakdown counts crawler views.
func GetBotBreakdown(db *gorm.DB, params EntityScopedQueryParams) (*BotBreakdown, error) {
	byName, err := groupViews(db, params, "robot_name", "is_robot = 1")
	if err != nil {
		return nil, err
	}
	byCategory, err := groupViews(db, params, "robot_category", "is_robot = 1")
	if err != nil {
		return nil, err
	}

	breakdown := &BotBreakdown{ByName: byName, ByCategory: byCategory}
	for _, c := range byCategory {
		breakdown.Total += c.Count
	}
	return breakdown, nil
}

// CountryCount is a country with its view count.
type CountryCount struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Flag  string `json:"flag"`
	Count int64  `json:"count"`
}

// GeoBreakdown groups views by country and city.
type GeoBreakdown struct {
	Countries []CountryCount      `json:"countries"`
	Cities    []MetricCountResult `json:"cities"`
}

// GetGeoBreakdown counts views per country and per city. Country names are
// normalised from the ISO code.
func GetGeoBreakdown(db *gorm.DB, params EntityScopedQueryParams) (*GeoBreakdown, error) {
	where, args := params.viewScope()

	var rawCountries []struct {
		Code    string
		Country string
		Count   int64
	}
	query := fmt.Sprintf(`
    SELECT
        UPPER(COALESCE(NULLIF(country_code, ''), '%[1]s')) as code,
        MAX(country) as country,
        COUNT(*) as count
    FROM views
    WHERE %[2]s
    GROUP BY code
    ORDER BY count DESC, code ASC
    LIMIT ?
    `, geoip.UnknownCountryCode, where)
	if err := db.Raw(query, append(args, params.limit())...).Scan(&rawCountries).Error; err != nil {
		return nil, fmt.Errorf("error fetching countries: %w", err)
	}

	cities, err := groupViews(db, params, "city", "city <> ''")
	if err != nil {
		return nil, err
	}

	breakdown := &GeoBreakdown{Countries: make([]CountryCount, len(rawCountries)), Cities: cities}
	for i, r := range rawCountries {
		breakdown.Countries[i] = CountryCount{
			Code:  r.Code,
			Name:  countryName(r.Code, r.Country),
			Flag:  geoip.CountryFlag(r.Code),
			Count: r.Count,
		}
	}
	return breakdown, nil
}

func countryName(code, stored string) string {
	if code == geoip.UnknownCountryCode {
		return geoip.UnknownCountry
	}
	if country, err := countries.FindCountryByAlpha(code); err == nil {
		return country.Name.Common
	}
	if strings.TrimSpace(stored) == "" {
		return geoip.UnknownCountry
	}
	return cases.Title(language.English).String(strings.ToLower(stored))
}
