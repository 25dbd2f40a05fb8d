package geoip

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// MaxMind resolves addresses against a local GeoLite2 database.
type MaxMind struct {
	mu        sync.RWMutex
	path      string
	db        *geoip2.Reader
	hasCities bool
	countries *gountries.Query
	logger    *slog.Logger
}

// OpenMaxMind opens the database at path. It returns nil when the file is
// missing or unreadable; local geolocation is optional.
func OpenMaxMind(path string, logger *slog.Logger) *MaxMind {
	if path == "" {
		logger.Debug("GeoIP database path not configured - local geolocation disabled")
		return nil
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		logger.Debug("GeoIP database absolute path", slog.String("abs_path", absPath))
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - local geolocation disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	dbType := db.Metadata().DatabaseType
	logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", path),
		slog.String("db_type", dbType),
		slog.Int64("size_bytes", fileInfo.Size()))

	return &MaxMind{
		path:      path,
		db:        db,
		hasCities: strings.Contains(dbType, "City"),
		countries: gountries.New(),
		logger:    logger,
	}
}

func (m *MaxMind) Name() string {
	return ProviderMaxMind
}

func (m *MaxMind) Lookup(_ context.Context, addr netip.Addr) (Location, error) {
	ip := net.IP(addr.AsSlice())

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasCities {
		record, err := m.db.Country(ip)
		if err != nil {
			return Location{}, fmt.Errorf("maxmind country lookup: %w", err)
		}
		code := record.Country.IsoCode
		return m.withCountryName(Location{CountryCode: code, Country: record.Country.Names["en"]}), nil
	}

	record, err := m.db.City(ip)
	if err != nil {
		return Location{}, fmt.Errorf("maxmind city lookup: %w", err)
	}
	loc := Location{
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Zip:         record.Postal.Code,
		Lat:         record.Location.Latitude,
		Lon:         record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
		loc.RegionName = record.Subdivisions[0].Names["en"]
	}
	return m.withCountryName(loc), nil
}

// withCountryName fills a missing English country name from the ISO code.
func (m *MaxMind) withCountryName(loc Location) Location {
	if loc.Country != "" || loc.CountryCode == "" {
		return loc
	}
	if country, err := m.countries.FindCountryByAlpha(loc.CountryCode); err == nil {
		loc.Country = country.Name.Common
	}
	return loc
}

// Reload reopens the database file, e.g. after a download replaced it. The
// old reader keeps serving when the new file cannot be opened.
func (m *MaxMind) Reload() error {
	db, err := geoip2.Open(m.path)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", m.path, err)
	}

	m.mu.Lock()
	old := m.db
	m.db = db
	m.hasCities = strings.Contains(db.Metadata().DatabaseType, "City")
	m.mu.Unlock()

	m.logger.Info("GeoLite2 database reloaded successfully", slog.String("path", m.path))
	return old.Close()
}

func (m *MaxMind) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Close()
}
