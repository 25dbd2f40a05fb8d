package geoip

import (
	"net/netip"
	"strings"
)

const (
	UnknownCountry     = "Unknown"
	UnknownCountryCode = "XX"

	unknownFlag = "🏴"
)

// Location is the geolocation snapshot stored alongside a view.
type Location struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	RegionName  string  `json:"region_name"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	ASName      string  `json:"as_name"`
}

// Unknown is the sentinel used when no provider can resolve an address.
func Unknown() Location {
	return Location{Country: UnknownCountry, CountryCode: UnknownCountryCode}
}

// IsKnown reports whether the location carries a real country.
func (l Location) IsKnown() bool {
	return l.CountryCode != "" && l.CountryCode != UnknownCountryCode
}

func (l Location) valid() bool {
	return strings.TrimSpace(l.Country) != "" && strings.TrimSpace(l.CountryCode) != ""
}

// Flag returns the emoji flag of the location's country.
func (l Location) Flag() string {
	return CountryFlag(l.CountryCode)
}

// CountryFlag maps an ISO 3166 alpha-2 code to its regional indicator pair.
func CountryFlag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == UnknownCountryCode {
		return unknownFlag
	}
	var b strings.Builder
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return unknownFlag
		}
		b.WriteRune(r + 127397)
	}
	return b.String()
}

// isReserved reports whether addr can never be resolved by a public provider.
func isReserved(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		addr.IsMulticast() ||
		cgnat.Contains(addr)
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// developmentLocation returns synthetic data for loopback, private and
// reserved addresses so local traffic still shows up on the map.
func developmentLocation(addr netip.Addr) Location {
	raw := addr.String()
	switch {
	case addr.IsLoopback():
		return Location{
			Country: "Localhost", CountryCode: "LH",
			Region: "Development", RegionName: "Development Server",
			City: "Local Machine", Zip: "00000",
			Lat: 40.7128, Lon: -74.0060, Timezone: "America/New_York",
			ISP: "Local Development", Org: "Development Environment", ASName: "AS0 - Local Development",
		}
	case strings.HasPrefix(raw, "192.168."):
		return Location{
			Country: "Local Network", CountryCode: "LN",
			Region: "Private Network", RegionName: "Private Network",
			City: "Local Network", Zip: "00000",
			Lat: 34.0522, Lon: -118.2437, Timezone: "America/Los_Angeles",
			ISP: "Local Network", Org: "Private Network", ASName: "AS0 - Private Network",
		}
	case strings.HasPrefix(raw, "10."):
		return Location{
			Country: "Corporate Network", CountryCode: "CN",
			Region: "Corporate", RegionName: "Corporate Network",
			City: "Office Network", Zip: "00000",
			Lat: 37.7749, Lon: -122.4194, Timezone: "America/Los_Angeles",
			ISP: "Corporate Network", Org: "Corporate Environment", ASName: "AS0 - Corporate Network",
		}
	case strings.HasPrefix(raw, "172."):
		return Location{
			Country: "Docker Network", CountryCode: "DN",
			Region: "Container", RegionName: "Container Network",
			City: "Docker Network", Zip: "00000",
			Lat: 47.6062, Lon: -122.3321, Timezone: "America/Los_Angeles",
			ISP: "Docker Network", Org: "Container Environment", ASName: "AS0 - Container Network",
		}
	default:
		return Location{
			Country: "Development", CountryCode: "DV",
			Region: "Development", RegionName: "Development Environment",
			City: "Development Server", Zip: "00000",
			Lat: 51.5074, Lon: -0.1278, Timezone: "Europe/London",
			ISP: "Development ISP", Org: "Development Organization", ASName: "AS0 - Development",
		}
	}
}
