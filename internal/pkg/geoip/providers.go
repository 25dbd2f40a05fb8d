package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"engagely/internal/metrics"
)

var (
	ErrRateLimited     = errors.New("geolocation provider rate limit reached")
	ErrNoLocation      = errors.New("geolocation provider returned no location")
	ErrUnknownProvider = errors.New("unknown geolocation provider")
)

// Provider resolves a public IP address.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, addr netip.Addr) (Location, error)
}

type endpoint struct {
	baseURL string
	path    string
	decode  func(body []byte) (Location, error)
}

// Provider names accepted in configuration.
const (
	ProviderMaxMind   = "maxmind"
	ProviderIPAPI     = "ip-api"
	ProviderIPAPICo   = "ipapi.co"
	ProviderIPWhois   = "ipwhois"
	ProviderIPAPICom  = "ipapi.com"
	ProviderFreeIPAPI = "freeipapi"
)

var endpoints = map[string]endpoint{
	ProviderIPAPI: {
		baseURL: "http://ip-api.com",
		path:    "/json/%s?fields=status,message,country,countryCode,region,regionName,city,zip,lat,lon,timezone,isp,org,as,query",
		decode:  decodeIPAPI,
	},
	ProviderIPAPICo: {
		baseURL: "https://ipapi.co",
		path:    "/%s/json/",
		decode:  decodeIPAPICo,
	},
	ProviderIPWhois: {
		baseURL: "https://ipwhois.app",
		path:    "/json/%s",
		decode:  decodeIPWhois,
	},
	ProviderIPAPICom: {
		baseURL: "http://ipapi.com",
		path:    "/ip_api.php?ip=%s",
		decode:  decodeIPAPICom,
	},
	ProviderFreeIPAPI: {
		baseURL: "https://freeipapi.com",
		path:    "/api/json/%s",
		decode:  decodeFreeIPAPI,
	},
}

// HTTPProviderNames lists the remote providers in their documented order.
func HTTPProviderNames() []string {
	return []string{ProviderIPAPI, ProviderIPAPICo, ProviderIPWhois, ProviderIPAPICom, ProviderFreeIPAPI}
}

// HTTPProvider calls a public geolocation API behind a circuit breaker and
// an outbound rate limit.
type HTTPProvider struct {
	name     string
	endpoint endpoint
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[Location]
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// HTTPProviderOptions configures one remote provider. An empty BaseURL uses
// the provider's public endpoint.
type HTTPProviderOptions struct {
	Name          string
	BaseURL       string
	RatePerMinute int
	Client        *http.Client
	Logger        *slog.Logger
}

func NewHTTPProvider(opts HTTPProviderOptions) (*HTTPProvider, error) {
	ep, ok := endpoints[opts.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, opts.Name)
	}
	if opts.BaseURL != "" {
		ep.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
		burst = max(1, opts.RatePerMinute/10)
	}

	p := &HTTPProvider{
		name:     opts.Name,
		endpoint: ep,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
	p.breaker = gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:        "geoip-" + opts.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Geolocation provider circuit changed state",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return p, nil
}

func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) Lookup(ctx context.Context, addr netip.Addr) (Location, error) {
	if !p.limiter.Allow() {
		return Location{}, ErrRateLimited
	}

	loc, err := p.breaker.Execute(func() (Location, error) {
		return p.fetch(ctx, addr)
	})
	if err != nil {
		metrics.RecordGeoProviderError(p.name)
		return Location{}, fmt.Errorf("%s: %w", p.name, err)
	}
	return loc, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, addr netip.Addr) (Location, error) {
	url := p.endpoint.baseURL + fmt.Sprintf(p.endpoint.path, addr.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "engagely-geoip/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Location{}, err
	}

	loc, err := p.endpoint.decode(body)
	if err != nil {
		return Location{}, err
	}
	if !loc.valid() {
		return Location{}, ErrNoLocation
	}
	return loc, nil
}

// rawString accepts fields some providers send as a string and others as an object.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.ID != "":
			return obj.ID
		case obj.Name != "":
			return obj.Name
		}
		return obj.Code
	}
	return ""
}

func decodeIPAPI(body []byte) (Location, error) {
	var r struct {
		Status      string  `json:"status"`
		Message     string  `json:"message"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
		Region      string  `json:"region"`
		RegionName  string  `json:"regionName"`
		City        string  `json:"city"`
		Zip         string  `json:"zip"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Timezone    string  `json:"timezone"`
		ISP         string  `json:"isp"`
		Org         string  `json:"org"`
		AS          string  `json:"as"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, err
	}
	if r.Status != "success" {
		return Location{}, fmt.Errorf("%w: %s", ErrNoLocation, r.Message)
	}
	return Location{
		Country: r.Country, CountryCode: r.CountryCode,
		Region: r.Region, RegionName: r.RegionName, City: r.City, Zip: r.Zip,
		Lat: r.Lat, Lon: r.Lon, Timezone: r.Timezone,
		ISP: r.ISP, Org: r.Org, ASName: r.AS,
	}, nil
}

func decodeIPAPICo(body []byte) (Location, error) {
	var r struct {
		Error       bool            `json:"error"`
		Reason      string          `json:"reason"`
		CountryName string          `json:"country_name"`
		CountryCode string          `json:"country_code"`
		RegionCode  string          `json:"region_code"`
		Region      string          `json:"region"`
		City        string          `json:"city"`
		Postal      string          `json:"postal"`
		Latitude    float64         `json:"latitude"`
		Longitude   float64         `json:"longitude"`
		Timezone    json.RawMessage `json:"timezone"`
		Org         string          `json:"org"`
		ASN         string          `json:"asn"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, err
	}
	if r.Error {
		return Location{}, fmt.Errorf("%w: %s", ErrNoLocation, r.Reason)
	}
	return Location{
		Country: r.CountryName, CountryCode: r.CountryCode,
		Region: r.RegionCode, RegionName: r.Region, City: r.City, Zip: r.Postal,
		Lat: r.Latitude, Lon: r.Longitude, Timezone: rawString(r.Timezone),
		ISP: r.Org, Org: r.Org, ASName: r.ASN,
	}, nil
}

func decodeIPWhois(body []byte) (Location, error) {
	var r struct {
		Success     bool            `json:"success"`
		Message     string          `json:"message"`
		Country     string          `json:"country"`
		CountryCode string          `json:"country_code"`
		Region      string          `json:"region"`
		City        string          `json:"city"`
		Postal      string          `json:"postal"`
		Latitude    float64         `json:"latitude"`
		Longitude   float64         `json:"longitude"`
		Timezone    json.RawMessage `json:"timezone"`
		ISP         string          `json:"isp"`
		Org         string          `json:"org"`
		ASN         string          `json:"asn"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, err
	}
	if !r.Success {
		return Location{}, fmt.Errorf("%w: %s", ErrNoLocation, r.Message)
	}
	return Location{
		Country: r.Country, CountryCode: r.CountryCode,
		Region: r.Region, RegionName: r.Region, City: r.City, Zip: r.Postal,
		Lat: r.Latitude, Lon: r.Longitude, Timezone: rawString(r.Timezone),
		ISP: r.ISP, Org: r.Org, ASName: r.ASN,
	}, nil
}

func decodeIPAPICom(body []byte) (Location, error) {
	var r struct {
		CountryName string          `json:"country_name"`
		CountryCode string          `json:"country_code"`
		RegionCode  string          `json:"region_code"`
		RegionName  string          `json:"region_name"`
		City        string          `json:"city"`
		Zip         string          `json:"zip"`
		Latitude    float64         `json:"latitude"`
		Longitude   float64         `json:"longitude"`
		Timezone    json.RawMessage `json:"timezone"`
		ISP         string          `json:"isp"`
		Org         string          `json:"org"`
		AS          string          `json:"as"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, err
	}
	if r.CountryCode == "" {
		return Location{}, ErrNoLocation
	}
	return Location{
		Country: r.CountryName, CountryCode: r.CountryCode,
		Region: r.RegionCode, RegionName: r.RegionName, City: r.City, Zip: r.Zip,
		Lat: r.Latitude, Lon: r.Longitude, Timezone: rawString(r.Timezone),
		ISP: r.ISP, Org: r.Org, ASName: r.AS,
	}, nil
}

func decodeFreeIPAPI(body []byte) (Location, error) {
	var r struct {
		CountryName string          `json:"countryName"`
		CountryCode string          `json:"countryCode"`
		RegionName  string          `json:"regionName"`
		CityName    string          `json:"cityName"`
		ZipCode     string          `json:"zipCode"`
		Latitude    float64         `json:"latitude"`
		Longitude   float64         `json:"longitude"`
		TimeZone    json.RawMessage `json:"timeZone"`
		ISP         string          `json:"isp"`
		Org         string          `json:"org"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return Location{}, err
	}
	return Location{
		Country: r.CountryName, CountryCode: r.CountryCode,
		Region: r.RegionName, RegionName: r.RegionName, City: r.CityName, Zip: r.ZipCode,
		Lat: r.Latitude, Lon: r.Longitude, Timezone: rawString(r.TimeZone),
		ISP: r.ISP, Org: r.Org,
	}, nil
}
