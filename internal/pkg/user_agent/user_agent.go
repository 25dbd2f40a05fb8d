package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Bot categories
const (
	CategorySearchEngine = "Search Engine"
	CategorySocialMedia  = "Social Media"
	CategoryAIAssistant  = "AI Assistant"
	CategorySEOTool      = "SEO Tool"
	CategoryMonitoring   = "Monitoring Tool"
	CategoryOther        = "Other Bot"
)

// Device names and types
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"

	TypeDesktop    = "desktop"
	TypeSmartphone = "smartphone"
	TypeTablet     = "tablet"
	TypeBot        = "bot"

	Unknown = "Unknown"
)

type UserAgent struct {
	UserAgent      string
	Browser        string
	BrowserVersion string
	Platform       string
	OS             string
	Device         string
	DeviceType     string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
	BotName        string
	BotCategory    string
}

// BotInfo names a recognised crawler.
type BotInfo struct {
	Name     string
	Category string
}

//go:embed database/bots.yml
//go:embed database/browsers.yml
//go:embed database/oss.yml
var databaseFiles embed.FS

// Browser entry structure
type BrowserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// OS entry structure
type OSEntry struct {
	Regex    string            `yaml:"regex"`
	Name     string            `yaml:"name"`
	Version  string            `yaml:"version"`
	Versions map[string]string `yaml:"versions"`
}

// Bot entry structure
type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// Compiled regex cache
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var genericBotPattern = `(?i)\b(bot|crawler|spider|scraper|checker|fetcher|monitor)\b`

var (
	parser *Parser
	once   sync.Once
)

type Parser struct {
	browsers   []BrowserEntry
	oss        []OSEntry
	bots       []BotEntry
	regexCache *RegexCache
}

func getParser() *Parser {
	once.Do(func() {
		parser = &Parser{
			regexCache: newRegexCache(),
		}
		load := func(file string, into any) {
			data, err := databaseFiles.ReadFile(file)
			if err == nil {
				err = yaml.Unmarshal(data, into)
			}
			if err != nil {
				slog.Error("Error loading user agent database", slog.String("file", file), slog.Any("error", err))
			}
		}
		load("database/browsers.yml", &parser.browsers)
		load("database/oss.yml", &parser.oss)
		load("database/bots.yml", &parser.bots)
	})
	return parser
}

func (p *Parser) parseBot(userAgent string) (BotInfo, bool) {
	if strings.TrimSpace(userAgent) == "" {
		return BotInfo{}, false
	}
	for _, bot := range p.bots {
		if regex, err := p.regexCache.get("(?i)" + bot.Regex); err == nil {
			if regex.MatchString(userAgent) {
				category := bot.Category
				if category == "" {
					category = CategoryOther
				}
				return BotInfo{Name: bot.Name, Category: category}, true
			}
		}
	}

	if regex, err := p.regexCache.get(genericBotPattern); err == nil {
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 1 {
			// Casers are stateful, so each call gets its own
			name := cases.Title(language.English).String(strings.ToLower(matches[1]))
			return BotInfo{Name: name, Category: CategoryOther}, true
		}
	}
	return BotInfo{}, false
}

func expand(template string, matches []string) string {
	out := template
	for i, match := range matches[1:] {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i+1), match)
	}
	return strings.Trim(strings.ReplaceAll(out, "_", "."), ". ")
}

func (p *Parser) parseBrowser(userAgent string) (string, string) {
	for _, entry := range p.browsers {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				return entry.Name, expand(entry.Version, matches)
			}
		}
	}
	return Unknown, ""
}

func (p *Parser) parseOS(userAgent string) (string, string) {
	for _, entry := range p.oss {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				version := expand(entry.Version, matches)
				if mapped, ok := entry.Versions[version]; ok {
					version = mapped
				}
				return entry.Name, version
			}
		}
	}
	return Unknown, ""
}

func parseDevice(userAgent string) (string, string) {
	ua := strings.ToLower(userAgent)

	// Tablets often advertise "mobile" too
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return DeviceTablet, TypeTablet
	}

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return DeviceMobile, TypeSmartphone
	}

	return DeviceDesktop, TypeDesktop
}

// Parse extracts browser, OS, device and bot details from a User-Agent header.
func Parse(userAgent string) UserAgent {
	p := getParser()

	browser, browserVersion := p.parseBrowser(userAgent)
	platform, osVersion := p.parseOS(userAgent)
	device, deviceType := parseDevice(userAgent)

	os := platform
	if osVersion != "" {
		os = platform + " " + osVersion
	}

	ua := UserAgent{
		UserAgent:      userAgent,
		Browser:        browser,
		BrowserVersion: browserVersion,
		Platform:       platform,
		OS:             os,
		Device:         device,
		DeviceType:     deviceType,
		Mobile:         deviceType == TypeSmartphone,
		Tablet:         deviceType == TypeTablet,
		Desktop:        deviceType == TypeDesktop,
	}

	if bot, ok := p.parseBot(userAgent); ok {
		ua.Bot = true
		ua.BotName = bot.Name
		ua.BotCategory = bot.Category
		ua.Device = DeviceBot
		ua.DeviceType = TypeBot
		ua.Mobile, ua.Tablet, ua.Desktop = false, false, false
	}
	return ua
}

// ClassifyBot reports whether userAgent belongs to a crawler.
func ClassifyBot(userAgent string) (BotInfo, bool) {
	return getParser().parseBot(userAgent)
}
