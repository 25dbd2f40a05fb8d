package user_agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"engagely/internal/pkg/user_agent"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name            string
		userAgent       string
		expectedBrowser string
		expectedOS      string
		expectedDevice  string
		expectedMobile  bool
		expectedTablet  bool
		expectedDesktop bool
	}{
		{
			name:            "Chrome on Windows",
			userAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			expectedBrowser: "Chrome",
			expectedOS:      "Windows 10",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
		{
			name:            "Safari on iPhone",
			userAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iOS 14.6",
			expectedDevice:  user_agent.DeviceMobile,
			expectedMobile:  true,
		},
		{
			name:            "Chrome on Android",
			userAgent:       "Mozilla/5.0 (Linux; Android 11; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
			expectedBrowser: "Chrome Mobile",
			expectedOS:      "Android 11",
			expectedDevice:  user_agent.DeviceMobile,
			expectedMobile:  true,
		},
		{
			name:            "Safari on iPad",
			userAgent:       "Mozilla/5.0 (iPad; CPU OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
			expectedBrowser: "Mobile Safari",
			expectedOS:      "iPadOS 14.6",
			expectedDevice:  user_agent.DeviceTablet,
			expectedTablet:  true,
		},
		{
			name:            "Firefox on Linux",
			userAgent:       "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0",
			expectedBrowser: "Firefox",
			expectedOS:      "Ubuntu",
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
		{
			name:            "empty header",
			userAgent:       "",
			expectedBrowser: user_agent.Unknown,
			expectedOS:      user_agent.Unknown,
			expectedDevice:  user_agent.DeviceDesktop,
			expectedDesktop: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := user_agent.Parse(tc.userAgent)

			assert.Equal(t, tc.expectedBrowser, result.Browser)
			assert.Equal(t, tc.expectedOS, result.OS)
			assert.Equal(t, tc.expectedDevice, result.Device)
			assert.Equal(t, tc.expectedMobile, result.Mobile)
			assert.Equal(t, tc.expectedTablet, result.Tablet)
			assert.Equal(t, tc.expectedDesktop, result.Desktop)
			assert.False(t, result.Bot)
		})
	}
}

func TestClassifyBot(t *testing.T) {
	testCases := []struct {
		name             string
		userAgent        string
		expectedBot      bool
		expectedName     string
		expectedCategory string
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true, "Googlebot", user_agent.CategorySearchEngine},
		{"googlebot image is not plain googlebot", "Googlebot-Image/1.0", true, "Googlebot-Image", user_agent.CategorySearchEngine},
		{"case insensitive", "mozilla/5.0 (compatible; bingbot/2.0)", true, "Bingbot", user_agent.CategorySearchEngine},
		{"facebook", "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)", true, "Facebook External Hit", user_agent.CategorySocialMedia},
		{"gpt", "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.0; +https://openai.com/gptbot)", true, "OpenAI GPTBot", user_agent.CategoryAIAssistant},
		{"claude", "Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)", true, "Anthropic ClaudeBot", user_agent.CategoryAIAssistant},
		{"semrush", "Mozilla/5.0 (compatible; SemrushBot/7~bl)", true, "SemrushBot", user_agent.CategorySEOTool},
		{"generic crawler keyword", "AcmeSearch crawler v2", true, "Crawler", user_agent.CategoryOther},
		{"generic monitor keyword", "Uptime MONITOR service", true, "Monitor", user_agent.CategoryOther},
		{"keyword must be a whole word", "Mozilla/5.0 robotics-dashboard", false, "", ""},
		{"browser", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0 Safari/537.36", false, "", ""},
		{"empty", "", false, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, ok := user_agent.ClassifyBot(tc.userAgent)
			assert.Equal(t, tc.expectedBot, ok)
			assert.Equal(t, tc.expectedName, info.Name)
			assert.Equal(t, tc.expectedCategory, info.Category)
		})
	}
}

func TestParseMarksBotsAsBotDevice(t *testing.T) {
	result := user_agent.Parse("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")

	assert.True(t, result.Bot)
	assert.Equal(t, user_agent.DeviceBot, result.Device)
	assert.Equal(t, user_agent.TypeBot, result.DeviceType)
	assert.Equal(t, "Googlebot", result.BotName)
	assert.Equal(t, user_agent.CategorySearchEngine, result.BotCategory)
	assert.False(t, result.Desktop)
}
