// Package referrers turns raw Referer headers into named traffic sources.
package referrers

import (
	"net/url"
	"strings"
)

// Medium is the kind of site a visit came from.
type Medium string

const (
	MediumDirect    Medium = "direct"
	MediumSearch    Medium = "search"
	MediumSocial    Medium = "social"
	MediumCommunity Medium = "community"
	MediumNews      Medium = "news"
	MediumEmail     Medium = "email"
	MediumShortener Medium = "shortener"
	MediumApp       Medium = "app"
	MediumReferral  Medium = "referral"
)

// DirectName names visits without a referrer.
const DirectName = "Direct"

// Source is a named referrer.
type Source struct {
	Name   string `json:"name"`
	Medium Medium `json:"medium"`
}

var knownHosts = map[Medium]map[string]string{
	MediumSearch: {
		"google.com":     "Google",
		"google.co.uk":   "Google",
		"google.de":      "Google",
		"google.fr":      "Google",
		"google.es":      "Google",
		"google.it":      "Google",
		"google.ca":      "Google",
		"google.com.au":  "Google",
		"google.co.jp":   "Google",
		"google.com.br":  "Google",
		"bing.com":       "Bing",
		"duckduckgo.com": "DuckDuckGo",
		"yahoo.com":      "Yahoo",
		"baidu.com":      "Baidu",
		"yandex.ru":      "Yandex",
		"ecosia.org":     "Ecosia",
		"kagi.com":       "Kagi",
	},
	MediumSocial: {
		"x.com":           "X/Twitter",
		"twitter.com":     "X/Twitter",
		"t.co":            "X/Twitter",
		"facebook.com":    "Facebook",
		"fb.com":          "Facebook",
		"l.facebook.com":  "Facebook",
		"lm.facebook.com": "Facebook",
		"instagram.com":   "Instagram",
		"l.instagram.com": "Instagram",
		"linkedin.com":    "LinkedIn",
		"lnkd.in":         "LinkedIn",
		"tiktok.com":      "TikTok",
		"pinterest.com":   "Pinterest",
		"reddit.com":      "Reddit",
		"old.reddit.com":  "Reddit",
		"threads.net":     "Threads",
		"bsky.app":        "Bluesky",
		"mastodon.social": "Mastodon",
		"youtube.com":     "YouTube",
		"youtu.be":        "YouTube",
		"snapchat.com":    "Snapchat",
		"discord.com":     "Discord",
		"discordapp.com":  "Discord",
		"whatsapp.com":    "WhatsApp",
		"telegram.org":    "Telegram",
		"t.me":            "Telegram",
		"slack.com":       "Slack",
	},
	MediumCommunity: {
		"news.ycombinator.com": "Hacker News",
		"hn.algolia.com":       "Hacker News",
		"lobste.rs":            "Lobsters",
		"producthunt.com":      "Product Hunt",
		"indiehackers.com":     "Indie Hackers",
		"dev.to":               "DEV Community",
		"hashnode.com":         "Hashnode",
		"medium.com":           "Medium",
		"substack.com":         "Substack",
		"hackernoon.com":       "HackerNoon",
		"slashdot.org":         "Slashdot",
		"techcrunch.com":       "TechCrunch",
		"theverge.com":         "The Verge",
		"arstechnica.com":      "Ars Technica",
		"wired.com":            "Wired",
		"github.com":           "GitHub",
		"gitlab.com":           "GitLab",
		"stackoverflow.com":    "Stack Overflow",
		"quora.com":            "Quora",
	},
	MediumNews: {
		"nytimes.com":        "NY Times",
		"washingtonpost.com": "Washington Post",
		"theguardian.com":    "The Guardian",
		"bbc.com":            "BBC",
		"bbc.co.uk":          "BBC",
		"cnn.com":            "CNN",
		"reuters.com":        "Reuters",
		"bloomberg.com":      "Bloomberg",
		"forbes.com":         "Forbes",
		"wsj.com":            "WSJ",
		"ft.com":             "Financial Times",
	},
	MediumEmail: {
		"mail.google.com":    "Gmail",
		"outlook.live.com":   "Outlook",
		"outlook.office.com": "Outlook",
		"mail.yahoo.com":     "Yahoo Mail",
		"protonmail.com":     "Proton Mail",
		"mail.proton.me":     "Proton Mail",
	},
	MediumShortener: {
		"bit.ly":      "Bitly",
		"tinyurl.com": "TinyURL",
		"goo.gl":      "Google Links",
		"ow.ly":       "Hootsuite",
	},
}

// Android apps send android-app://<package> as the referrer.
var knownApps = map[string]Source{
	"com.google.android.gm":                   {"Gmail", MediumEmail},
	"com.google.android.googlequicksearchbox": {"Google", MediumSearch},
	"com.twitter.android":                     {"X/Twitter", MediumSocial},
	"com.linkedin.android":                    {"LinkedIn", MediumSocial},
	"com.reddit.frontpage":                    {"Reddit", MediumSocial},
	"org.telegram.messenger":                  {"Telegram", MediumSocial},
	"com.slack":                               {"Slack", MediumSocial},
}

var hosts = func() map[string]Source {
	m := make(map[string]Source)
	for medium, names := range knownHosts {
		for host, name := range names {
			m[host] = Source{Name: name, Medium: medium}
		}
	}
	return m
}()

// Parse classifies a raw Referer value. An empty or unparseable referrer is
// a direct visit.
func Parse(rawReferer string) Source {
	rawReferer = strings.TrimSpace(rawReferer)
	if rawReferer == "" {
		return Source{Name: DirectName, Medium: MediumDirect}
	}

	u, err := url.Parse(rawReferer)
	if err != nil {
		return Source{Name: DirectName, Medium: MediumDirect}
	}
	if u.Scheme == "android-app" {
		if app, ok := knownApps[strings.ToLower(u.Host)]; ok {
			return app
		}
		return Source{Name: u.Host, Medium: MediumApp}
	}
	host := u.Hostname()
	if host == "" {
		// "example.com/path" without a scheme
		host, _, _ = strings.Cut(u.Path, "/")
	}
	if host == "" {
		return Source{Name: DirectName, Medium: MediumDirect}
	}
	return Lookup(host)
}

// Lookup classifies a hostname. Unknown hosts are referrals named after the
// host with "www." removed and the first letter capitalized.
func Lookup(hostname string) Source {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))

	if s, ok := hosts[hostname]; ok {
		return s
	}

	hostname = strings.TrimPrefix(hostname, "www.")
	if s, ok := hosts[hostname]; ok {
		return s
	}

	// Subdomains inherit the closest known parent
	for rest := hostname; ; {
		_, parent, found := strings.Cut(rest, ".")
		if !found || !strings.Contains(parent, ".") {
			break
		}
		if s, ok := hosts[parent]; ok {
			return s
		}
		rest = parent
	}

	return Source{Name: capitalizeFirst(hostname), Medium: MediumReferral}
}

// FriendlyName returns the display name of hostname.
func FriendlyName(hostname string) string {
	return Lookup(hostname).Name
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
