package referrers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"engagely/internal/pkg/referrers"
)

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"x.com", "X/Twitter"},
		{"twitter.com", "X/Twitter"},
		{"www.google.com", "Google"},
		{"www.reddit.com", "Reddit"},
		{"m.facebook.com", "Facebook"},
		{"mobile.twitter.com", "X/Twitter"},
		{"example.com", "Example.com"},
		{"www.example.com", "Example.com"},
		{"GOOGLE.COM", "Google"},
		{"News.Ycombinator.Com", "Hacker News"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			if got := referrers.FriendlyName(tt.hostname); got != tt.expected {
				t.Errorf("FriendlyName(%q) = %q, want %q", tt.hostname, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		referer string
		want    referrers.Source
	}{
		{"empty is direct", "", referrers.Source{Name: "Direct", Medium: referrers.MediumDirect}},
		{"search engine", "https://www.google.com/search?q=go", referrers.Source{Name: "Google", Medium: referrers.MediumSearch}},
		{"community", "https://news.ycombinator.com/item?id=1", referrers.Source{Name: "Hacker News", Medium: referrers.MediumCommunity}},
		{"email", "https://mail.google.com/mail/u/0/", referrers.Source{Name: "Gmail", Medium: referrers.MediumEmail}},
		{"known app", "android-app://com.google.android.gm", referrers.Source{Name: "Gmail", Medium: referrers.MediumEmail}},
		{"unknown app", "android-app://org.example.reader", referrers.Source{Name: "org.example.reader", Medium: referrers.MediumApp}},
		{"missing scheme", "blog.example.org/posts/1", referrers.Source{Name: "Blog.example.org", Medium: referrers.MediumReferral}},
		{"with port", "http://localhost:3000/", referrers.Source{Name: "Localhost", Medium: referrers.MediumReferral}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, referrers.Parse(tc.referer))
		})
	}
}
