package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"engagely/internal/visitors"
)

func TestRequestSignature(t *testing.T) {
	base := visitors.RequestSignature("post", "1", "view", "https://example.com/posts/1", "sess", "visitor:abc")

	t.Run("is a stable sha256 hex digest", func(t *testing.T) {
		again := visitors.RequestSignature("post", "1", "view", "https://example.com/posts/1", "sess", "visitor:abc")
		assert.Equal(t, base, again)
		assert.Len(t, base, 64)
	})

	testCases := []struct {
		name      string
		signature string
	}{
		{"entity type", visitors.RequestSignature("page", "1", "view", "https://example.com/posts/1", "sess", "visitor:abc")},
		{"entity id", visitors.RequestSignature("post", "2", "view", "https://example.com/posts/1", "sess", "visitor:abc")},
		{"action", visitors.RequestSignature("post", "1", "like", "https://example.com/posts/1", "sess", "visitor:abc")},
		{"url", visitors.RequestSignature("post", "1", "view", "https://example.com/posts/1?ref=x", "sess", "visitor:abc")},
		{"session", visitors.RequestSignature("post", "1", "view", "https://example.com/posts/1", "other", "visitor:abc")},
		{"actor", visitors.RequestSignature("post", "1", "view", "https://example.com/posts/1", "sess", "user:abc")},
	}
	for _, tc := range testCases {
		t.Run("differs by "+tc.name, func(t *testing.T) {
			assert.NotEqual(t, base, tc.signature)
		})
	}

	t.Run("field boundaries are not ambiguous", func(t *testing.T) {
		a := visitors.RequestSignature("ab", "c", "", "", "", "")
		b := visitors.RequestSignature("a", "bc", "", "", "", "")
		assert.NotEqual(t, a, b)
	})
}

func TestBuildVisitorToken(t *testing.T) {
	t.Run("session tokens ignore the client fingerprint", func(t *testing.T) {
		a := visitors.BuildVisitorToken("sess-1", "1.1.1.1", "UA", "salt")
		b := visitors.BuildVisitorToken("sess-1", "2.2.2.2", "Other UA", "salt")
		assert.Equal(t, a, b)
		assert.Len(t, a, 32)
	})

	t.Run("fingerprint tokens depend on ip and user agent", func(t *testing.T) {
		a := visitors.BuildVisitorToken("", "1.1.1.1", "UA", "salt")
		b := visitors.BuildVisitorToken("", "2.2.2.2", "UA", "salt")
		c := visitors.BuildVisitorToken("", "1.1.1.1", "Other UA", "salt")
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
		assert.Equal(t, a, visitors.BuildVisitorToken("", "1.1.1.1", "UA", "salt"))
	})

	t.Run("salt changes every token", func(t *testing.T) {
		assert.NotEqual(t,
			visitors.BuildVisitorToken("sess-1", "", "", "salt1"),
			visitors.BuildVisitorToken("sess-1", "", "", "salt2"))
	})
}
