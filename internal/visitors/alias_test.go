package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"engagely/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("is stable for the same actor", func(t *testing.T) {
		assert.Equal(t, visitors.Alias("visitor:abc"), visitors.Alias("visitor:abc"))
	})

	t.Run("has the form Adjective Noun", func(t *testing.T) {
		for _, key := range []string{"", "visitor:abc", "user:42", "special!@#$%^&*()chars"} {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(key), "key %q", key)
		}
	})

	t.Run("spreads across combinations", func(t *testing.T) {
		aliases := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			aliases[visitors.Alias(fmt.Sprintf("visitor:%d", i))] = true
		}
		assert.Greater(t, len(aliases), 100)
	})
}
