package tracking_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"engagely/internal/tracking"
)

func TestRequestScope(t *testing.T) {
	t.Run("claims a signature once", func(t *testing.T) {
		scope := tracking.NewRequestScope()

		assert.True(t, scope.Claim("a"))
		assert.False(t, scope.Claim("a"))
		assert.True(t, scope.Claim("b"))
		assert.Equal(t, 2, scope.Len())
	})

	t.Run("reset forgets claims", func(t *testing.T) {
		scope := tracking.NewRequestScope()
		scope.Claim("a")

		scope.Reset()

		assert.Zero(t, scope.Len())
		assert.True(t, scope.Claim("a"))
	})

	t.Run("nil scope never suppresses", func(t *testing.T) {
		var scope *tracking.RequestScope

		assert.True(t, scope.Claim("a"))
		assert.True(t, scope.Claim("a"))
		assert.Zero(t, scope.Len())
		scope.Reset()
	})

	t.Run("zero value is usable", func(t *testing.T) {
		var scope tracking.RequestScope

		assert.True(t, scope.Claim("a"))
		assert.False(t, scope.Claim("a"))
	})

	t.Run("concurrent claims", func(t *testing.T) {
		scope := tracking.NewRequestScope()
		var wins atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if scope.Claim("same") {
					wins.Add(1)
				}
				scope.Claim(fmt.Sprintf("sig-%d", i))
			}(i)
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins.Load())
		assert.Equal(t, 51, scope.Len())
	})
}

func TestResolveAction(t *testing.T) {
	testCases := []struct {
		name     string
		info     tracking.RequestInfo
		expected string
	}{
		{"explicit action wins", tracking.RequestInfo{Action: "Show", RouteName: "posts.index"}, "show"},
		{"dotted route name", tracking.RequestInfo{RouteName: "admin.posts.display"}, "display"},
		{"colon route name", tracking.RequestInfo{RouteName: "posts:view"}, "view"},
		{"bare route name", tracking.RequestInfo{RouteName: "index"}, "index"},
		{"nothing", tracking.RequestInfo{}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tracking.ResolveAction(tc.info))
		})
	}
}
