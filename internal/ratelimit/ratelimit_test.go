package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowBoundary(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	cur := base
	l := New(1, nil).WithClock(func() time.Time { return cur })

	ok, _ := l.Allow("ping")
	require.True(t, ok)

	ok, msg := l.Allow("ping")
	require.False(t, ok)
	require.Contains(t, msg, "rate limit exceeded for action 'ping'")

	cur = base.Add(61 * time.Second)
	ok, _ = l.Allow("ping")
	require.True(t, ok)
}

func TestOverrideZeroDisables(t *testing.T) {
	l := New(1, map[string]int{"ping": 0})
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("ping")
		require.True(t, ok)
	}
}

func TestNaturalLanguageExempt(t *testing.T) {
	l := New(1, nil)
	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("natural_language")
		require.True(t, ok)
	}
}

func TestIndependentBuckets(t *testing.T) {
	l := New(1, nil)
	ok, _ := l.Allow("ping")
	require.True(t, ok)
	ok, _ = l.Allow("open_url")
	require.True(t, ok)
}
