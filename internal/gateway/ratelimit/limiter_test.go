package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabgate/internal/gateway/gatewaytest"
)

func TestCheckAndConsume_PingFlood(t *testing.T) {
	clock := gatewaytest.NewClock()
	l := New(clock.Now)

	for i := range 3 {
		require.True(t, l.CheckAndConsume("c1", 3, time.Minute), "message %d", i+1)
	}
	require.False(t, l.CheckAndConsume("c1", 3, time.Minute))

	clock.Advance(61 * time.Second)
	require.True(t, l.CheckAndConsume("c1", 3, time.Minute))
	require.Equal(t, 1, l.Count("c1"))
}

func TestCheckAndConsume_BlockedDoesNotCount(t *testing.T) {
	clock := gatewaytest.NewClock()
	l := New(clock.Now)

	require.True(t, l.CheckAndConsume("c1", 1, 10*time.Second))
	require.False(t, l.CheckAndConsume("c1", 1, 10*time.Second))
	countAtBlock := l.Count("c1")

	for range 100 {
		clock.Advance(50 * time.Millisecond)
		require.False(t, l.CheckAndConsume("c1", 1, 10*time.Second))
	}
	require.Equal(t, countAtBlock, l.Count("c1"))

	clock.Advance(10 * time.Second)
	require.True(t, l.CheckAndConsume("c1", 1, 10*time.Second))
}

func TestCheckAndConsume_Isolated(t *testing.T) {
	l := New(gatewaytest.NewClock().Now)

	require.True(t, l.CheckAndConsume("a", 1, time.Minute))
	require.False(t, l.CheckAndConsume("a", 1, time.Minute))
	require.True(t, l.CheckAndConsume("b", 1, time.Minute))
}

func TestRelease(t *testing.T) {
	l := New(gatewaytest.NewClock().Now)

	require.True(t, l.CheckAndConsume("a", 1, time.Minute))
	require.False(t, l.CheckAndConsume("a", 1, time.Minute))
	require.Equal(t, 1, l.Len())

	l.Release("a")
	l.Release("a")
	require.Zero(t, l.Len())
	require.True(t, l.CheckAndConsume("a", 1, time.Minute))
}
