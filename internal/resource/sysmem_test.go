package resource_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/resource"
)

func TestReadSystemStats_ReturnsPopulatedTotals(t *testing.T) {
	stats := resource.ReadSystemStats()
	require.Greater(t, stats.MemTotalMB, 0.0)
}

func TestLowMemoryGuard_ZeroFloorNeverTrips(t *testing.T) {
	require.False(t, resource.LowMemoryGuard(0))
}

func TestLowMemoryGuard_HundredFloorNeverTripsOnATestHost(t *testing.T) {
	require.False(t, resource.LowMemoryGuard(100.01))
}
