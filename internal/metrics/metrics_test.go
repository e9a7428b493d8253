package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/metrics"
)

func TestConnectionLifecycle(t *testing.T) {
	r := metrics.NewRegistry(prometheus.NewRegistry())

	c := r.ConnectionOpened("sess-1")
	require.Equal(t, 1, r.ActiveCount())

	c.BytesIn = 100
	c.BytesOut = 50

	r.ConnectionClosed(metrics.HistoryEntry{
		SessionID: "sess-1",
		BytesIn:   c.BytesIn,
		BytesOut:  c.BytesOut,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
		Outcome:   "closed",
	})

	require.Equal(t, 0, r.ActiveCount())

	snap := r.Snapshot()
	require.EqualValues(t, 1, snap.TotalConnections)
	require.EqualValues(t, 100, snap.TotalBytesIn)
	require.EqualValues(t, 50, snap.TotalBytesOut)
	require.Equal(t, 1, snap.HistorySize)
}

func TestAuthAndBlockedCounters(t *testing.T) {
	r := metrics.NewRegistry(prometheus.NewRegistry())
	r.RecordAuthAttempt(true)
	r.RecordAuthAttempt(false)
	r.RecordBlocked()

	snap := r.Snapshot()
	require.EqualValues(t, 2, snap.AuthAttempts)
	require.EqualValues(t, 1, snap.AuthSuccesses)
	require.EqualValues(t, 1, snap.BlockedRequests)
}

func TestHistoryRingEvictsInBulk(t *testing.T) {
	r := metrics.NewRegistry(prometheus.NewRegistry())
	for i := 0; i < 10001; i++ {
		r.ConnectionClosed(metrics.HistoryEntry{SessionID: "s"})
	}
	require.LessOrEqual(t, len(r.History()), 10000)
}

func TestPrometheusCollectorGathers(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewRegistry(reg)
	r.ConnectionOpened("sess-1")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
