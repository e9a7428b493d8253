package ddos_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/security/ddos"
)

func TestOnConnect_FloodThresholdBans(t *testing.T) {
	cfg := ddos.DefaultConfig()
	cfg.FloodThreshold = 3
	cfg.Window = time.Minute
	cfg.BaseBan = time.Minute
	p := ddos.New(cfg)

	for i := 0; i < 3; i++ {
		d := p.OnConnect("203.0.113.5")
		require.True(t, d.Allowed)
	}
	d := p.OnConnect("203.0.113.5")
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "flood")
}

func TestPerIPConcurrentCap(t *testing.T) {
	cfg := ddos.DefaultConfig()
	cfg.MaxPerIP = 1
	cfg.FloodThreshold = 1000
	p := ddos.New(cfg)

	require.True(t, p.OnConnect("203.0.113.6").Allowed)
	p.ConnectionStarted("203.0.113.6")

	d := p.OnConnect("203.0.113.6")
	require.False(t, d.Allowed)
	require.Equal(t, cfg.BaseDelay, d.Delay, "concurrent-cap rejection carries the flat base delay, not a progressive one")

	p.ConnectionEnded("203.0.113.6")
	require.True(t, p.OnConnect("203.0.113.6").Allowed)
}

func TestCleanup_PreservesActiveConnections(t *testing.T) {
	p := ddos.New(ddos.DefaultConfig())
	require.True(t, p.OnConnect("203.0.113.10").Allowed)
	p.ConnectionStarted("203.0.113.10")

	removed := p.Cleanup(0)
	require.Equal(t, 0, removed, "active concurrent connection must block eviction")
}
