package fail2ban_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/security/fail2ban"
)

func TestFifthFailureBans(t *testing.T) {
	cfg := fail2ban.DefaultConfig()
	cfg.MaxFailures = 5
	cfg.Window = 10 * time.Minute
	f := fail2ban.New(cfg)

	for i := 0; i < 4; i++ {
		d := f.RecordFailure("203.0.113.7")
		require.Equal(t, fail2ban.VerdictAllow, d.Verdict)
	}
	d := f.RecordFailure("203.0.113.7")
	require.Equal(t, fail2ban.VerdictBlock, d.Verdict)

	check := f.Check("203.0.113.7")
	require.Equal(t, fail2ban.VerdictBlock, check.Verdict)
}

func TestWhitelistShortCircuits(t *testing.T) {
	cfg := fail2ban.DefaultConfig()
	cfg.MaxFailures = 1
	cfg.Whitelist = []string{"203.0.113.9"}
	f := fail2ban.New(cfg)

	d := f.RecordFailure("203.0.113.9")
	require.Equal(t, fail2ban.VerdictAllow, d.Verdict)

	require.False(t, f.Ban("203.0.113.9", time.Hour), "whitelisted ip cannot be manually banned")
}

func TestSuccessClearsFailureWindow(t *testing.T) {
	cfg := fail2ban.DefaultConfig()
	cfg.MaxFailures = 2
	f := fail2ban.New(cfg)

	f.RecordFailure("203.0.113.11")
	f.RecordSuccess("203.0.113.11")
	// window cleared, so two more failures are needed to ban again
	require.Equal(t, fail2ban.VerdictAllow, f.RecordFailure("203.0.113.11").Verdict)
	d := f.RecordFailure("203.0.113.11")
	require.Equal(t, fail2ban.VerdictBlock, d.Verdict)
}
