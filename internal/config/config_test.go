package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/config"
)

func TestDefault_PassesValidation(t *testing.T) {
	cfg, _, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 1080, cfg.Server.Port)
}

func TestLoad_OverlaysFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bindAddress: \"127.0.0.1\"\n  port: 1081\n  maxConnections: 500\n  connectionTimeout: 10s\n  handshakeTimeout: 5s\n  bufferSize: 4096\n  shutdownTimeout: 5s\nmonitoring:\n  logLevel: debug\n"), 0o644))

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Server.BindAddress)
	require.Equal(t, 1081, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Monitoring.LogLevel)
}

func TestLoad_RejectsOutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  bindAddress: \"127.0.0.1\"\n  port: 70000\n  maxConnections: 500\n  connectionTimeout: 10s\n  handshakeTimeout: 5s\n  bufferSize: 4096\n  shutdownTimeout: 5s\nmonitoring:\n  logLevel: info\n"), 0o644))

	_, _, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_LiteralEnvVarsOverrideDefaults(t *testing.T) {
	t.Setenv("SOCKS5GW_BIND_ADDR", "10.0.0.1")
	t.Setenv("SOCKS5GW_MAX_CONNECTIONS", "42")
	t.Setenv("SOCKS5GW_CONNECTION_TIMEOUT", "9s")
	t.Setenv("SOCKS5GW_BUFFER_SIZE", "8192")
	t.Setenv("SOCKS5GW_AUTH_ENABLED", "true")
	t.Setenv("SOCKS5GW_LOG_LEVEL", "debug")

	cfg, _, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.Server.BindAddress)
	require.Equal(t, 42, cfg.Server.MaxConnections)
	require.Equal(t, 9*time.Second, cfg.Server.ConnectionTimeout)
	require.Equal(t, 8192, cfg.Server.BufferSize)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "debug", cfg.Monitoring.LogLevel)
}

func TestLoad_UserCredentialEnvVars(t *testing.T) {
	t.Setenv("SOCKS5GW_USER_0_USERNAME", "alice")
	t.Setenv("SOCKS5GW_USER_0_PASSWORD", "s3cret")
	t.Setenv("SOCKS5GW_USER_1_USERNAME", "bob")
	t.Setenv("SOCKS5GW_USER_1_PASSWORD", "hunter2")
	t.Setenv("SOCKS5GW_USER_1_ENABLED", "false")

	cfg, _, err := config.Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Users, 2)
	require.Equal(t, "alice", cfg.Auth.Users[0].Username)
	require.Equal(t, "s3cret", cfg.Auth.Users[0].Password)
	require.True(t, cfg.Auth.Users[0].Enabled)
	require.Equal(t, "bob", cfg.Auth.Users[1].Username)
	require.False(t, cfg.Auth.Users[1].Enabled)
}

func TestLoad_ProxyCredentialEnvVarsOverrideMatchingUpstream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  upstreams:\n    - id: \"us-east\"\n      addr: \"proxy.example:1080\"\n      protocol: socks5\n"), 0o644))

	t.Setenv("SOCKS5GW_PROXY_0_NAME", "us-east")
	t.Setenv("SOCKS5GW_PROXY_0_USERNAME", "proxyuser")
	t.Setenv("SOCKS5GW_PROXY_0_PASSWORD", "proxypass")

	cfg, _, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Routing.Upstreams, 1)
	require.Equal(t, "proxyuser", cfg.Routing.Upstreams[0].Username)
	require.Equal(t, "proxypass", cfg.Routing.Upstreams[0].Password)
}

func TestSnapshot_SwapIsVisibleToGet(t *testing.T) {
	a := config.Default()
	b := config.Default()
	b.Server.Port = 9999

	snap := config.NewSnapshot(a)
	require.Equal(t, 1080, snap.Get().Server.Port)

	snap.Swap(b)
	require.Equal(t, 9999, snap.Get().Server.Port)
}
