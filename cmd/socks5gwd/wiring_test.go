package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/config"
	"github.com/nabbar/socks5-gateway/internal/routing"
	"github.com/nabbar/socks5-gateway/internal/routing/chain"
)

func TestBuildRoutingRules_CompilesPatternsAndActions(t *testing.T) {
	specs := []config.RoutingRuleConfig{
		{ID: "block-internal", Priority: 100, Enabled: true, Pattern: "10.0.0.0/8", Action: "block"},
		{ID: "proxy-example", Priority: 50, Enabled: true, Pattern: "*.example.com", Action: "proxy", Upstream: "up1"},
		{ID: "source-restricted", Priority: 10, Enabled: true, Pattern: "*", Action: "allow", AllowedSourceIPs: []string{"192.168.1.0/24", "203.0.113.5"}},
	}

	rules, err := buildRoutingRules(specs)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	require.Equal(t, routing.ActionBlock, rules[0].Action)
	require.Equal(t, routing.ActionProxy, rules[1].Action)
	require.Equal(t, "up1", rules[1].Upstream)
	require.Len(t, rules[2].AllowedSourceIPs, 2)
}

func TestBuildRoutingRules_RejectsUnknownAction(t *testing.T) {
	_, err := buildRoutingRules([]config.RoutingRuleConfig{
		{ID: "bad", Pattern: "*", Action: "teleport"},
	})
	require.Error(t, err)
}

func TestBuildRoutingRules_RejectsBadPattern(t *testing.T) {
	_, err := buildRoutingRules([]config.RoutingRuleConfig{
		{ID: "bad", Pattern: "^[", Action: "allow"},
	})
	require.Error(t, err)
}

func TestBuildUpstreams_MapsProtocolToHopKind(t *testing.T) {
	specs := []config.UpstreamConfig{
		{ID: "s5", Addr: "10.0.0.1:1080", Protocol: "socks5"},
		{ID: "hc", Addr: "10.0.0.2:3128", Protocol: "http_connect"},
	}
	out, err := buildUpstreams(specs)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, chain.HopSOCKS5, out[0].Kind)
	require.Equal(t, chain.HopHTTPConnect, out[1].Kind)
}

func TestBuildUpstreams_RejectsUnknownProtocol(t *testing.T) {
	_, err := buildUpstreams([]config.UpstreamConfig{{ID: "x", Addr: "a:1", Protocol: "ftp"}})
	require.Error(t, err)
}

func TestLoadConfig_FlagsOverrideDefaults(t *testing.T) {
	f := &flags{
		port:           9999,
		noAuth:         true,
		maxConnections: 42,
		timeout:        "7s",
		logLevel:       "debug",
	}
	cfg, err := loadConfig(f)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.False(t, cfg.Auth.Enabled)
	require.Equal(t, 42, cfg.Server.MaxConnections)
	require.Equal(t, 7*time.Second, cfg.Server.ConnectionTimeout)
	require.Equal(t, "debug", cfg.Monitoring.LogLevel)
}

func TestLoadConfig_VerboseForcesDebugLevel(t *testing.T) {
	f := &flags{verbose: true}
	cfg, err := loadConfig(f)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Monitoring.LogLevel)
}
