package routing_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/routing"
)

func mustPattern(t *testing.T, raw string) routing.CompiledPattern {
	t.Helper()
	p, err := routing.CompilePattern(raw)
	require.NoError(t, err)
	return p
}

func TestEvaluate_DefaultAllowWhenNoRuleMatches(t *testing.T) {
	e := routing.NewEngine(nil, nil)
	d := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, routing.ActionAllow, d.Action)
	require.Empty(t, d.MatchedRule)
}

func TestEvaluate_FirstMatchByPriorityWins(t *testing.T) {
	rules := []routing.Rule{
		{ID: "low", Priority: 1, Enabled: true, Pattern: mustPattern(t, "example.com"), Action: routing.ActionAllow},
		{ID: "high", Priority: 10, Enabled: true, Pattern: mustPattern(t, "example.com"), Action: routing.ActionBlock},
	}
	e := routing.NewEngine(rules, nil)
	d := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, "high", d.MatchedRule)
	require.Equal(t, routing.ActionBlock, d.Action)
}

func TestEvaluate_TiesBreakByInsertionOrder(t *testing.T) {
	rules := []routing.Rule{
		{ID: "first", Priority: 5, Enabled: true, Pattern: mustPattern(t, "example.com"), Action: routing.ActionAllow},
		{ID: "second", Priority: 5, Enabled: true, Pattern: mustPattern(t, "example.com"), Action: routing.ActionBlock},
	}
	e := routing.NewEngine(rules, nil)
	d := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, "first", d.MatchedRule)
}

func TestEvaluate_PortMembershipFiltersRule(t *testing.T) {
	rules := []routing.Rule{
		{ID: "web-only", Priority: 10, Enabled: true, Pattern: mustPattern(t, "example.com"),
			Action: routing.ActionBlock, AllowedPorts: []uint16{80, 443}},
	}
	e := routing.NewEngine(rules, nil)

	blocked := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, routing.ActionBlock, blocked.Action)

	passthrough := e.Evaluate(routing.Request{Target: "example.com", Port: 22})
	require.Equal(t, routing.ActionAllow, passthrough.Action)
	require.Empty(t, passthrough.MatchedRule)
}

func TestEvaluate_SourceIPMembership(t *testing.T) {
	prefix := netip.MustParsePrefix("192.168.1.0/24")
	rules := []routing.Rule{
		{ID: "lan-only", Priority: 10, Enabled: true, Pattern: mustPattern(t, "example.com"),
			Action: routing.ActionBlock, AllowedSourceIPs: []netip.Prefix{prefix}},
	}
	e := routing.NewEngine(rules, nil)

	in := e.Evaluate(routing.Request{Target: "example.com", Port: 443, SourceIP: netip.MustParseAddr("192.168.1.5")})
	require.Equal(t, routing.ActionBlock, in.Action)

	out := e.Evaluate(routing.Request{Target: "example.com", Port: 443, SourceIP: netip.MustParseAddr("10.0.0.5")})
	require.Equal(t, routing.ActionAllow, out.Action)
}

func TestEvaluate_UserMembershipDeniesAnonymous(t *testing.T) {
	rules := []routing.Rule{
		{ID: "alice-only", Priority: 10, Enabled: true, Pattern: mustPattern(t, "example.com"),
			Action: routing.ActionBlock, AllowedUsers: []string{"alice"}},
	}
	e := routing.NewEngine(rules, nil)

	anon := e.Evaluate(routing.Request{Target: "example.com", Port: 443, User: ""})
	require.Equal(t, routing.ActionAllow, anon.Action)

	alice := e.Evaluate(routing.Request{Target: "example.com", Port: 443, User: "alice"})
	require.Equal(t, routing.ActionBlock, alice.Action)
}

func TestEvaluate_UnknownUpstreamDowngradesToAllow(t *testing.T) {
	rules := []routing.Rule{
		{ID: "via-ghost", Priority: 10, Enabled: true, Pattern: mustPattern(t, "example.com"),
			Action: routing.ActionProxy, Upstream: "ghost"},
	}
	known := func(id string) bool { return id == "real-upstream" }
	e := routing.NewEngine(rules, known)

	d := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, routing.ActionAllow, d.Action)
	require.Contains(t, d.Reason, "unknown upstream")
}

func TestEvaluate_DisabledRuleIsSkipped(t *testing.T) {
	rules := []routing.Rule{
		{ID: "disabled", Priority: 100, Enabled: false, Pattern: mustPattern(t, "example.com"), Action: routing.ActionBlock},
	}
	e := routing.NewEngine(rules, nil)
	d := e.Evaluate(routing.Request{Target: "example.com", Port: 443})
	require.Equal(t, routing.ActionAllow, d.Action)
}
