package routing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/routing"
)

func compile(t *testing.T, raw string) routing.CompiledPattern {
	t.Helper()
	p, err := routing.CompilePattern(raw)
	require.NoError(t, err)
	return p
}

func TestCompilePattern_CIDR(t *testing.T) {
	p := compile(t, "10.0.0.0/8")
	require.Equal(t, routing.PatternIPOrCIDR, p.Kind)
	require.True(t, p.MatchTarget("10.1.2.3"))
	require.False(t, p.MatchTarget("11.0.0.1"))
	require.False(t, p.MatchTarget("example.com"))
}

func TestCompilePattern_ExactIP(t *testing.T) {
	p := compile(t, "198.51.100.1")
	require.Equal(t, routing.PatternExact, p.Kind)
	require.True(t, p.MatchTarget("198.51.100.1"))
	require.False(t, p.MatchTarget("198.51.100.2"))
}

func TestCompilePattern_ExactDomain(t *testing.T) {
	p := compile(t, "example.com")
	require.Equal(t, routing.PatternExact, p.Kind)
	require.True(t, p.MatchTarget("example.com"))
	require.False(t, p.MatchTarget("sub.example.com"))
	require.False(t, p.MatchTarget("10.0.0.1"))
}

func TestCompilePattern_DomainSuffix(t *testing.T) {
	p := compile(t, ".example.com")
	require.Equal(t, routing.PatternDomainSuffix, p.Kind)
	require.True(t, p.MatchTarget("example.com"))
	require.True(t, p.MatchTarget("api.example.com"))
	require.False(t, p.MatchTarget("notexample.com"))
}

func TestCompilePattern_SubdomainWildcard(t *testing.T) {
	p := compile(t, "*.example.com")
	require.Equal(t, routing.PatternSubdomainWildcard, p.Kind)
	require.True(t, p.MatchTarget("example.com"))
	require.True(t, p.MatchTarget("deep.sub.example.com"))
	require.False(t, p.MatchTarget("otherexample.com"))
}

func TestCompilePattern_Regex(t *testing.T) {
	p := compile(t, `^api-\d+\.example\.com$`)
	require.Equal(t, routing.PatternRegex, p.Kind)
	require.True(t, p.MatchTarget("api-42.example.com"))
	require.False(t, p.MatchTarget("api-x.example.com"))
}

func TestCompilePattern_Glob(t *testing.T) {
	p := compile(t, "*.cdn.example.com")
	// leading "*." is claimed by SubdomainWildcard before glob is tried.
	require.Equal(t, routing.PatternSubdomainWildcard, p.Kind)

	g := compile(t, "media*.example.com")
	require.Equal(t, routing.PatternGlob, g.Kind)
	require.True(t, g.MatchTarget("media1.example.com"))
	require.False(t, g.MatchTarget("video1.example.com"))
}
