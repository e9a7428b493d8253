package acl_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/geoip"
	"github.com/nabbar/socks5-gateway/internal/routing/acl"
)

func TestCheck_MatchAllWildcard(t *testing.T) {
	a, err := acl.New([]acl.Entry{{Pattern: "*"}}, nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, acl.VerdictAllow, a.Check("anything.example", 443, nil))
}

func TestCheck_AllowBeforeBlock(t *testing.T) {
	a, err := acl.New(
		[]acl.Entry{{Pattern: "good.example.com"}},
		[]acl.Entry{{Pattern: "*"}},
		nil,
		"",
	)
	require.NoError(t, err)
	require.Equal(t, acl.VerdictAllow, a.Check("good.example.com", 443, nil))
	require.Equal(t, acl.VerdictBlock, a.Check("bad.example.com", 443, nil))
}

func TestCheck_NoMatchWhenNeitherListApplies(t *testing.T) {
	a, err := acl.New([]acl.Entry{{Pattern: "good.example.com"}}, nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, acl.VerdictNoMatch, a.Check("other.example.com", 443, nil))
}

func TestCheck_DefaultPolicyAppliesOnNoMatch(t *testing.T) {
	a, err := acl.New([]acl.Entry{{Pattern: "good.example.com"}}, nil, nil, "block")
	require.NoError(t, err)
	require.Equal(t, acl.VerdictBlock, a.Check("other.example.com", 443, nil))

	a, err = acl.New([]acl.Entry{{Pattern: "good.example.com"}}, nil, nil, "allow")
	require.NoError(t, err)
	require.Equal(t, acl.VerdictAllow, a.Check("other.example.com", 443, nil))
}

func TestCheck_PortRestrictionOnlyMatchesListedPorts(t *testing.T) {
	a, err := acl.New(nil, []acl.Entry{{Pattern: "*", Ports: []uint16{25, 465}}}, nil, "")
	require.NoError(t, err)
	require.Equal(t, acl.VerdictBlock, a.Check("mail.example.com", 25, nil))
	require.Equal(t, acl.VerdictNoMatch, a.Check("mail.example.com", 443, nil))
}

func TestCheck_AllowCountryRestriction_LookupFailureBlocks(t *testing.T) {
	a, err := acl.New(
		[]acl.Entry{{Pattern: "*", Countries: []string{"FR"}}},
		nil,
		nil, // NoOp lookuper: every lookup fails
		"",
	)
	require.NoError(t, err)
	require.Equal(t, acl.VerdictBlock, a.Check("example.com", 443, net.ParseIP("203.0.113.1")))
}

func TestCheck_BlockCountryRestriction_LookupFailureDoesNotBlock(t *testing.T) {
	a, err := acl.New(
		nil,
		[]acl.Entry{{Pattern: "*", Countries: []string{"KP"}}},
		nil, // NoOp lookuper: every lookup fails
		"",
	)
	require.NoError(t, err)
	require.Equal(t, acl.VerdictNoMatch, a.Check("example.com", 443, net.ParseIP("203.0.113.1")))
}

func TestCheck_AllowCountryRestriction_MatchedCountryAllows(t *testing.T) {
	lookup := func(ip net.IP) (string, bool) { return "FR", true }
	a, err := acl.New(
		[]acl.Entry{{Pattern: "*", Countries: []string{"FR", "DE"}}},
		nil,
		geoip.FromResolver(lookup),
		"",
	)
	require.NoError(t, err)
	require.Equal(t, acl.VerdictAllow, a.Check("example.com", 443, net.ParseIP("203.0.113.1")))
}
