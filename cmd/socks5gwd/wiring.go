/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package main

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/nabbar/socks5-gateway/internal/auth"
	"github.com/nabbar/socks5-gateway/internal/config"
	"github.com/nabbar/socks5-gateway/internal/gateway"
	"github.com/nabbar/socks5-gateway/internal/geoip"
	"github.com/nabbar/socks5-gateway/internal/routing"
	"github.com/nabbar/socks5-gateway/internal/routing/acl"
	"github.com/nabbar/socks5-gateway/internal/routing/chain"
	"github.com/nabbar/socks5-gateway/internal/security/ddos"
	"github.com/nabbar/socks5-gateway/internal/security/fail2ban"
	"github.com/nabbar/socks5-gateway/internal/security/ratelimit"
)

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

// buildRoutingRules compiles the on-disk routing rule configs into the
// routing engine's runtime Rule type, failing fast on the first bad
// pattern, CIDR, or action so misconfiguration never reaches the listener.
func buildRoutingRules(specs []config.RoutingRuleConfig) ([]routing.Rule, error) {
	rules := make([]routing.Rule, 0, len(specs))
	for _, s := range specs {
		pattern, err := routing.CompilePattern(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("routing rule %q: %w", s.ID, err)
		}

		action, err := parseAction(s.Action)
		if err != nil {
			return nil, fmt.Errorf("routing rule %q: %w", s.ID, err)
		}

		prefixes := make([]netip.Prefix, 0, len(s.AllowedSourceIPs))
		for _, raw := range s.AllowedSourceIPs {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				if addr, addrErr := netip.ParseAddr(raw); addrErr == nil {
					p = netip.PrefixFrom(addr, addr.BitLen())
				} else {
					return nil, fmt.Errorf("routing rule %q: invalid allowedSourceIPs entry %q: %w", s.ID, raw, err)
				}
			}
			prefixes = append(prefixes, p)
		}

		rules = append(rules, routing.Rule{
			ID:               s.ID,
			Priority:         s.Priority,
			Enabled:          s.Enabled,
			Pattern:          pattern,
			Action:           action,
			Upstream:         s.Upstream,
			ProxyChain:       s.ProxyChain,
			RedirectAddr:     s.RedirectAddr,
			AllowedPorts:     s.AllowedPorts,
			AllowedSourceIPs: prefixes,
			AllowedUsers:     s.AllowedUsers,
		})
	}
	return rules, nil
}

func parseAction(raw string) (routing.Action, error) {
	switch raw {
	case "allow":
		return routing.ActionAllow, nil
	case "block":
		return routing.ActionBlock, nil
	case "redirect":
		return routing.ActionRedirect, nil
	case "proxy":
		return routing.ActionProxy, nil
	case "proxy_chain":
		return routing.ActionProxyChain, nil
	default:
		return 0, fmt.Errorf("unknown action %q", raw)
	}
}

// buildUpstreams adapts the configured upstream list to the dialer's
// UpstreamSpec, translating the on-disk protocol name to a chain.HopKind.
func buildUpstreams(specs []config.UpstreamConfig) ([]gateway.UpstreamSpec, error) {
	out := make([]gateway.UpstreamSpec, 0, len(specs))
	for _, s := range specs {
		var kind chain.HopKind
		switch s.Protocol {
		case "socks5":
			kind = chain.HopSOCKS5
		case "http_connect":
			kind = chain.HopHTTPConnect
		default:
			return nil, fmt.Errorf("upstream %q: unknown protocol %q", s.ID, s.Protocol)
		}
		out = append(out, gateway.UpstreamSpec{
			ID:       s.ID,
			Addr:     s.Addr,
			Kind:     kind,
			Username: s.Username,
			Password: s.Password,
		})
	}
	return out, nil
}

// buildACLEntries adapts the on-disk access-control entries to acl.Entry.
func buildACLEntries(specs []config.AccessControlEntry) []acl.Entry {
	out := make([]acl.Entry, 0, len(specs))
	for _, s := range specs {
		out = append(out, acl.Entry{Pattern: s.Pattern, Ports: s.Ports, Countries: s.Countries})
	}
	return out
}

// buildGeoIPLookuper selects the country-lookup collaborator: a no-op when
// no database path is configured, otherwise a loaded CIDR table.
func buildGeoIPLookuper(databasePath string) (geoip.Lookuper, error) {
	if databasePath == "" {
		return geoip.NoOp{}, nil
	}
	lookuper, err := geoip.LoadCIDRDatabase(databasePath)
	if err != nil {
		return nil, fmt.Errorf("geoip database: %w", err)
	}
	return lookuper, nil
}

func buildUserRecords(specs []config.UserSpec) []auth.UserRecord {
	out := make([]auth.UserRecord, 0, len(specs))
	for _, s := range specs {
		out = append(out, auth.UserRecord{Username: s.Username, Password: s.Password, Enabled: s.Enabled})
	}
	return out
}

func buildRatelimitConfig(c *config.Config) ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	sec := c.Security.RateLimit
	if sec.ConnectionCapacity > 0 {
		cfg.ConnectionCapacity = sec.ConnectionCapacity
	}
	if sec.ConnectionRefillPerMin > 0 {
		cfg.ConnectionRefillPerMin = sec.ConnectionRefillPerMin
	}
	if sec.AuthCapacity > 0 {
		cfg.AuthCapacity = sec.AuthCapacity
	}
	if sec.AuthRefillPerMin > 0 {
		cfg.AuthRefillPerMin = sec.AuthRefillPerMin
	}
	if sec.GlobalConnectionCap > 0 {
		cfg.GlobalConnectionCap = sec.GlobalConnectionCap
	}
	if sec.GlobalConnRefillPerMin > 0 {
		cfg.GlobalConnRefillPerMin = sec.GlobalConnRefillPerMin
	}
	if sec.BlockDuration > 0 {
		cfg.BlockDuration = sec.BlockDuration
	}
	return cfg
}

func buildDDoSConfig(c *config.Config) ddos.Config {
	cfg := ddos.DefaultConfig()
	sec := c.Security.DDoS
	if sec.Window > 0 {
		cfg.Window = sec.Window
	}
	if sec.FloodThreshold > 0 {
		cfg.FloodThreshold = sec.FloodThreshold
	}
	if sec.BaseBan > 0 {
		cfg.BaseBan = sec.BaseBan
	}
	if sec.MaxPerIP > 0 {
		cfg.MaxPerIP = sec.MaxPerIP
	}
	if sec.GlobalMax > 0 {
		cfg.GlobalMax = sec.GlobalMax
	}
	return cfg
}

func buildFail2BanConfig(c *config.Config) fail2ban.Config {
	cfg := fail2ban.DefaultConfig()
	sec := c.Security.Fail2Ban
	if sec.Window > 0 {
		cfg.Window = sec.Window
	}
	if sec.MaxFailures > 0 {
		cfg.MaxFailures = sec.MaxFailures
	}
	if sec.BaseBan > 0 {
		cfg.BaseBan = sec.BaseBan
	}
	if sec.MaxBan > 0 {
		cfg.MaxBan = sec.MaxBan
	}
	if len(sec.Whitelist) > 0 {
		cfg.Whitelist = sec.Whitelist
	}
	return cfg
}
