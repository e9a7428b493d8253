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

// Package geoip provides the pluggable country-lookup collaborator used by
// the ACL's optional country restriction. No database is bundled; callers
// wire a Resolver backed by whatever lookup source they have (MaxMind,
// an internal service, a static table).
package geoip

import (
	"bufio"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
)

// Resolver maps an IP to an ISO 3166-1 alpha-2 country code. ok is false
// when the IP could not be resolved to any country.
type Resolver func(ip net.IP) (country string, ok bool)

// Lookuper is the interface the routing ACL depends on.
type Lookuper interface {
	Lookup(ip net.IP) (country string, ok bool)
}

// resolverLookuper adapts a bare Resolver func to Lookuper.
type resolverLookuper struct {
	fn Resolver
}

func (r resolverLookuper) Lookup(ip net.IP) (string, bool) {
	if r.fn == nil {
		return "", false
	}
	return r.fn(ip)
}

// FromResolver wraps a Resolver function as a Lookuper.
func FromResolver(fn Resolver) Lookuper {
	return resolverLookuper{fn: fn}
}

// NoOp is the default collaborator when no GeoIP database is configured: it
// never resolves a country, so ACL country rules fail safe per their own
// configured policy.
type NoOp struct{}

func (NoOp) Lookup(net.IP) (string, bool) { return "", false }

// cidrEntry is one compiled line of a CIDR-table database.
type cidrEntry struct {
	prefix  netip.Prefix
	country string
}

// cidrTable resolves an IP to a country by longest-prefix match over a
// small in-memory table, grounded on the same net/netip prefix-matching
// idiom used by routing.CompilePattern.
type cidrTable struct {
	entries []cidrEntry
}

func (t *cidrTable) lookup(ip net.IP) (string, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return "", false
	}
	addr = addr.Unmap()
	best := -1
	var country string
	for _, e := range t.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			country = e.country
		}
	}
	if best < 0 {
		return "", false
	}
	return country, true
}

// LoadCIDRDatabase reads a plain-text "CIDR,country" database (one entry
// per line, '#'-prefixed lines and blank lines ignored) and returns a
// Lookuper backed by it. This is the reference implementation plugged in
// when AccessControlConfig.GeoIPDatabase is set; a MaxMind-backed resolver
// can be substituted by implementing Lookuper directly without touching
// the ACL.
func LoadCIDRDatabase(path string) (Lookuper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	defer f.Close()

	table := &cidrTable{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		parts := strings.SplitN(raw, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("geoip: %s:%d: expected \"cidr,country\"", path, line)
		}
		prefix, err := netip.ParsePrefix(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("geoip: %s:%d: %w", path, line, err)
		}
		table.entries = append(table.entries, cidrEntry{prefix: prefix, country: strings.TrimSpace(parts[1])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("geoip: read database: %w", err)
	}

	return FromResolver(table.lookup), nil
}
