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

// Package acl implements the legacy allow/block access-control list: a
// flat, unprioritized predecessor to the routing rules engine, kept for
// deployments that only need "allow these, block those, optionally by
// country" without per-rule ports/users/priorities.
package acl

import (
	"net"
	"strings"

	"github.com/nabbar/socks5-gateway/internal/geoip"
	"github.com/nabbar/socks5-gateway/internal/routing"
)

// Verdict is the ACL's disposition for a target.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictBlock
	VerdictNoMatch
)

// Entry is one allow or block line. Pattern accepts "*" (match-all), an
// IP/CIDR, an exact domain, "*.suffix" or ".suffix" — the same grammar as
// routing.CompilePattern, plus the bare "*" wildcard.
type Entry struct {
	Pattern   string
	Ports     []uint16 // empty means "no port restriction"
	Countries []string // ISO 3166-1 alpha-2, empty means "no country restriction"

	matchAll bool
	compiled routing.CompiledPattern
}

func compileEntry(raw Entry) (Entry, error) {
	if raw.Pattern == "*" {
		raw.matchAll = true
		return raw, nil
	}
	c, err := routing.CompilePattern(raw.Pattern)
	if err != nil {
		return Entry{}, err
	}
	raw.compiled = c
	return raw, nil
}

func (e Entry) matches(target string, port uint16) bool {
	if !e.portAllowed(port) {
		return false
	}
	if e.matchAll {
		return true
	}
	return e.compiled.MatchTarget(target)
}

func (e Entry) portAllowed(port uint16) bool {
	if len(e.Ports) == 0 {
		return true
	}
	for _, p := range e.Ports {
		if p == port {
			return true
		}
	}
	return false
}

func (e Entry) countryRestricted() bool { return len(e.Countries) > 0 }

func (e Entry) countryAllowed(country string) bool {
	for _, c := range e.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}

// ACL is the flat allow/block list. Allow entries are checked before Block
// entries. defaultPolicy governs targets matched by neither list.
type ACL struct {
	allow         []Entry
	block         []Entry
	geoip         geoip.Lookuper
	defaultPolicy Verdict
}

// New compiles allow and block entries. A nil lookuper defaults to
// geoip.NoOp{}, so any country-restricted entry fails safe per its own
// Allow/Block semantics. defaultPolicy is the verdict returned when target
// matches neither list ("allow" or "block"; anything else, including
// empty, keeps the legacy VerdictNoMatch passthrough).
func New(allow, block []Entry, lookuper geoip.Lookuper, defaultPolicy string) (*ACL, error) {
	a := &ACL{geoip: lookuper, defaultPolicy: VerdictNoMatch}
	if a.geoip == nil {
		a.geoip = geoip.NoOp{}
	}
	switch defaultPolicy {
	case "allow":
		a.defaultPolicy = VerdictAllow
	case "block":
		a.defaultPolicy = VerdictBlock
	}
	for _, raw := range allow {
		c, err := compileEntry(raw)
		if err != nil {
			return nil, err
		}
		a.allow = append(a.allow, c)
	}
	for _, raw := range block {
		c, err := compileEntry(raw)
		if err != nil {
			return nil, err
		}
		a.block = append(a.block, c)
	}
	return a, nil
}

// Check evaluates target (and, for country-restricted entries, the
// connection's source IP) against the allow list then the block list.
//
// Fail-safe semantics when an entry carries a country restriction and the
// GeoIP lookup cannot resolve srcIP's country: an Allow entry treats this
// as a Block ("cannot verify country"), while a Block entry treats it as
// not matching (it never blocks on unverifiable data).
func (a *ACL) Check(target string, port uint16, srcIP net.IP) Verdict {
	for _, e := range a.allow {
		if !e.matches(target, port) {
			continue
		}
		if !e.countryRestricted() {
			return VerdictAllow
		}
		country, ok := a.geoip.Lookup(srcIP)
		if !ok {
			return VerdictBlock
		}
		if e.countryAllowed(country) {
			return VerdictAllow
		}
		return VerdictBlock
	}

	for _, e := range a.block {
		if !e.matches(target, port) {
			continue
		}
		if !e.countryRestricted() {
			return VerdictBlock
		}
		country, ok := a.geoip.Lookup(srcIP)
		if !ok {
			// cannot verify: a block entry never blocks on unverifiable data
			continue
		}
		if e.countryAllowed(country) {
			return VerdictBlock
		}
	}

	return a.defaultPolicy
}
