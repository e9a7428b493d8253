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

// Package routing implements the priority-ordered pattern-matching rules
// engine: compilation, evaluation, and the legacy ACL fast path.
package routing

import (
	"net/netip"
	"regexp"
	"strings"
)

// PatternKind classifies a compiled pattern.
type PatternKind uint8

const (
	PatternExact PatternKind = iota
	PatternGlob
	PatternRegex
	PatternIPOrCIDR
	PatternDomainSuffix
	PatternSubdomainWildcard
)

// CompiledPattern is the result of compiling a rule's raw pattern string,
// per the ordered classification in the component design.
type CompiledPattern struct {
	Kind    PatternKind
	Raw     string
	Prefix  *netip.Prefix // PatternIPOrCIDR
	Exact   netip.Addr    // PatternExact when the raw string parsed as a bare IP
	Suffix  string        // PatternDomainSuffix / PatternSubdomainWildcard: suffix (without leading '.')
	Regex   *regexp.Regexp
}

// CompilePattern classifies and compiles raw following the fixed ordered
// rules: IP/CIDR, bare IP, ".suffix", "*.suffix", "^regex", glob, exact.
func CompilePattern(raw string) (CompiledPattern, error) {
	if prefix, err := netip.ParsePrefix(raw); err == nil {
		return CompiledPattern{Kind: PatternIPOrCIDR, Raw: raw, Prefix: &prefix}, nil
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return CompiledPattern{Kind: PatternExact, Raw: raw, Exact: addr}, nil
	}
	if strings.HasPrefix(raw, ".") {
		return CompiledPattern{Kind: PatternDomainSuffix, Raw: raw, Suffix: strings.TrimPrefix(raw, ".")}, nil
	}
	if strings.HasPrefix(raw, "*.") {
		return CompiledPattern{Kind: PatternSubdomainWildcard, Raw: raw, Suffix: strings.TrimPrefix(raw, "*.")}, nil
	}
	if strings.HasPrefix(raw, "^") {
		re, err := regexp.Compile(raw)
		if err != nil {
			return CompiledPattern{}, err
		}
		return CompiledPattern{Kind: PatternRegex, Raw: raw, Regex: re}, nil
	}
	if strings.ContainsAny(raw, "*?") {
		re, err := regexp.Compile("^" + globToRegex(raw) + "$")
		if err != nil {
			return CompiledPattern{}, err
		}
		return CompiledPattern{Kind: PatternGlob, Raw: raw, Regex: re}, nil
	}
	return CompiledPattern{Kind: PatternExact, Raw: raw}, nil
}

// globToRegex escapes '.' and maps '*'->'.*', '?'->'.'.
func globToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// MatchTarget reports whether this pattern matches target, which may be an
// IP literal or a domain name. Domain-only patterns never match IP targets
// and vice versa for IpOrCidr.
func (p CompiledPattern) MatchTarget(target string) bool {
	addr, isIP := netip.ParseAddr(target)
	switch p.Kind {
	case PatternIPOrCIDR:
		if !isIP {
			return false
		}
		return p.Prefix.Contains(addr)
	case PatternExact:
		if p.Exact.IsValid() {
			// pattern is a bare IP literal: only ever matches an IP target
			return isIP && addr == p.Exact
		}
		// pattern is a bare domain/string: only ever matches a non-IP target
		return !isIP && target == p.Raw
	case PatternDomainSuffix:
		if isIP {
			return false
		}
		if p.Suffix == "" {
			return true // "." alone is the suffix of the empty string: matches any domain
		}
		return target == p.Suffix || strings.HasSuffix(target, "."+p.Suffix)
	case PatternSubdomainWildcard:
		if isIP {
			return false
		}
		return target == p.Suffix || strings.HasSuffix(target, "."+p.Suffix)
	case PatternRegex, PatternGlob:
		if isIP {
			return false
		}
		return p.Regex.MatchString(target)
	default:
		return false
	}
}
