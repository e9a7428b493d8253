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

package routing

import (
	"net/netip"
	"sort"
	"sync"
)

// Request describes the connection attempt the engine decides on.
type Request struct {
	Target   string // domain name or IP literal
	Port     uint16
	SourceIP netip.Addr
	User     string // empty when the session authenticated anonymously
}

// KnownUpstream reports whether an upstream id is currently configured, so
// the engine can downgrade a rule referencing an unknown upstream to a
// direct allow instead of silently misrouting.
type KnownUpstream func(id string) bool

// Engine holds the compiled, priority-ordered rule list and evaluates
// connection requests against it.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
	known KnownUpstream
}

// NewEngine builds an engine from rules, sorted priority-descending with
// ties broken by original insertion order (stable sort).
func NewEngine(rules []Rule, known KnownUpstream) *Engine {
	e := &Engine{known: known}
	e.Reload(rules)
	return e
}

// Reload atomically replaces the rule list.
func (e *Engine) Reload(rules []Rule) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	e.mu.Lock()
	e.rules = sorted
	e.mu.Unlock()
}

// Rules returns a snapshot copy of the current priority-ordered rule list.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate scans the rule list in priority order and returns the first
// matching rule's decision, or the default Allow when nothing matches.
func (e *Engine) Evaluate(req Request) Decision {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !portMatches(r.AllowedPorts, req.Port) {
			continue
		}
		if !sourceMatches(r.AllowedSourceIPs, req.SourceIP) {
			continue
		}
		if !userMatches(r.AllowedUsers, req.User) {
			continue
		}
		if !r.Pattern.MatchTarget(req.Target) {
			continue
		}
		return e.decisionFor(r)
	}
	return allowDirect()
}

func (e *Engine) decisionFor(r Rule) Decision {
	switch r.Action {
	case ActionProxy:
		if e.known != nil && !e.known(r.Upstream) {
			return Decision{Action: ActionAllow, MatchedRule: r.ID, Reason: "rule references unknown upstream: downgraded to direct allow"}
		}
		return Decision{Action: ActionProxy, MatchedRule: r.ID, Upstream: r.Upstream}
	case ActionProxyChain:
		if e.known != nil {
			for _, id := range r.ProxyChain {
				if !e.known(id) {
					return Decision{Action: ActionAllow, MatchedRule: r.ID, Reason: "rule references unknown upstream in chain: downgraded to direct allow"}
				}
			}
		}
		return Decision{Action: ActionProxyChain, MatchedRule: r.ID, ProxyChain: r.ProxyChain}
	case ActionRedirect:
		return Decision{Action: ActionRedirect, MatchedRule: r.ID, RedirectAddr: r.RedirectAddr}
	case ActionBlock:
		return Decision{Action: ActionBlock, MatchedRule: r.ID, Reason: "blocked by rule " + r.ID}
	default:
		return Decision{Action: ActionAllow, MatchedRule: r.ID}
	}
}

// portMatches: an empty AllowedPorts list means "any port".
func portMatches(allowed []uint16, port uint16) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, p := range allowed {
		if p == port {
			return true
		}
	}
	return false
}

// sourceMatches: an empty AllowedSourceIPs list means "any source". Each
// entry is itself an IP or a CIDR (single IPs are stored as their /32 or
// /128 prefix by the caller).
func sourceMatches(allowed []netip.Prefix, src netip.Addr) bool {
	if len(allowed) == 0 {
		return true
	}
	if !src.IsValid() {
		return false
	}
	for _, p := range allowed {
		if p.Contains(src) {
			return true
		}
	}
	return false
}

// userMatches: an empty AllowedUsers list means "any user", including an
// anonymous session. A non-empty list denies an anonymous (empty) user.
func userMatches(allowed []string, user string) bool {
	if len(allowed) == 0 {
		return true
	}
	if user == "" {
		return false
	}
	for _, u := range allowed {
		if u == user {
			return true
		}
	}
	return false
}
