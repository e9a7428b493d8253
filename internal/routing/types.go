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

import "net/netip"

// Action is the disposition applied when a rule matches.
type Action uint8

const (
	ActionAllow Action = iota
	ActionBlock
	ActionRedirect
	ActionProxy
	ActionProxyChain
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionRedirect:
		return "redirect"
	case ActionProxy:
		return "proxy"
	case ActionProxyChain:
		return "proxy_chain"
	default:
		return "unknown"
	}
}

// Rule is a single priority-ordered routing rule.
type Rule struct {
	ID      string
	Priority uint32
	Enabled bool

	Pattern CompiledPattern

	Action       Action
	Upstream     string   // upstream id for ActionProxy
	ProxyChain   []string // upstream ids, in hop order, for ActionProxyChain
	RedirectAddr string   // host:port for ActionRedirect

	AllowedPorts     []uint16
	AllowedSourceIPs []netip.Prefix
	AllowedUsers     []string
}

// Decision is the outcome of evaluating the rule list against a connection
// attempt.
type Decision struct {
	Action       Action
	MatchedRule  string // rule ID, empty for the implicit default
	Upstream     string
	ProxyChain   []string
	RedirectAddr string
	Reason       string
}

// allowDirect is the implicit default decision when no rule matches.
func allowDirect() Decision {
	return Decision{Action: ActionAllow, Reason: "no rule matched: default allow"}
}
