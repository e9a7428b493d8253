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

// Package handshake drives the per-connection SOCKS5 protocol state machine:
// Greeting -> MethodSelected -> (UserPassAuth)? -> RequestRead. It is bounded
// by a single overall handshake deadline and knows nothing about rate
// limiting, routing or relaying — those are orchestrated by the gateway
// package, which is the only caller of Run.
package handshake

import (
	"net"
	"time"

	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

// State names the handshake state machine's states, for logging/metrics.
type State uint8

const (
	StateGreeting State = iota
	StateMethodSelected
	StateUserPassAuth
	StateRequestRead
	StateRequestDispatched
)

// Policy decides which method to select given what the client offered and
// whether auth is globally required, per the method-selection rule in the
// component design.
type Policy struct {
	AuthEnabled bool
}

// SelectMethod implements the three-branch decision tree: auth disabled and
// NoAuth offered -> NoAuth; UserPass offered -> UserPass; otherwise ->
// Unsupported (0xFF).
func (p Policy) SelectMethod(offered []wire.AuthMethod) wire.AuthMethod {
	has := func(m wire.AuthMethod) bool {
		for _, o := range offered {
			if o == m {
				return true
			}
		}
		return false
	}

	if !p.AuthEnabled && has(wire.MethodNoAuth) {
		return wire.MethodNoAuth
	}
	if has(wire.MethodUserPass) {
		return wire.MethodUserPass
	}
	return wire.MethodUnsupported
}

// Authenticator validates RFC 1929 credentials. Implemented by internal/auth.
type Authenticator interface {
	Authenticate(username, password string) (principal string, ok bool)
}

// Result is the outcome of a completed handshake, up to and including
// RequestDispatched; it carries everything the gateway needs to route and
// relay the connection.
type Result struct {
	Method    wire.AuthMethod
	Principal string // "anonymous" when auth is disabled
	Request   wire.Request
	State     State
	// RepliedBeforeFailure is not set by Run: a failed handshake returns
	// no Result, and whether a reply was already written is reported in
	// Error.Wrote instead.
	RepliedBeforeFailure bool
}

// Error wraps a handshake failure with the state it occurred in and whether
// a reply was already written, so the gateway can decide what (if anything)
// to send back before closing.
type Error struct {
	State   State
	Wrote   bool
	Wrapped error
}

func (e *Error) Error() string { return e.Wrapped.Error() }
func (e *Error) Unwrap() error { return e.Wrapped }

// Run drives the handshake to completion or failure, bounded by deadline.
// auth may be nil only when policy.AuthEnabled is false.
func Run(conn net.Conn, deadline time.Time, policy Policy, auth Authenticator) (*Result, error) {
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &Error{State: StateGreeting, Wrote: false, Wrapped: err}
	}

	greet, err := wire.ReadGreeting(conn)
	if err != nil {
		return nil, &Error{State: StateGreeting, Wrote: false, Wrapped: err}
	}

	method := policy.SelectMethod(greet.Methods)
	if err := wire.WriteMethodSelect(conn, method); err != nil {
		return nil, &Error{State: StateGreeting, Wrote: false, Wrapped: err}
	}
	if method == wire.MethodUnsupported {
		return nil, &Error{State: StateMethodSelected, Wrote: true, Wrapped: wire.ProtocolError{Reason: "no acceptable authentication method"}}
	}

	principal := "anonymous"
	state := StateMethodSelected

	if method == wire.MethodUserPass {
		state = StateUserPassAuth
		up, err := wire.ReadUserPassRequest(conn)
		if err != nil {
			return nil, &Error{State: state, Wrote: true, Wrapped: err}
		}
		p, ok := auth.Authenticate(up.Username, up.Password)
		if !ok {
			_ = wire.WriteUserPassReply(conn, false)
			return nil, &Error{State: state, Wrote: true, Wrapped: wire.ProtocolError{Reason: "invalid credentials"}}
		}
		if err := wire.WriteUserPassReply(conn, true); err != nil {
			return nil, &Error{State: state, Wrote: true, Wrapped: err}
		}
		principal = p
	}

	state = StateRequestRead
	req, err := wire.ReadRequest(conn)
	if err != nil {
		return nil, &Error{State: state, Wrote: true, Wrapped: err}
	}

	return &Result{
		Method:    method,
		Principal: principal,
		Request:   req,
		State:     StateRequestDispatched,
	}, nil
}
