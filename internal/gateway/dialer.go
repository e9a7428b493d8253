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

package gateway

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nabbar/socks5-gateway/internal/routing/chain"
	"github.com/nabbar/socks5-gateway/internal/routing/smart"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

// UpstreamSpec is one configured upstream proxy: its dial address and the
// hop protocol/credentials the chain dialer needs to speak to it.
type UpstreamSpec struct {
	ID       string
	Addr     string
	Kind     chain.HopKind
	Username string
	Password string
}

// DefaultDialer is the production Dialer: direct dials go straight out;
// single-upstream proxy dials and proxy-chain dials go through
// routing/chain, with outcomes fed back into a smart.Selector for health
// scoring.
type DefaultDialer struct {
	upstreams map[string]UpstreamSpec
	selector  *smart.Selector
	chainer   *chain.Dialer
	direct    net.Dialer
}

// NewDefaultDialer builds a DefaultDialer tracking the given upstreams,
// with its health/latency selector gated by smartOpts.
func NewDefaultDialer(upstreams []UpstreamSpec, chainHopTimeout time.Duration, smartOpts smart.Options) *DefaultDialer {
	byID := make(map[string]UpstreamSpec, len(upstreams))
	ids := make([]string, 0, len(upstreams))
	for _, u := range upstreams {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}
	return &DefaultDialer{
		upstreams: byID,
		selector:  smart.NewSelectorWithOptions(ids, smartOpts),
		chainer:   chain.NewDialer(chainHopTimeout),
	}
}

// Known reports whether upstream id is configured; suitable as a
// routing.KnownUpstream callback.
func (d *DefaultDialer) Known(id string) bool {
	_, ok := d.upstreams[id]
	return ok
}

// Selector exposes the health/latency selector for background probing and
// for the management API's stats endpoint.
func (d *DefaultDialer) Selector() *smart.Selector { return d.selector }

// AddrFor adapts the upstream registry to smart.AddrFor for probing.
func (d *DefaultDialer) AddrFor(id string) (string, bool) {
	u, ok := d.upstreams[id]
	if !ok {
		return "", false
	}
	return u.Addr, true
}

func (d *DefaultDialer) DialDirect(ctx context.Context, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addr := net.JoinHostPort(target.String(), strconv.Itoa(int(port)))
	return d.direct.DialContext(ctx, "tcp", addr)
}

func (d *DefaultDialer) DialUpstream(ctx context.Context, upstream string, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error) {
	u, ok := d.upstreams[upstream]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown upstream %q", upstream)
	}
	start := time.Now()
	conn, err := d.chainer.Dial(ctx, []chain.Hop{{Kind: u.Kind, Addr: u.Addr, Username: u.Username, Password: u.Password}}, target.String(), port)
	d.selector.RecordResult(upstream, err == nil, time.Since(start))
	return conn, err
}

func (d *DefaultDialer) DialChain(ctx context.Context, upstreamIDs []string, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error) {
	hops := make([]chain.Hop, 0, len(upstreamIDs))
	for _, id := range upstreamIDs {
		u, ok := d.upstreams[id]
		if !ok {
			return nil, fmt.Errorf("gateway: unknown upstream %q in chain", id)
		}
		hops = append(hops, chain.Hop{Kind: u.Kind, Addr: u.Addr, Username: u.Username, Password: u.Password})
	}
	return d.chainer.Dial(ctx, hops, target.String(), port)
}
