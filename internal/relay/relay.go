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

// Package relay resolves and dials the target of a CONNECT request and
// splices the client and upstream connections bidirectionally.
package relay

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

// ConnectTarget resolves (if target is a domain) and dials the target
// address within the given timeout. IP literals skip resolution; domains
// try every resolved address in order until one connects.
func ConnectTarget(ctx context.Context, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	addr := net.JoinHostPort(target.String(), strconv.Itoa(int(port)))

	if target.IsIP() {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, target.Domain)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		candidate := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		conn, err := dialer.DialContext(ctx, "tcp", candidate)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Stats accumulates the byte counts observed during a Relay call.
type Stats struct {
	BytesClientToUpstream int64
	BytesUpstreamToClient int64
}

// defaultBufferSize is used when Relay is called with bufferSize <= 0.
const defaultBufferSize = 32 * 1024

// Relay splices client and upstream bidirectionally until both halves
// finish, EOF, or overallTimeout elapses. bufferSize sizes the per-direction
// copy buffer (server.bufferSize in the configuration); <= 0 falls back to
// defaultBufferSize. It returns accumulated Stats and the first error
// observed on either half (io.EOF is not treated as an error).
func Relay(client, upstream net.Conn, overallTimeout time.Duration, bufferSize int) (Stats, error) {
	var stats Stats
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	deadline := time.Now().Add(overallTimeout)
	if overallTimeout > 0 {
		client.SetDeadline(deadline)
		upstream.SetDeadline(deadline)
	}

	copyHalf := func(dst, src net.Conn, counter *int64) {
		defer wg.Done()
		n, err := io.CopyBuffer(dst, src, make([]byte, bufferSize))
		mu.Lock()
		*counter = n
		if err != nil && firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		// unblock the other half's Read once this direction is done
		if c, ok := dst.(interface{ CloseWrite() error }); ok {
			c.CloseWrite()
		}
	}

	wg.Add(2)
	go copyHalf(upstream, client, &stats.BytesClientToUpstream)
	go copyHalf(client, upstream, &stats.BytesUpstreamToClient)
	wg.Wait()

	if overallTimeout > 0 {
		client.SetDeadline(time.Time{})
		upstream.SetDeadline(time.Time{})
	}

	if firstErr == io.EOF {
		firstErr = nil
	}
	return stats, firstErr
}

// ReplyCodeForError maps a dial/relay error to the closest SOCKS5 reply
// code, by substring scan over the error's message. This is fragile
// compared to a typed error hierarchy, but it is the only information
// net.Dialer and the resolver expose without platform-specific syscall
// unwrapping.
func ReplyCodeForError(err error) wire.ReplyCode {
	if err == nil {
		return wire.ReplySuccess
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return wire.ReplyTTLExpired
	case strings.Contains(msg, "refused"):
		return wire.ReplyConnectionRefused
	case strings.Contains(msg, "network is unreachable"):
		return wire.ReplyNetworkUnreachable
	case strings.Contains(msg, "host is unreachable") || strings.Contains(msg, "no route to host"):
		return wire.ReplyHostUnreachable
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns") || strings.Contains(msg, "lookup"):
		return wire.ReplyHostUnreachable
	default:
		return wire.ReplyGeneralFailure
	}
}
