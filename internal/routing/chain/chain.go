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

// Package chain connects through a sequence of upstream proxy hops, each
// either a SOCKS5 or an HTTP CONNECT proxy, ending at the final target.
package chain

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

// HopKind selects the protocol spoken to reach the next hop.
type HopKind uint8

const (
	HopSOCKS5 HopKind = iota
	HopHTTPConnect
)

// Hop is one link in the chain: dial Addr, then speak Kind's protocol to
// ask it to connect onward (to the next hop, or to the final target for
// the last hop in the chain).
type Hop struct {
	Kind     HopKind
	Addr     string
	Username string // SOCKS5 / HTTP basic auth, optional
	Password string
}

// Dialer opens a chain of proxy hops and returns a net.Conn whose read/write
// tunnel through every hop straight to the final target.
type Dialer struct {
	HopTimeout time.Duration
}

// NewDialer builds a Dialer with the given per-hop timeout.
func NewDialer(hopTimeout time.Duration) *Dialer {
	if hopTimeout <= 0 {
		hopTimeout = 10 * time.Second
	}
	return &Dialer{HopTimeout: hopTimeout}
}

// ErrEmptyChain is returned by Dial when hops is empty.
var ErrEmptyChain = fmt.Errorf("proxy chain: at least one hop is required")

// Dial connects through hops in order, with the final hop asked to CONNECT
// to targetHost:targetPort.
func (d *Dialer) Dial(ctx context.Context, hops []Hop, targetHost string, targetPort uint16) (net.Conn, error) {
	if len(hops) == 0 {
		return nil, ErrEmptyChain
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", hops[0].Addr)
	if err != nil {
		return nil, fmt.Errorf("proxy chain: dial first hop %s: %w", hops[0].Addr, err)
	}

	for i, hop := range hops {
		host, port := targetHost, targetPort
		if i+1 < len(hops) {
			h, p, splitErr := net.SplitHostPort(hops[i+1].Addr)
			if splitErr != nil {
				conn.Close()
				return nil, fmt.Errorf("proxy chain: bad next hop address %s: %w", hops[i+1].Addr, splitErr)
			}
			var pu uint16
			if _, err := fmt.Sscanf(p, "%d", &pu); err != nil {
				conn.Close()
				return nil, fmt.Errorf("proxy chain: bad next hop port %s: %w", p, err)
			}
			host, port = h, pu
		}

		conn.SetDeadline(time.Now().Add(d.HopTimeout))

		switch hop.Kind {
		case HopSOCKS5:
			err = socks5Connect(conn, hop, host, port)
		case HopHTTPConnect:
			err = httpConnect(conn, hop, host, port)
		default:
			err = fmt.Errorf("proxy chain: unknown hop kind %d", hop.Kind)
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("proxy chain: hop %d (%s): %w", i, hop.Addr, err)
		}
		conn.SetDeadline(time.Time{})
	}

	return conn, nil
}

func socks5Connect(conn net.Conn, hop Hop, host string, port uint16) error {
	method := wire.MethodNoAuth
	if hop.Username != "" {
		method = wire.MethodUserPass
	}
	if _, err := conn.Write([]byte{wire.Version5, 1, byte(method)}); err != nil {
		return err
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		return err
	}
	if reply[0] != wire.Version5 {
		return fmt.Errorf("unexpected socks version %d in method reply", reply[0])
	}
	selected := wire.AuthMethod(reply[1])
	if selected == wire.MethodUnsupported {
		return fmt.Errorf("upstream socks5 hop rejected all offered auth methods")
	}

	if selected == wire.MethodUserPass {
		if err := wire.WriteUserPassRequest(conn, hop.Username, hop.Password); err != nil {
			return err
		}
		ok, err := wire.ReadUserPassReply(conn)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("upstream socks5 hop rejected credentials")
		}
	}

	target := wire.TargetAddress{Kind: wire.AddrDomain, Domain: host}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			target = wire.TargetAddress{Kind: wire.AddrIPv4, IP: ip4}
		} else {
			target = wire.TargetAddress{Kind: wire.AddrIPv6, IP: ip.To16()}
		}
	}
	if err := wire.WriteRequest(conn, wire.Request{Cmd: wire.CmdConnect, Target: target, Port: port}); err != nil {
		return err
	}

	rep, err := wire.ReadReply(conn)
	if err != nil {
		return err
	}
	if rep.Code != wire.ReplySuccess {
		return fmt.Errorf("upstream socks5 hop refused connect: code %d", rep.Code)
	}
	return nil
}

func httpConnect(conn net.Conn, hop Hop, host string, port uint16) error {
	req := fmt.Sprintf("CONNECT %s:%d HTTP/1.1\r\nHost: %s:%d\r\n", host, port, host, port)
	if hop.Username != "" {
		req += "Proxy-Authorization: Basic " + basicAuth(hop.Username, hop.Password) + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return err
	}

	// No Content-Length is expected on a CONNECT response; reading exactly
	// through the header's blank line leaves the raw connection ready for
	// tunneling without needing to preserve a buffered reader.
	tp := textproto.NewReader(bufio.NewReader(conn))
	statusLine, err := tp.ReadLine()
	if err != nil {
		return err
	}
	var httpVer string
	var code int
	var msg string
	if _, err := fmt.Sscanf(statusLine, "%s %d %s", &httpVer, &code, &msg); err != nil {
		return fmt.Errorf("malformed CONNECT response status line: %q", statusLine)
	}
	if _, err := tp.ReadMIMEHeader(); err != nil {
		return err
	}
	if code != 200 {
		return fmt.Errorf("upstream http connect hop refused: status %d", code)
	}
	return nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
