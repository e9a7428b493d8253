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

// Package wire encodes and decodes the SOCKS5 (RFC 1928) and userpass
// subnegotiation (RFC 1929) byte layouts. All multibyte integers are
// big-endian; domain strings are length-prefixed, not NUL-terminated.
package wire

import (
	"fmt"
	"net"
)

const (
	Version5 byte = 0x05

	// Address type tags.
	ATYPIPv4   byte = 0x01
	ATYPDomain byte = 0x03
	ATYPIPv6   byte = 0x04
)

// AuthMethod is the negotiated SOCKS5 method byte.
type AuthMethod byte

const (
	MethodNoAuth     AuthMethod = 0x00
	MethodUserPass   AuthMethod = 0x02
	MethodUnsupported AuthMethod = 0xFF
)

// Command is the requested SOCKS5 command.
type Command byte

const (
	CmdConnect      Command = 0x01
	CmdBind         Command = 0x02
	CmdUDPAssociate Command = 0x03
)

// ReplyCode is the 1-byte reply field.
type ReplyCode byte

const (
	ReplySuccess              ReplyCode = 0x00
	ReplyGeneralFailure       ReplyCode = 0x01
	ReplyNotAllowed           ReplyCode = 0x02
	ReplyNetworkUnreachable   ReplyCode = 0x03
	ReplyHostUnreachable      ReplyCode = 0x04
	ReplyConnectionRefused    ReplyCode = 0x05
	ReplyTTLExpired           ReplyCode = 0x06
	ReplyCommandNotSupported  ReplyCode = 0x07
	ReplyAddressTypeNotSupported ReplyCode = 0x08
)

// AddressKind tags a TargetAddress's variant.
type AddressKind byte

const (
	AddrIPv4 AddressKind = iota
	AddrIPv6
	AddrDomain
)

// TargetAddress is the tagged union over {IPv4, IPv6, Domain}.
type TargetAddress struct {
	Kind   AddressKind
	IP     net.IP // set for AddrIPv4 / AddrIPv6, 4 or 16 bytes
	Domain string // set for AddrDomain
}

// String renders the address for logs and dial targets (without port).
func (a TargetAddress) String() string {
	switch a.Kind {
	case AddrDomain:
		return a.Domain
	default:
		return a.IP.String()
	}
}

// IsIP reports whether this address is an IPv4 or IPv6 literal.
func (a TargetAddress) IsIP() bool {
	return a.Kind == AddrIPv4 || a.Kind == AddrIPv6
}

func (a AddressKind) atyp() byte {
	switch a {
	case AddrIPv4:
		return ATYPIPv4
	case AddrIPv6:
		return ATYPIPv6
	default:
		return ATYPDomain
	}
}

// Greeting is the client->server method-offer frame.
type Greeting struct {
	Methods []AuthMethod
}

// Request is the client->server connection request.
type Request struct {
	Cmd     Command
	Target  TargetAddress
	Port    uint16
}

// Reply is the server->client outcome of a Request.
type Reply struct {
	Code   ReplyCode
	Bound  TargetAddress
	Port   uint16
}

// ZeroReply is the canonical "no bound address info" reply (IPv4 0.0.0.0:0)
// carrying the given code, used by the Connect path for success and failure
// replies alike.
func ZeroReply(code ReplyCode) Reply {
	return Reply{
		Code:  code,
		Bound: TargetAddress{Kind: AddrIPv4, IP: net.IPv4zero.To4()},
		Port:  0,
	}
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("socks5 wire: %s", e.Reason)
}

// ProtocolError is returned by decoders on malformed input.
type ProtocolError struct {
	Reason string
}
