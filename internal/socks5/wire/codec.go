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

package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
)

// ReadGreeting decodes the client->server greeting: VER | NMETHODS | METHODS.
func ReadGreeting(r io.Reader) (Greeting, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Greeting{}, err
	}
	if hdr[0] != Version5 {
		return Greeting{}, ProtocolError{Reason: "unsupported version in greeting"}
	}
	n := int(hdr[1])
	if n == 0 {
		return Greeting{}, ProtocolError{Reason: "greeting offers zero methods"}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Greeting{}, err
	}
	methods := make([]AuthMethod, n)
	for i, b := range buf {
		methods[i] = AuthMethod(b)
	}
	return Greeting{Methods: methods}, nil
}

// WriteMethodSelect encodes the server->client method-select reply.
func WriteMethodSelect(w io.Writer, method AuthMethod) error {
	_, err := w.Write([]byte{Version5, byte(method)})
	return err
}

// UserPassRequest is the RFC 1929 sub-handshake frame.
type UserPassRequest struct {
	Username string
	Password string
}

// ReadUserPassRequest decodes VER|ULEN|UNAME|PLEN|PASSWD.
func ReadUserPassRequest(r io.Reader) (UserPassRequest, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return UserPassRequest{}, err
	}
	if hdr[0] != 0x01 {
		return UserPassRequest{}, ProtocolError{Reason: "unsupported userpass subnegotiation version"}
	}
	ulen := int(hdr[1])
	if ulen == 0 {
		return UserPassRequest{}, ProtocolError{Reason: "zero-length username"}
	}
	uname := make([]byte, ulen)
	if _, err := io.ReadFull(r, uname); err != nil {
		return UserPassRequest{}, err
	}
	plenb := make([]byte, 1)
	if _, err := io.ReadFull(r, plenb); err != nil {
		return UserPassRequest{}, err
	}
	plen := int(plenb[0])
	if plen == 0 {
		return UserPassRequest{}, ProtocolError{Reason: "zero-length password"}
	}
	passwd := make([]byte, plen)
	if _, err := io.ReadFull(r, passwd); err != nil {
		return UserPassRequest{}, err
	}
	return UserPassRequest{Username: string(uname), Password: string(passwd)}, nil
}

// WriteUserPassReply encodes VER|STATUS (0 = success).
func WriteUserPassReply(w io.Writer, success bool) error {
	status := byte(1)
	if success {
		status = 0
	}
	_, err := w.Write([]byte{0x01, status})
	return err
}

// WriteUserPassRequest encodes the client->server side of the RFC 1929
// sub-handshake: VER|ULEN|UNAME|PLEN|PASSWD. Used by outbound proxy-chain
// hops acting as a SOCKS5 client.
func WriteUserPassRequest(w io.Writer, username, password string) error {
	if len(username) == 0 || len(username) > 255 || len(password) == 0 || len(password) > 255 {
		return ProtocolError{Reason: "username or password length out of range"}
	}
	var buf bytes.Buffer
	buf.WriteByte(0x01)
	buf.WriteByte(byte(len(username)))
	buf.WriteString(username)
	buf.WriteByte(byte(len(password)))
	buf.WriteString(password)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadUserPassReply decodes the server->client VER|STATUS reply.
func ReadUserPassReply(r io.Reader) (bool, error) {
	b := make([]byte, 2)
	if _, err := io.ReadFull(r, b); err != nil {
		return false, err
	}
	return b[1] == 0x00, nil
}

// ReadRequest decodes VER|CMD|RSV|ATYP|DST.ADDR|DST.PORT.
func ReadRequest(r io.Reader) (Request, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Request{}, err
	}
	if hdr[0] != Version5 {
		return Request{}, ProtocolError{Reason: "unsupported version in request"}
	}
	if hdr[2] != 0x00 {
		return Request{}, ProtocolError{Reason: "non-zero reserved byte"}
	}
	cmd := Command(hdr[1])
	switch cmd {
	case CmdConnect, CmdBind, CmdUDPAssociate:
	default:
		return Request{}, ProtocolError{Reason: "unsupported command"}
	}

	target, err := readAddress(r, hdr[3])
	if err != nil {
		return Request{}, err
	}

	portb := make([]byte, 2)
	if _, err := io.ReadFull(r, portb); err != nil {
		return Request{}, err
	}
	return Request{Cmd: cmd, Target: target, Port: binary.BigEndian.Uint16(portb)}, nil
}

// WriteRequest encodes the client->server side of VER|CMD|RSV|ATYP|DST.ADDR|
// DST.PORT. Used by outbound proxy-chain hops acting as a SOCKS5 client.
func WriteRequest(w io.Writer, req Request) error {
	var buf bytes.Buffer
	buf.WriteByte(Version5)
	buf.WriteByte(byte(req.Cmd))
	buf.WriteByte(0x00)
	if err := writeAddress(&buf, req.Target); err != nil {
		return err
	}
	portb := make([]byte, 2)
	binary.BigEndian.PutUint16(portb, req.Port)
	buf.Write(portb)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadReply decodes the server->client VER|REP|RSV|ATYP|BND.ADDR|BND.PORT.
// Used by outbound proxy-chain hops acting as a SOCKS5 client.
func ReadReply(r io.Reader) (Reply, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Reply{}, err
	}
	if hdr[0] != Version5 {
		return Reply{}, ProtocolError{Reason: "unsupported version in reply"}
	}
	bound, err := readAddress(r, hdr[3])
	if err != nil {
		return Reply{}, err
	}
	portb := make([]byte, 2)
	if _, err := io.ReadFull(r, portb); err != nil {
		return Reply{}, err
	}
	return Reply{Code: ReplyCode(hdr[1]), Bound: bound, Port: binary.BigEndian.Uint16(portb)}, nil
}

// WriteReply encodes VER|REP|RSV|ATYP|BND.ADDR|BND.PORT.
func WriteReply(w io.Writer, rep Reply) error {
	var buf bytes.Buffer
	buf.WriteByte(Version5)
	buf.WriteByte(byte(rep.Code))
	buf.WriteByte(0x00)
	if err := writeAddress(&buf, rep.Bound); err != nil {
		return err
	}
	portb := make([]byte, 2)
	binary.BigEndian.PutUint16(portb, rep.Port)
	buf.Write(portb)
	_, err := w.Write(buf.Bytes())
	return err
}

func readAddress(r io.Reader, atyp byte) (TargetAddress, error) {
	switch atyp {
	case ATYPIPv4:
		b := make([]byte, 4)
		if _, err := io.ReadFull(r, b); err != nil {
			return TargetAddress{}, err
		}
		return TargetAddress{Kind: AddrIPv4, IP: net.IP(b)}, nil
	case ATYPIPv6:
		b := make([]byte, 16)
		if _, err := io.ReadFull(r, b); err != nil {
			return TargetAddress{}, err
		}
		return TargetAddress{Kind: AddrIPv6, IP: net.IP(b)}, nil
	case ATYPDomain:
		lb := make([]byte, 1)
		if _, err := io.ReadFull(r, lb); err != nil {
			return TargetAddress{}, err
		}
		n := int(lb[0])
		if n == 0 {
			return TargetAddress{}, ProtocolError{Reason: "zero-length domain"}
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return TargetAddress{}, err
		}
		if bytes.IndexByte(b, 0x00) >= 0 {
			return TargetAddress{}, ProtocolError{Reason: "domain contains NUL byte"}
		}
		return TargetAddress{Kind: AddrDomain, Domain: string(b)}, nil
	default:
		return TargetAddress{}, ProtocolError{Reason: "unknown address type"}
	}
}

func writeAddress(w io.Writer, a TargetAddress) error {
	switch a.Kind {
	case AddrIPv4:
		ip := a.IP.To4()
		if ip == nil {
			ip = net.IPv4zero.To4()
		}
		if _, err := w.Write([]byte{ATYPIPv4}); err != nil {
			return err
		}
		_, err := w.Write(ip)
		return err
	case AddrIPv6:
		ip := a.IP.To16()
		if ip == nil {
			ip = net.IPv6zero
		}
		if _, err := w.Write([]byte{ATYPIPv6}); err != nil {
			return err
		}
		_, err := w.Write(ip)
		return err
	case AddrDomain:
		if len(a.Domain) == 0 || len(a.Domain) > 255 {
			return ProtocolError{Reason: "invalid domain length"}
		}
		if _, err := w.Write([]byte{ATYPDomain, byte(len(a.Domain))}); err != nil {
			return err
		}
		_, err := w.Write([]byte(a.Domain))
		return err
	default:
		return ProtocolError{Reason: "unknown address kind"}
	}
}
