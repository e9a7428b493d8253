package wire_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

func TestRequestRoundTrip_IPv4(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wire.Version5)
	buf.WriteByte(byte(wire.CmdConnect))
	buf.WriteByte(0x00)
	buf.WriteByte(wire.ATYPIPv4)
	buf.Write(net.IPv4(127, 0, 0, 1).To4())
	buf.Write([]byte{0x00, 0x50})

	req, err := wire.ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.CmdConnect, req.Cmd)
	require.Equal(t, wire.AddrIPv4, req.Target.Kind)
	require.Equal(t, "127.0.0.1", req.Target.IP.String())
	require.EqualValues(t, 80, req.Port)
}

func TestRequestRoundTrip_Domain(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wire.Version5)
	buf.WriteByte(byte(wire.CmdConnect))
	buf.WriteByte(0x00)
	buf.WriteByte(wire.ATYPDomain)
	buf.WriteByte(byte(len("example.com")))
	buf.WriteString("example.com")
	buf.Write([]byte{0x01, 0xBB})

	req, err := wire.ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.AddrDomain, req.Target.Kind)
	require.Equal(t, "example.com", req.Target.Domain)
	require.EqualValues(t, 443, req.Port)
}

func TestReplyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rep := wire.ZeroReply(wire.ReplySuccess)
	require.NoError(t, wire.WriteReply(&buf, rep))

	// VER REP RSV ATYP ADDR(4) PORT(2)
	require.Equal(t, []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestDecodeRejectsZeroLengthDomain(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wire.Version5)
	buf.WriteByte(byte(wire.CmdConnect))
	buf.WriteByte(0x00)
	buf.WriteByte(wire.ATYPDomain)
	buf.WriteByte(0x00)

	_, err := wire.ReadRequest(&buf)
	require.Error(t, err)
}

func TestDecodeRejectsBadRSV(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wire.Version5)
	buf.WriteByte(byte(wire.CmdConnect))
	buf.WriteByte(0x01) // RSV must be 0x00
	buf.WriteByte(wire.ATYPIPv4)
	buf.Write(net.IPv4zero.To4())
	buf.Write([]byte{0, 0})

	_, err := wire.ReadRequest(&buf)
	require.Error(t, err)
}

func TestUserPassRejectsZeroLenUsername(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x01)
	buf.WriteByte(0x00)

	_, err := wire.ReadUserPassRequest(&buf)
	require.Error(t, err)
}

func TestGreetingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(wire.Version5)
	buf.WriteByte(0x02)
	buf.WriteByte(byte(wire.MethodNoAuth))
	buf.WriteByte(byte(wire.MethodUserPass))

	g, err := wire.ReadGreeting(&buf)
	require.NoError(t, err)
	require.Len(t, g.Methods, 2)
	require.Equal(t, wire.MethodNoAuth, g.Methods[0])
	require.Equal(t, wire.MethodUserPass, g.Methods[1])
}
