package handshake_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/socks5/handshake"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

type stubAuth struct {
	user, pass string
	principal  string
}

func (s stubAuth) Authenticate(username, password string) (string, bool) {
	if username == s.user && password == s.pass {
		return s.principal, true
	}
	return "", false
}

func TestPolicySelectMethod_NoAuthPreferredWhenDisabled(t *testing.T) {
	p := handshake.Policy{AuthEnabled: false}
	m := p.SelectMethod([]wire.AuthMethod{wire.MethodUserPass, wire.MethodNoAuth})
	require.Equal(t, wire.MethodNoAuth, m)
}

func TestPolicySelectMethod_UserPassPreferredWhenEnabled(t *testing.T) {
	p := handshake.Policy{AuthEnabled: true}
	m := p.SelectMethod([]wire.AuthMethod{wire.MethodNoAuth, wire.MethodUserPass})
	require.Equal(t, wire.MethodUserPass, m)
}

func TestPolicySelectMethod_UnsupportedWhenEnabledButUserPassNotOffered(t *testing.T) {
	p := handshake.Policy{AuthEnabled: true}
	m := p.SelectMethod([]wire.AuthMethod{wire.MethodNoAuth})
	require.Equal(t, wire.MethodUnsupported, m)
}

func TestRun_NoAuthConnect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	var res *handshake.Result
	var runErr error
	go func() {
		res, runErr = handshake.Run(server, time.Now().Add(2*time.Second), handshake.Policy{AuthEnabled: false}, nil)
		close(done)
	}()

	_, err := client.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)

	reply := make([]byte, 2)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x00}, reply)

	req := []byte{0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0x00, 0x50}
	_, err = client.Write(req)
	require.NoError(t, err)

	<-done
	require.NoError(t, runErr)
	require.Equal(t, "anonymous", res.Principal)
	require.Equal(t, wire.CmdConnect, res.Request.Cmd)
	require.EqualValues(t, 80, res.Request.Port)
}

func TestRun_UserPassSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	auth := stubAuth{user: "alice", pass: "secret", principal: "alice"}

	done := make(chan struct{})
	var res *handshake.Result
	var runErr error
	go func() {
		res, runErr = handshake.Run(server, time.Now().Add(2*time.Second), handshake.Policy{AuthEnabled: true}, auth)
		close(done)
	}()

	_, err := client.Write([]byte{0x05, 0x02, 0x00, 0x02})
	require.NoError(t, err)

	sel := make([]byte, 2)
	_, err = client.Read(sel)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), sel[1])

	up := []byte{0x01, 5, 'a', 'l', 'i', 'c', 'e', 6, 's', 'e', 'c', 'r', 'e', 't'}
	_, err = client.Write(up)
	require.NoError(t, err)

	upReply := make([]byte, 2)
	_, err = client.Read(upReply)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), upReply[1])

	req := []byte{0x05, 0x01, 0x00, 0x03, 11, 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', 'c', 'o', 'm', 0x01, 0xBB}
	_, err = client.Write(req)
	require.NoError(t, err)

	<-done
	require.NoError(t, runErr)
	require.Equal(t, "alice", res.Principal)
	require.Equal(t, "example.com", res.Request.Target.Domain)
	require.EqualValues(t, 443, res.Request.Port)
}

func TestRun_UserPassFailureClosesWithStatus1(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	auth := stubAuth{user: "alice", pass: "secret", principal: "alice"}

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = handshake.Run(server, time.Now().Add(2*time.Second), handshake.Policy{AuthEnabled: true}, auth)
		close(done)
	}()

	_, _ = client.Write([]byte{0x05, 0x02, 0x00, 0x02})
	sel := make([]byte, 2)
	_, _ = client.Read(sel)

	up := []byte{0x01, 5, 'a', 'l', 'i', 'c', 'e', 5, 'w', 'r', 'o', 'n', 'g'}
	_, _ = client.Write(up)

	upReply := make([]byte, 2)
	_, _ = client.Read(upReply)
	require.Equal(t, byte(0x01), upReply[1])

	<-done
	require.Error(t, runErr)
}
