package chain_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/routing/chain"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

func serveSOCKS5NoAuthConnect(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		g, err := wire.ReadGreeting(conn)
		require.NoError(t, err)
		require.Contains(t, g.Methods, wire.MethodNoAuth)
		require.NoError(t, wire.WriteMethodSelect(conn, wire.MethodNoAuth))

		req, err := wire.ReadRequest(conn)
		require.NoError(t, err)
		require.Equal(t, wire.CmdConnect, req.Cmd)

		require.NoError(t, wire.WriteReply(conn, wire.ZeroReply(wire.ReplySuccess)))
	}()
}

func TestDialSingleSOCKS5Hop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serveSOCKS5NoAuthConnect(t, ln)

	d := chain.NewDialer(2 * time.Second)
	conn, err := d.Dial(context.Background(), []chain.Hop{{Kind: chain.HopSOCKS5, Addr: ln.Addr().String()}}, "example.com", 443)
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialEmptyChainFails(t *testing.T) {
	d := chain.NewDialer(time.Second)
	_, err := d.Dial(context.Background(), nil, "example.com", 443)
	require.ErrorIs(t, err, chain.ErrEmptyChain)
}

func TestDialSingleHTTPConnectHop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		line, _ := reader.ReadString('\n')
		require.Contains(t, line, "CONNECT example.com:443")
		for {
			l, err := reader.ReadString('\n')
			if err != nil || l == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	}()

	d := chain.NewDialer(2 * time.Second)
	conn, err := d.Dial(context.Background(), []chain.Hop{{Kind: chain.HopHTTPConnect, Addr: ln.Addr().String()}}, "example.com", 443)
	require.NoError(t, err)
	defer conn.Close()
}
