package gateway_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/auth"
	"github.com/nabbar/socks5-gateway/internal/gateway"
	"github.com/nabbar/socks5-gateway/internal/logger"
	"github.com/nabbar/socks5-gateway/internal/metrics"
	"github.com/nabbar/socks5-gateway/internal/resource"
	"github.com/nabbar/socks5-gateway/internal/routing"
	"github.com/nabbar/socks5-gateway/internal/routing/smart"
	"github.com/nabbar/socks5-gateway/internal/security/ddos"
	"github.com/nabbar/socks5-gateway/internal/security/fail2ban"
	"github.com/nabbar/socks5-gateway/internal/security/ratelimit"
	"github.com/nabbar/socks5-gateway/internal/socks5/handshake"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

func startEchoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

func buildManager(t *testing.T, gwAddr string) *gateway.Manager {
	t.Helper()
	cfg := gateway.DefaultConfig()
	cfg.ListenAddr = gwAddr
	cfg.JanitorInterval = time.Hour

	authStore := auth.NewStore(nil)
	authMgr := auth.NewManager(authStore, auth.NewSessionTracker(), false, nil)
	engine := routing.NewEngine(nil, nil)
	dialer := gateway.NewDefaultDialer(nil, 2*time.Second, smart.DefaultOptions())

	return gateway.New(
		cfg,
		logger.New(),
		ratelimit.New(ratelimit.DefaultConfig()),
		ddos.New(ddos.DefaultConfig()),
		fail2ban.New(fail2ban.DefaultConfig()),
		authMgr,
		nil,
		engine,
		resource.NewSlots(cfg.MaxConnections),
		resource.NewPool(resource.DefaultPoolConfig()),
		metrics.NewRegistry(prometheus.NewRegistry()),
		dialer,
		handshake.Policy{AuthEnabled: false},
	)
}

func TestGateway_NoAuthConnectRelaysData(t *testing.T) {
	echo := startEchoServer(t)
	defer echo.Close()

	gwLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gwAddr := gwLn.Addr().String()
	gwLn.Close()

	m := buildManager(t, gwAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- m.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)

	conn, err := net.DialTimeout("tcp", gwAddr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	// greeting: VER=5, NMETHODS=1, METHODS=[NO_AUTH]
	_, err = conn.Write([]byte{wire.Version5, 1, byte(wire.MethodNoAuth)})
	require.NoError(t, err)

	methodReply := make([]byte, 2)
	_, err = io.ReadFull(conn, methodReply)
	require.NoError(t, err)
	require.Equal(t, wire.Version5, methodReply[0])
	require.Equal(t, byte(wire.MethodNoAuth), methodReply[1])

	echoHost, echoPortStr, err := net.SplitHostPort(echo.Addr().String())
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", echoHost)

	var echoPort int
	_, err = fmt.Sscanf(echoPortStr, "%d", &echoPort)
	require.NoError(t, err)

	require.NoError(t, wire.WriteRequest(conn, wire.Request{
		Cmd:    wire.CmdConnect,
		Target: wire.TargetAddress{Kind: wire.AddrIPv4, IP: net.ParseIP("127.0.0.1").To4()},
		Port:   uint16(echoPort),
	}))

	reply, err := wire.ReadReply(conn)
	require.NoError(t, err)
	require.Equal(t, wire.ReplySuccess, reply.Code)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}
