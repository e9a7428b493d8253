package relay_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/socks5-gateway/internal/relay"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

func TestReplyCodeForError(t *testing.T) {
	cases := []struct {
		msg  string
		want wire.ReplyCode
	}{
		{"dial tcp: i/o timeout", wire.ReplyTTLExpired},
		{"dial tcp 1.2.3.4:80: connect: connection refused", wire.ReplyConnectionRefused},
		{"dial tcp: network is unreachable", wire.ReplyNetworkUnreachable},
		{"dial tcp: no route to host", wire.ReplyHostUnreachable},
		{"lookup example.invalid: no such host", wire.ReplyHostUnreachable},
		{"something unexpected happened", wire.ReplyGeneralFailure},
	}
	for _, c := range cases {
		require.Equal(t, c.want, relay.ReplyCodeForError(errors.New(c.msg)), c.msg)
	}
	require.Equal(t, wire.ReplySuccess, relay.ReplyCodeForError(nil))
}

func TestRelay_SplicesBothDirections(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	upstreamLocal, upstreamRemote := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, _ := upstreamRemote.Read(buf)
		require.Equal(t, "hello", string(buf[:n]))
		upstreamRemote.Write([]byte("world"))
		upstreamRemote.Close()
	}()

	go func() {
		clientRemote.Write([]byte("hello"))
	}()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Relay(clientLocal, upstreamLocal, 2*time.Second, 0)
	}()

	buf := make([]byte, 5)
	n, _ := clientRemote.Read(buf)
	require.Equal(t, "world", string(buf[:n]))

	clientRemote.Close()
	<-done
	<-relayDone
}
