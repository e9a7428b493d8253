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

// Package gateway orchestrates the full admission pipeline: rate limiting,
// flood and fail2ban gates, slot acquisition, handshake, authentication,
// routing, upstream dial, and relay, plus the background janitor and
// graceful shutdown.
package gateway

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/socks5-gateway/internal/auth"
	gwerrors "github.com/nabbar/socks5-gateway/internal/errors"
	"github.com/nabbar/socks5-gateway/internal/logger"
	"github.com/nabbar/socks5-gateway/internal/metrics"
	"github.com/nabbar/socks5-gateway/internal/relay"
	"github.com/nabbar/socks5-gateway/internal/resource"
	"github.com/nabbar/socks5-gateway/internal/routing"
	"github.com/nabbar/socks5-gateway/internal/routing/acl"
	"github.com/nabbar/socks5-gateway/internal/security/ddos"
	"github.com/nabbar/socks5-gateway/internal/security/fail2ban"
	"github.com/nabbar/socks5-gateway/internal/security/ratelimit"
	"github.com/nabbar/socks5-gateway/internal/socks5/handshake"
	"github.com/nabbar/socks5-gateway/internal/socks5/wire"
)

// Config controls the manager's admission and shutdown behavior.
type Config struct {
	ListenAddr        string
	MaxConnections    int64
	ConnectionTimeout time.Duration
	HandshakeTimeout  time.Duration
	ShutdownTimeout   time.Duration
	JanitorInterval   time.Duration
	BufferSize        int
	IdleTimeout       time.Duration
	MaxMemoryMB       int64
	EnableKeepalive   bool
	KeepaliveInterval time.Duration
	// SystemMemoryFloorPercent rejects new connections once host memory
	// usage (independent of MaxMemoryMB's per-connection accounting)
	// reaches this percentage. Zero disables the guard.
	SystemMemoryFloorPercent float64
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:1080",
		MaxConnections:    1000,
		ConnectionTimeout: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		JanitorInterval:   60 * time.Second,
		BufferSize:        32 * 1024,
		IdleTimeout:       300 * time.Second,
		EnableKeepalive:   true,
		KeepaliveInterval: 30 * time.Second,
	}
}

// Dialer dials an upstream for a routing.Decision's proxy/chain target, or
// dials the final target directly when the decision is a plain allow.
type Dialer interface {
	DialDirect(ctx context.Context, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error)
	DialUpstream(ctx context.Context, upstream string, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error)
	DialChain(ctx context.Context, chain []string, target wire.TargetAddress, port uint16, timeout time.Duration) (net.Conn, error)
}

// Manager is the SOCKS5 gateway's connection lifecycle orchestrator.
type Manager struct {
	cfg Config
	log logger.Logger

	limiter *ratelimit.Limiter
	ddos    *ddos.Protector
	f2b     *fail2ban.F2B
	authMgr *auth.Manager
	acl     *acl.ACL // optional legacy fast path, nil disables it
	engine  *routing.Engine
	slots     *resource.Slots
	pool      *resource.Pool
	memBudget *resource.MemoryBudget
	metrics   *metrics.Registry
	dialer    Dialer

	handshakePolicy handshake.Policy

	listener net.Listener

	mu          sync.Mutex
	shutdown    bool
	doneCh      chan struct{}
	active      int64
	connStarted sync.Map // sessionID (string) -> time.Time, for idle logging only
}

// New builds a Manager. Every collaborator is constructed by the caller
// (cmd/socks5gwd's wiring) so each stays independently testable.
func New(
	cfg Config,
	log logger.Logger,
	limiter *ratelimit.Limiter,
	protector *ddos.Protector,
	f2b *fail2ban.F2B,
	authMgr *auth.Manager,
	accessList *acl.ACL,
	engine *routing.Engine,
	slots *resource.Slots,
	pool *resource.Pool,
	reg *metrics.Registry,
	dialer Dialer,
	handshakePolicy handshake.Policy,
) *Manager {
	return &Manager{
		cfg:             cfg,
		log:             log,
		limiter:         limiter,
		ddos:            protector,
		f2b:             f2b,
		authMgr:         authMgr,
		acl:             accessList,
		engine:          engine,
		slots:           slots,
		pool:            pool,
		memBudget:       resource.NewMemoryBudget(cfg.MaxMemoryMB * 1024 * 1024),
		metrics:         reg,
		dialer:          dialer,
		handshakePolicy: handshakePolicy,
		doneCh:          make(chan struct{}),
	}
}

// Serve opens the listener and accepts connections until ctx is done or
// Shutdown is called. It blocks until the accept loop exits.
func (m *Manager) Serve(ctx context.Context) error {
	keepAlive := -time.Second // <0 disables OS-level keepalive on the listener's accepted conns
	if m.cfg.EnableKeepalive {
		keepAlive = m.cfg.KeepaliveInterval
	}
	lc := net.ListenConfig{KeepAlive: keepAlive}
	ln, err := lc.Listen(ctx, "tcp", m.cfg.ListenAddr)
	if err != nil {
		return err
	}
	m.listener = ln
	m.log.Info("gateway listening", nil, "addr", m.cfg.ListenAddr)

	go m.janitorLoop(ctx)

	go func() {
		<-ctx.Done()
		m.listener.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			m.mu.Lock()
			shuttingDown := m.shutdown
			m.mu.Unlock()
			if shuttingDown || ctx.Err() != nil {
				return nil
			}
			return err
		}
		go m.handleConnection(ctx, conn)
	}
}

// Shutdown stops accepting new connections and waits up to
// cfg.ShutdownTimeout for in-flight connections to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	if m.listener != nil {
		m.listener.Close()
	}

	deadline := time.Now().Add(m.cfg.ShutdownTimeout)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&m.active) == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	m.log.Warn("shutdown timeout reached with connections still active", nil, "active", atomic.LoadInt64(&m.active))
}

// dialFailureCode maps a SOCKS5 reply code back to the matching coded error
// kind, for structured logging of upstream dial failures.
func dialFailureCode(code wire.ReplyCode) gwerrors.CodeError {
	switch code {
	case wire.ReplyTTLExpired:
		return gwerrors.CodeUpstreamTimeout
	case wire.ReplyConnectionRefused:
		return gwerrors.CodeUpstreamRefused
	case wire.ReplyNetworkUnreachable:
		return gwerrors.CodeUpstreamNetUnreach
	case wire.ReplyHostUnreachable:
		return gwerrors.CodeUpstreamHostUnreach
	default:
		return gwerrors.CodeUpstreamGeneral
	}
}

func splitRedirectAddr(addr string) (wire.TargetAddress, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return wire.TargetAddress{}, 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.TargetAddress{}, 0, err
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return wire.TargetAddress{Kind: wire.AddrIPv4, IP: ip4}, uint16(port), nil
		}
		return wire.TargetAddress{Kind: wire.AddrIPv6, IP: ip.To16()}, uint16(port), nil
	}
	return wire.TargetAddress{Kind: wire.AddrDomain, Domain: host}, uint16(port), nil
}

func clientIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (m *Manager) handleConnection(ctx context.Context, conn net.Conn) {
	ip := clientIP(conn)
	defer conn.Close()

	if allowed := m.limiter.AllowConnection(ip); !allowed {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionRateLimited.Error(nil), "ip", ip)
		return
	}

	dd := m.ddos.OnConnect(ip)
	if !dd.Allowed {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionDDoS.Error(nil), "ip", ip)
		if dd.Delay > 0 {
			time.Sleep(dd.Delay)
		}
		return
	}

	if fd := m.f2b.Check(ip); fd.Verdict == fail2ban.VerdictBlock {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionBanned.Error(nil), "ip", ip)
		return
	} else if fd.Verdict == fail2ban.VerdictDelay {
		time.Sleep(fd.Delay)
	}

	if m.cfg.SystemMemoryFloorPercent > 0 && resource.LowMemoryGuard(m.cfg.SystemMemoryFloorPercent) {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionNoMemory.Error(nil), "ip", ip, "reason", "system_memory_floor")
		return
	}

	handle, ok := m.slots.Acquire()
	if !ok {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionNoSlot.Error(nil), "ip", ip)
		return
	}
	defer handle.Release()

	connMemory := int64(m.cfg.BufferSize) * 2
	if !m.memBudget.Allocate(connMemory) {
		m.metrics.RecordBlocked()
		m.log.Debug("connection rejected", nil, "error", gwerrors.CodeAdmissionNoMemory.Error(nil), "ip", ip)
		return
	}
	defer m.memBudget.Release(connMemory)

	m.ddos.ConnectionStarted(ip)
	defer m.ddos.ConnectionEnded(ip)

	atomic.AddInt64(&m.active, 1)
	defer atomic.AddInt64(&m.active, -1)

	sessionID := uuid.NewString()
	counters := m.metrics.ConnectionOpened(sessionID)
	startedAt := time.Now()
	outcome := "error"
	var target string

	m.connStarted.Store(sessionID, startedAt)
	defer m.connStarted.Delete(sessionID)

	defer func() {
		m.metrics.ConnectionClosed(metrics.HistoryEntry{
			SessionID: sessionID,
			ClientIP:  ip,
			Target:    target,
			BytesIn:   counters.BytesIn,
			BytesOut:  counters.BytesOut,
			StartedAt: startedAt,
			EndedAt:   time.Now(),
			Outcome:   outcome,
		})
	}()

	result, err := handshake.Run(conn, time.Now().Add(m.cfg.HandshakeTimeout), m.handshakePolicy, authAdapter{m: m, ip: ip})
	if err != nil {
		return
	}

	target = result.Request.Target.String()

	if m.acl != nil {
		if v := m.acl.Check(target, result.Request.Port, net.ParseIP(ip)); v == acl.VerdictBlock {
			wire.WriteReply(conn, wire.ZeroReply(wire.ReplyNotAllowed))
			outcome = "acl_blocked"
			return
		}
	}

	srcAddr, _ := netip.ParseAddr(ip)
	decision := m.engine.Evaluate(routing.Request{
		Target:   result.Request.Target.String(),
		Port:     result.Request.Port,
		SourceIP: srcAddr,
		User:     result.Principal,
	})

	if decision.Action == routing.ActionBlock {
		wire.WriteReply(conn, wire.ZeroReply(wire.ReplyNotAllowed))
		outcome = "blocked"
		return
	}

	m.relayVia(ctx, conn, decision, result.Request, &outcome)
}

func (m *Manager) relayVia(ctx context.Context, conn net.Conn, decision routing.Decision, req wire.Request, outcome *string) {
	var upstream net.Conn
	var err error

	switch decision.Action {
	case routing.ActionProxy:
		upstream, err = m.dialer.DialUpstream(ctx, decision.Upstream, req.Target, req.Port, m.cfg.ConnectionTimeout)
	case routing.ActionProxyChain:
		upstream, err = m.dialer.DialChain(ctx, decision.ProxyChain, req.Target, req.Port, m.cfg.ConnectionTimeout)
	case routing.ActionRedirect:
		redirectTarget, redirectPort, splitErr := splitRedirectAddr(decision.RedirectAddr)
		if splitErr != nil {
			wire.WriteReply(conn, wire.ZeroReply(wire.ReplyGeneralFailure))
			*outcome = "redirect_misconfigured"
			return
		}
		upstream, err = m.dialer.DialDirect(ctx, redirectTarget, redirectPort, m.cfg.ConnectionTimeout)
	default:
		upstream, err = m.dialer.DialDirect(ctx, req.Target, req.Port, m.cfg.ConnectionTimeout)
	}

	if err != nil {
		code := relay.ReplyCodeForError(err)
		wire.WriteReply(conn, wire.ZeroReply(code))
		*outcome = "dial_failed"
		m.log.Debug("upstream dial failed", nil, "error", dialFailureCode(code).Error(err))
		return
	}
	defer upstream.Close()

	if err := wire.WriteReply(conn, wire.ZeroReply(wire.ReplySuccess)); err != nil {
		*outcome = "reply_failed"
		return
	}

	*outcome = "relayed"
	relay.Relay(conn, upstream, m.cfg.ConnectionTimeout, m.cfg.BufferSize)
}

// authAdapter bridges handshake.Authenticator to the auth.Manager plus the
// fail2ban/ratelimit reporting that must happen around every attempt.
type authAdapter struct {
	m  *Manager
	ip string
}

func (a authAdapter) Authenticate(username, password string) (string, bool) {
	if !a.m.limiter.AllowAuth(a.ip) {
		return "", false
	}
	if fd := a.m.f2b.Check(a.ip); fd.Verdict == fail2ban.VerdictBlock {
		return "", false
	} else if fd.Verdict == fail2ban.VerdictDelay {
		time.Sleep(fd.Delay)
	}

	principal, ok := a.m.authMgr.Authenticate(username, password)
	a.m.metrics.RecordAuthAttempt(ok)
	if ok {
		a.m.f2b.RecordSuccess(a.ip)
	} else {
		a.m.f2b.RecordFailure(a.ip)
		time.Sleep(a.m.authMgr.DelayFor(username))
	}
	return principal, ok
}

func (m *Manager) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runJanitor()
		}
	}
}

func (m *Manager) runJanitor() {
	idle := 2 * m.cfg.JanitorInterval
	n1 := m.limiter.Cleanup(idle)
	n2 := m.ddos.Cleanup(idle)
	n3 := m.f2b.Cleanup(idle)
	n4 := m.pool.Cleanup()
	n5 := m.logIdleConnections()
	m.log.Debug("janitor pass complete", nil, "ratelimit_evicted", n1, "ddos_evicted", n2, "fail2ban_evicted", n3, "pool_evicted", n4, "idle_logged", n5)
}

// logIdleConnections logs (without closing) every connection that has been
// open longer than cfg.IdleTimeout. Active connections aren't individually
// tracked for read/write inactivity, so "idle" here is a proxy for
// "long-running" -- closing in-flight connections is not required.
func (m *Manager) logIdleConnections() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	now := time.Now()
	var count int
	m.connStarted.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) > m.cfg.IdleTimeout {
			count++
			m.log.Debug("long-running connection", nil, "session_id", key, "age", now.Sub(value.(time.Time)).String())
		}
		return true
	})
	return count
}
