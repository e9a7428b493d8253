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

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/socks5-gateway/internal/auth"
	"github.com/nabbar/socks5-gateway/internal/config"
	"github.com/nabbar/socks5-gateway/internal/gateway"
	"github.com/nabbar/socks5-gateway/internal/logger"
	"github.com/nabbar/socks5-gateway/internal/management"
	"github.com/nabbar/socks5-gateway/internal/metrics"
	"github.com/nabbar/socks5-gateway/internal/resource"
	"github.com/nabbar/socks5-gateway/internal/routing"
	"github.com/nabbar/socks5-gateway/internal/routing/acl"
	"github.com/nabbar/socks5-gateway/internal/routing/smart"
	"github.com/nabbar/socks5-gateway/internal/security/ddos"
	"github.com/nabbar/socks5-gateway/internal/security/fail2ban"
	"github.com/nabbar/socks5-gateway/internal/security/ratelimit"
	"github.com/nabbar/socks5-gateway/internal/socks5/handshake"
)

// runServe wires every collaborator package into a gateway.Manager and an
// optional management API, then blocks until an interrupt or terminate
// signal triggers a graceful drain.
func runServe(f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	log := logger.New()
	log.SetLevel(cfg.Monitoring.LogLevel)

	snap := config.NewSnapshot(cfg)

	rules, err := buildRoutingRules(cfg.Routing.Rules)
	if err != nil {
		return err
	}
	upstreams, err := buildUpstreams(cfg.Routing.Upstreams)
	if err != nil {
		return err
	}

	smartOpts := smart.Options{
		EnableLatencyRouting: cfg.Routing.SmartRouting.EnableLatencyRouting,
		EnableHealthRouting:  cfg.Routing.SmartRouting.EnableHealthRouting,
		MinMeasurements:      cfg.Routing.SmartRouting.MinMeasurements,
	}
	dialer := gateway.NewDefaultDialer(upstreams, cfg.Server.ConnectionTimeout, smartOpts)
	engine := routing.NewEngine(rules, dialer.Known)

	var accessList *acl.ACL
	if cfg.AccessControl.Enabled {
		lookuper, err := buildGeoIPLookuper(cfg.AccessControl.GeoIPDatabase)
		if err != nil {
			return err
		}
		accessList, err = acl.New(buildACLEntries(cfg.AccessControl.Allow), buildACLEntries(cfg.AccessControl.Block), lookuper, cfg.AccessControl.DefaultPolicy)
		if err != nil {
			return fmt.Errorf("access control list: %w", err)
		}
	}

	authStore := auth.NewStore(buildUserRecords(cfg.Auth.Users))
	limiter := ratelimit.New(buildRatelimitConfig(cfg))
	authMgr := auth.NewManager(authStore, auth.NewSessionTracker(), cfg.Auth.Enabled, limiter)

	protector := ddos.New(buildDDoSConfig(cfg))
	f2b := fail2ban.New(buildFail2BanConfig(cfg))

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	slots := resource.NewSlots(int64(cfg.Server.MaxConnections))

	poolCfg := resource.DefaultPoolConfig()
	poolCfg.PerKeyCap = cfg.Server.ConnectionPoolSize
	poolCfg.IdleTimeout = cfg.Server.IdleTimeout
	pool := resource.NewPool(poolCfg)

	gwCfg := gateway.Config{
		ListenAddr:               net.JoinHostPort(cfg.Server.BindAddress, fmt.Sprintf("%d", cfg.Server.Port)),
		MaxConnections:           int64(cfg.Server.MaxConnections),
		ConnectionTimeout:        cfg.Server.ConnectionTimeout,
		HandshakeTimeout:         cfg.Server.HandshakeTimeout,
		ShutdownTimeout:          cfg.Server.ShutdownTimeout,
		JanitorInterval:          time.Minute,
		BufferSize:               cfg.Server.BufferSize,
		IdleTimeout:              cfg.Server.IdleTimeout,
		MaxMemoryMB:              cfg.Server.MaxMemoryMB,
		EnableKeepalive:          cfg.Server.EnableKeepalive,
		KeepaliveInterval:        cfg.Server.KeepaliveInterval,
		SystemMemoryFloorPercent: cfg.Server.SystemMemoryFloorPercent,
	}

	mgr := gateway.New(
		gwCfg,
		log,
		limiter,
		protector,
		f2b,
		authMgr,
		accessList,
		engine,
		slots,
		pool,
		reg,
		dialer,
		handshake.Policy{AuthEnabled: cfg.Auth.Enabled},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(upstreams) > 0 {
		go func() {
			sel := dialer.Selector()
			ticker := time.NewTicker(sel.ProbeInterval())
			defer ticker.Stop()
			for {
				if err := sel.RunProbes(ctx, dialer.AddrFor); err != nil && ctx.Err() == nil {
					log.Warn("upstream probe round failed", nil, "error", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	var mgmtSrv *http.Server
	if cfg.Monitoring.ManagementEnabled {
		api := management.New(snap, authMgr, reg, log, management.AuthMode(cfg.Monitoring.ManagementAuth), cfg.Monitoring.ManagementToken, func() error {
			reloaded, _, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			snap.Swap(reloaded)
			return nil
		})
		mgmtSrv = &http.Server{Addr: cfg.Monitoring.ManagementAddr, Handler: api.Handler()}
		go func() {
			log.Info("management API listening", nil, "addr", cfg.Monitoring.ManagementAddr)
			if err := mgmtSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("management API stopped", nil, "error", err)
			}
		}()
	}

	if f.configPath != "" {
		watcher := config.NewWatcher(f.configPath, log, snap)
		if err := watcher.Start(); err != nil {
			log.Warn("config hot-reload watcher failed to start", nil, "error", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- mgr.Serve(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", nil, "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	cancel()
	mgr.Shutdown()
	if mgmtSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = mgmtSrv.Shutdown(shutdownCtx)
	}
	return nil
}
