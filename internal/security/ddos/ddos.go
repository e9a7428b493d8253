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

// Package ddos implements the connection-flood detector: a per-IP sliding
// window of connection timestamps, a concurrent-connection cap (per-IP and
// global), and progressive bans on flooding. Cap rejections carry the flat
// BaseDelay; no progressive delay is computed.
package ddos

import (
	"sync"
	"time"
)

// Decision is the protector's verdict for an admission check.
type Decision struct {
	Allowed bool
	Reason  string
	Delay   time.Duration
}

func allow() Decision { return Decision{Allowed: true} }

func block(reason string, delay time.Duration) Decision {
	return Decision{Allowed: false, Reason: reason, Delay: delay}
}

// Config controls thresholds; defaults mirror the component design.
type Config struct {
	Window          time.Duration
	FloodThreshold  int
	BaseBan         time.Duration
	MaxPerIP        int
	GlobalMax       int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:         60 * time.Second,
		FloodThreshold: 30,
		BaseBan:        30 * time.Minute,
		MaxPerIP:       50,
		GlobalMax:      10000,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
	}
}

type record struct {
	timestamps  []time.Time
	concurrent  int
	violations  int
	blockedUntil time.Time
	lastActivity time.Time
}

// Protector is the sliding-window flood detector.
type Protector struct {
	cfg Config

	mu            sync.Mutex
	perIP         map[string]*record
	globalCurrent int
	nowFunc       func() time.Time
}

func New(cfg Config) *Protector {
	return &Protector{cfg: cfg, perIP: make(map[string]*record), nowFunc: time.Now}
}

func (p *Protector) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

func (p *Protector) recordFor(ip string) *record {
	r, ok := p.perIP[ip]
	if !ok {
		r = &record{}
		p.perIP[ip] = r
	}
	return r
}

// OnConnect evaluates a newly-accepted connection from ip against the
// global cap, the per-IP concurrent cap, and the sliding-window flood
// threshold, in that order. It does NOT increment the concurrent counter —
// call ConnectionStarted once admission is fully decided.
func (p *Protector) OnConnect(ip string) Decision {
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.globalCurrent >= p.cfg.GlobalMax {
		return block("global connection cap reached", p.cfg.BaseDelay)
	}

	r := p.recordFor(ip)
	r.lastActivity = now

	if now.Before(r.blockedUntil) {
		return block("ip currently banned for flooding", time.Until(r.blockedUntil))
	}

	if r.concurrent >= p.cfg.MaxPerIP {
		return block("per-ip concurrent connection cap reached", p.cfg.BaseDelay)
	}

	// prune then append
	cutoff := now.Add(-p.cfg.Window)
	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	r.timestamps = kept

	if len(r.timestamps) > p.cfg.FloodThreshold {
		r.violations++
		ban := p.cfg.BaseBan * time.Duration(pow2Capped(r.violations, 5))
		r.blockedUntil = now.Add(ban)
		return block("connection flood detected", ban)
	}

	return allow()
}

func pow2Capped(n, cap int) int64 {
	if n > cap {
		n = cap
	}
	return int64(1) << uint(n)
}

// ConnectionStarted increments the per-IP and global concurrent counters.
// Must be paired with exactly one ConnectionEnded on every exit path.
func (p *Protector) ConnectionStarted(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.recordFor(ip)
	r.concurrent++
	p.globalCurrent++
}

// ConnectionEnded decrements the per-IP and global concurrent counters.
func (p *Protector) ConnectionEnded(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.perIP[ip]; ok && r.concurrent > 0 {
		r.concurrent--
	}
	if p.globalCurrent > 0 {
		p.globalCurrent--
	}
}

// Cleanup removes per-IP records idle for 2x the caller's cleanup interval
// with no active ban and no active concurrent connections.
func (p *Protector) Cleanup(idleFor time.Duration) int {
	now := p.now()
	cutoff := now.Add(-idleFor)

	p.mu.Lock()
	defer p.mu.Unlock()

	var removed int
	for ip, r := range p.perIP {
		if now.Before(r.blockedUntil) || r.concurrent > 0 {
			continue
		}
		if r.lastActivity.Before(cutoff) {
			delete(p.perIP, ip)
			removed++
		}
	}
	return removed
}
