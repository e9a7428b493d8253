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

// Package fail2ban implements the per-IP authentication-failure window,
// progressive bans, progressive pre-auth delays, and an IP whitelist.
package fail2ban

import (
	"net"
	"sync"
	"time"
)

// Verdict is the pre-authentication decision.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictDelay
	VerdictBlock
)

// Decision is the full pre-auth result returned by Check.
type Decision struct {
	Verdict        Verdict
	Reason         string
	Delay          time.Duration
	TimeUntilUnban time.Duration
}

// Config controls thresholds; defaults mirror the component design.
type Config struct {
	Window      time.Duration
	MaxFailures int
	BaseBan     time.Duration
	Multiplier  float64
	MaxBan      time.Duration
	Whitelist   []string
}

func DefaultConfig() Config {
	return Config{
		Window:      10 * time.Minute,
		MaxFailures: 5,
		BaseBan:     30 * time.Minute,
		Multiplier:  2,
		MaxBan:      24 * time.Hour,
	}
}

type record struct {
	failures     []time.Time
	totalFail    int
	totalSuccess int
	banCount     int
	bannedUntil  time.Time
}

// F2B is the fail2ban gate.
type F2B struct {
	cfg       Config
	whitelist map[string]struct{}
	nets      []*net.IPNet

	mu      sync.Mutex
	perIP   map[string]*record
	nowFunc func() time.Time
}

func New(cfg Config) *F2B {
	f := &F2B{
		cfg:       cfg,
		whitelist: make(map[string]struct{}),
		perIP:     make(map[string]*record),
		nowFunc:   time.Now,
	}
	for _, w := range cfg.Whitelist {
		if ip := net.ParseIP(w); ip != nil {
			f.whitelist[ip.String()] = struct{}{}
			continue
		}
		if _, cidr, err := net.ParseCIDR(w); err == nil {
			f.nets = append(f.nets, cidr)
		}
		// malformed entries are silently ignored, per the component design
	}
	return f
}

func (f *F2B) now() time.Time {
	if f.nowFunc != nil {
		return f.nowFunc()
	}
	return time.Now()
}

func (f *F2B) isWhitelisted(ip string) bool {
	if _, ok := f.whitelist[ip]; ok {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range f.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func (f *F2B) recordFor(ip string) *record {
	r, ok := f.perIP[ip]
	if !ok {
		r = &record{}
		f.perIP[ip] = r
	}
	return r
}

// Check returns the pre-authentication decision for ip. Whitelisted IPs
// always Allow.
func (f *F2B) Check(ip string) Decision {
	if f.isWhitelisted(ip) {
		return Decision{Verdict: VerdictAllow}
	}

	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.recordFor(ip)
	if now.Before(r.bannedUntil) {
		return Decision{Verdict: VerdictBlock, Reason: "ip banned", Delay: f.cfg.BaseBan, TimeUntilUnban: r.bannedUntil.Sub(now)}
	}

	if r.banCount > 0 {
		delay := progressiveDelay(r.banCount)
		return Decision{Verdict: VerdictDelay, Reason: "previously banned ip", Delay: delay}
	}

	return Decision{Verdict: VerdictAllow}
}

func progressiveDelay(banCount int) time.Duration {
	d := time.Second * time.Duration(banCount)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// RecordFailure appends a failure timestamp after pruning the window; if
// the retained count reaches MaxFailures, the IP is banned. Whitelisted
// IPs are never recorded and can never be manually banned.
func (f *F2B) RecordFailure(ip string) Decision {
	if f.isWhitelisted(ip) {
		return Decision{Verdict: VerdictAllow}
	}

	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.recordFor(ip)
	cutoff := now.Add(-f.cfg.Window)
	kept := r.failures[:0]
	for _, ts := range r.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	r.failures = kept
	r.totalFail++

	if len(r.failures) >= f.cfg.MaxFailures {
		r.banCount++
		ban := banDuration(f.cfg, r.banCount)
		r.bannedUntil = now.Add(ban)
		r.failures = nil
		return Decision{Verdict: VerdictBlock, Reason: "authentication failure threshold reached", Delay: ban, TimeUntilUnban: ban}
	}

	return Decision{Verdict: VerdictAllow}
}

func banDuration(cfg Config, banCount int) time.Duration {
	mult := 1.0
	for i := 1; i < banCount; i++ {
		mult *= cfg.Multiplier
	}
	d := time.Duration(float64(cfg.BaseBan) * mult)
	if d > cfg.MaxBan {
		return cfg.MaxBan
	}
	return d
}

// RecordSuccess clears the failure window but preserves lifetime counters
// and ban count.
func (f *F2B) RecordSuccess(ip string) {
	if f.isWhitelisted(ip) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.recordFor(ip)
	r.failures = nil
	r.totalSuccess++
}

// Ban manually bans an IP; whitelisted IPs cannot be banned.
func (f *F2B) Ban(ip string, d time.Duration) bool {
	if f.isWhitelisted(ip) {
		return false
	}
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.recordFor(ip)
	r.banCount++
	r.bannedUntil = now.Add(d)
	return true
}

// Cleanup removes per-IP records with no recent activity and no active
// ban.
func (f *F2B) Cleanup(idleFor time.Duration) int {
	now := f.now()
	cutoff := now.Add(-idleFor)

	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int
	for ip, r := range f.perIP {
		if now.Before(r.bannedUntil) {
			continue
		}
		var last time.Time
		if len(r.failures) > 0 {
			last = r.failures[len(r.failures)-1]
		}
		if last.Before(cutoff) {
			delete(f.perIP, ip)
			removed++
		}
	}
	return removed
}
