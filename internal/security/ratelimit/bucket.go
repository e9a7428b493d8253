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

// Package ratelimit implements the per-IP and global token-bucket rate
// limiters: one connection-rate and one auth-rate bucket per IP, plus a
// single global connection bucket.
package ratelimit

import (
	"sync"
	"time"

	juju "github.com/juju/ratelimit"
)

// bucket is a single token bucket: capacity, fractional token count, a
// refill rate in tokens/second and the last refill timestamp.
type bucket struct {
	capacity    float64
	tokens      float64
	refillRate  float64 // tokens per second
	lastRefill  time.Time
	blockedUntil time.Time
}

func newBucket(capacity float64, refillPerMinute float64, now time.Time) *bucket {
	return &bucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillPerMinute / 60.0,
		lastRefill: now,
	}
}

// refill adds (now-lastRefill)*rate tokens, capped at capacity. Refill is
// monotone non-decreasing in elapsed time and never exceeds capacity.
func (b *bucket) refill(now time.Time) {
	if now.Before(b.lastRefill) {
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 0 {
		b.tokens = 0
	}
	b.lastRefill = now
}

// tryConsume refills then subtracts n tokens if enough are present.
// Available tokens stay within [0, capacity] at all times.
func (b *bucket) tryConsume(n float64, now time.Time) bool {
	if now.Before(b.blockedUntil) {
		return false
	}
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

func (b *bucket) block(d time.Duration, now time.Time) {
	b.blockedUntil = now.Add(d)
}

func (b *bucket) isBlocked(now time.Time) bool {
	return now.Before(b.blockedUntil)
}

// perIPRecord holds the connection-rate and auth-rate buckets for one IP.
type perIPRecord struct {
	conn     *bucket
	authb    *bucket
	lastSeen time.Time
}

// Config controls capacities and refill rates, expressed per minute as the
// configuration schema specifies.
type Config struct {
	ConnectionCapacity      float64
	ConnectionRefillPerMin  float64
	AuthCapacity            float64
	AuthRefillPerMin        float64
	GlobalConnectionCap     float64
	GlobalConnRefillPerMin  float64
	BlockDuration           time.Duration
}

// DefaultConfig mirrors the component design's stated defaults.
func DefaultConfig() Config {
	return Config{
		ConnectionCapacity:     20,
		ConnectionRefillPerMin: 60,
		AuthCapacity:           5,
		AuthRefillPerMin:       10,
		GlobalConnectionCap:    1000,
		GlobalConnRefillPerMin: 6000,
		BlockDuration:          15 * time.Minute,
	}
}

// Limiter is the composed rate limiter: per-IP buckets plus one global
// connection bucket, guarded by per-map mutual exclusion. The global bucket
// is backed by juju/ratelimit, the same token-bucket library the upstream
// golib module pulls in as an indirect dependency; per-IP buckets are kept
// as the hand-rolled bucket type above since juju/ratelimit has no notion
// of a keyed map of buckets.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	perIP   map[string]*perIPRecord
	global  *juju.Bucket
	nowFunc func() time.Time
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	fillInterval := time.Minute
	if cfg.GlobalConnRefillPerMin > 0 {
		fillInterval = time.Duration(float64(time.Minute) / cfg.GlobalConnRefillPerMin)
	}
	return &Limiter{
		cfg:     cfg,
		perIP:   make(map[string]*perIPRecord),
		global:  juju.NewBucket(fillInterval, int64(cfg.GlobalConnectionCap)),
		nowFunc: time.Now,
	}
}

func (l *Limiter) now() time.Time {
	if l.nowFunc != nil {
		return l.nowFunc()
	}
	return time.Now()
}

func (l *Limiter) recordFor(ip string, now time.Time) *perIPRecord {
	r, ok := l.perIP[ip]
	if !ok {
		r = &perIPRecord{
			conn:  newBucket(l.cfg.ConnectionCapacity, l.cfg.ConnectionRefillPerMin, now),
			authb: newBucket(l.cfg.AuthCapacity, l.cfg.AuthRefillPerMin, now),
		}
		l.perIP[ip] = r
	}
	r.lastSeen = now
	return r
}

// AllowConnection checks global then per-IP connection buckets, in that
// order, each atomic with respect to itself only.
func (l *Limiter) AllowConnection(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.global.TakeAvailable(1) == 0 {
		return false
	}

	r := l.recordFor(ip, now)
	if r.conn.isBlocked(now) {
		return false
	}
	if !r.conn.tryConsume(1, now) {
		r.conn.block(l.cfg.BlockDuration, now)
		r.authb.block(l.cfg.BlockDuration, now)
		return false
	}
	return true
}

// AllowAuth checks the per-IP auth-rate bucket.
func (l *Limiter) AllowAuth(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.recordFor(ip, now)
	if r.authb.isBlocked(now) {
		return false
	}
	if !r.authb.tryConsume(1, now) {
		r.authb.block(l.cfg.BlockDuration, now)
		r.conn.block(l.cfg.BlockDuration, now)
		return false
	}
	return true
}

// ResetAuthCounter refills the auth bucket to capacity for key, called by
// the auth manager on a successful authentication.
func (l *Limiter) ResetAuthCounter(key string) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.recordFor(key, now)
	r.authb.tokens = r.authb.capacity
	r.authb.blockedUntil = time.Time{}
}

// Cleanup removes per-IP records with no recent activity and no active
// block.
func (l *Limiter) Cleanup(idleFor time.Duration) int {
	now := l.now()
	cutoff := now.Add(-idleFor)

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	for ip, r := range l.perIP {
		if r.conn.isBlocked(now) || r.authb.isBlocked(now) {
			continue
		}
		if r.lastSeen.Before(cutoff) {
			delete(l.perIP, ip)
			removed++
		}
	}
	return removed
}
