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

// Package resource bounds the gateway's footprint: a connection-slot
// semaphore, a memory budget counter, and a pooled keep-alive set of
// upstream connections.
package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Slots is a non-blocking connection-count limiter backed by a weighted
// semaphore.
type Slots struct {
	sem *semaphore.Weighted
	max int64
}

// NewSlots builds a Slots admitting at most max concurrent connections.
func NewSlots(max int64) *Slots {
	return &Slots{sem: semaphore.NewWeighted(max), max: max}
}

// Handle releases exactly once the slot it was issued for.
type Handle struct {
	release func()
	once    sync.Once
}

// Release frees the slot. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

// Acquire attempts to take one slot without blocking; ok is false when the
// pool is at capacity.
func (s *Slots) Acquire() (*Handle, bool) {
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	return &Handle{release: func() { s.sem.Release(1) }}, true
}

// Max returns the configured slot capacity.
func (s *Slots) Max() int64 { return s.max }

// MemoryBudget tracks allocated bytes against a ceiling, with a
// high-water mark.
type MemoryBudget struct {
	ceiling   int64
	allocated int64
	peak      int64
}

// NewMemoryBudget builds a budget with the given byte ceiling. A ceiling
// of 0 disables the check (Allocate always succeeds).
func NewMemoryBudget(ceiling int64) *MemoryBudget {
	return &MemoryBudget{ceiling: ceiling}
}

// Allocate reserves n bytes against the ceiling; ok is false if it would
// overflow the ceiling. On success, the peak high-water mark is updated.
func (b *MemoryBudget) Allocate(n int64) bool {
	if b.ceiling > 0 {
		if atomic.AddInt64(&b.allocated, n) > b.ceiling {
			atomic.AddInt64(&b.allocated, -n)
			return false
		}
	} else {
		atomic.AddInt64(&b.allocated, n)
	}
	for {
		cur := atomic.LoadInt64(&b.peak)
		now := atomic.LoadInt64(&b.allocated)
		if now <= cur {
			break
		}
		if atomic.CompareAndSwapInt64(&b.peak, cur, now) {
			break
		}
	}
	return true
}

// Release returns n bytes to the budget.
func (b *MemoryBudget) Release(n int64) {
	atomic.AddInt64(&b.allocated, -n)
}

// Allocated returns the currently reserved byte count.
func (b *MemoryBudget) Allocated() int64 { return atomic.LoadInt64(&b.allocated) }

// Peak returns the high-water mark observed so far.
func (b *MemoryBudget) Peak() int64 { return atomic.LoadInt64(&b.peak) }

// pooledConn is one idle keep-alive connection held for an upstream.
type pooledConn struct {
	conn      PooledConn
	createdAt time.Time
	lastUsed  time.Time
}

// PooledConn is the minimal surface the pool needs from a kept-alive
// upstream connection.
type PooledConn interface {
	Close() error
}

// PoolConfig controls the upstream connection pool's eviction policy.
type PoolConfig struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	PerKeyCap   int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxAge: 300 * time.Second, IdleTimeout: 90 * time.Second, PerKeyCap: 8}
}

// Pool is a keyed set of idle upstream connections available for reuse.
type Pool struct {
	cfg PoolConfig

	mu    sync.Mutex
	byKey map[string][]*pooledConn
}

func NewPool(cfg PoolConfig) *Pool {
	return &Pool{cfg: cfg, byKey: make(map[string][]*pooledConn)}
}

// Put returns a connection to the pool for key, evicting the oldest entry
// if the per-key cap would be exceeded.
func (p *Pool) Put(key string, conn PooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	entries := p.byKey[key]
	if len(entries) >= p.cfg.PerKeyCap {
		entries[0].conn.Close()
		entries = entries[1:]
	}
	entries = append(entries, &pooledConn{conn: conn, createdAt: now, lastUsed: now})
	p.byKey[key] = entries
}

// Get pops the most recently used still-fresh connection for key, or nil
// if none is available.
func (p *Pool) Get(key string) PooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.byKey[key]
	now := time.Now()
	for len(entries) > 0 {
		e := entries[len(entries)-1]
		entries = entries[:len(entries)-1]
		p.byKey[key] = entries
		if now.Sub(e.createdAt) > p.cfg.MaxAge || now.Sub(e.lastUsed) > p.cfg.IdleTimeout {
			e.conn.Close()
			continue
		}
		return e.conn
	}
	return nil
}

// Cleanup closes and removes every connection past its max age or idle
// timeout, returning the count evicted.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var removed int
	for key, entries := range p.byKey {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.createdAt) > p.cfg.MaxAge || now.Sub(e.lastUsed) > p.cfg.IdleTimeout {
				e.conn.Close()
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.byKey, key)
		} else {
			p.byKey[key] = kept
		}
	}
	return removed
}

// AcquireBlocking waits up to ctx's deadline for a slot, for callers that
// prefer to queue rather than fail fast (the hot connect path uses
// TryAcquire instead).
func (s *Slots) AcquireBlocking(ctx context.Context) (*Handle, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Handle{release: func() { s.sem.Release(1) }}, nil
}
