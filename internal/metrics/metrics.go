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

// Package metrics tracks gateway-wide counters and per-connection byte
// accounting, and exports both a JSON summary and a Prometheus registry.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	historyCap      = 10000
	historyEvictBulk = 1000
)

// HistoryEntry records one finished connection for the bounded ring.
type HistoryEntry struct {
	SessionID string
	ClientIP  string
	Target    string
	BytesIn   int64
	BytesOut  int64
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   string
}

// Registry is the gateway's metrics sink.
type Registry struct {
	totalConnections int64
	totalBytesIn     int64
	totalBytesOut    int64
	authAttempts     int64
	authSuccesses    int64
	blockedRequests  int64

	activeMu sync.RWMutex
	active   map[string]*ConnectionCounters

	historyMu sync.Mutex
	history   []HistoryEntry

	prom *promCollectors
}

// ConnectionCounters are the live byte counters for one in-flight
// connection.
type ConnectionCounters struct {
	BytesIn  int64
	BytesOut int64
}

// NewRegistry builds an empty Registry, with its Prometheus collectors
// registered against reg (pass prometheus.NewRegistry() for isolation in
// tests, or prometheus.DefaultRegisterer in production).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{active: make(map[string]*ConnectionCounters)}
	r.prom = newPromCollectors(reg, r)
	return r
}

// ConnectionOpened registers a new active connection and returns its
// live byte counters.
func (r *Registry) ConnectionOpened(sessionID string) *ConnectionCounters {
	atomic.AddInt64(&r.totalConnections, 1)
	c := &ConnectionCounters{}
	r.activeMu.Lock()
	r.active[sessionID] = c
	r.activeMu.Unlock()
	return c
}

// ConnectionClosed removes sessionID from the active set and appends a
// history entry, evicting the oldest batch if the ring is full.
func (r *Registry) ConnectionClosed(entry HistoryEntry) {
	r.activeMu.Lock()
	delete(r.active, entry.SessionID)
	r.activeMu.Unlock()

	atomic.AddInt64(&r.totalBytesIn, entry.BytesIn)
	atomic.AddInt64(&r.totalBytesOut, entry.BytesOut)

	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	if len(r.history) >= historyCap {
		r.history = r.history[historyEvictBulk:]
	}
	r.history = append(r.history, entry)
}

// ActiveCount returns the number of currently tracked connections.
func (r *Registry) ActiveCount() int {
	r.activeMu.RLock()
	defer r.activeMu.RUnlock()
	return len(r.active)
}

// RecordAuthAttempt increments the attempt counter, and the success
// counter when success is true.
func (r *Registry) RecordAuthAttempt(success bool) {
	atomic.AddInt64(&r.authAttempts, 1)
	if success {
		atomic.AddInt64(&r.authSuccesses, 1)
	}
}

// RecordBlocked increments the blocked-request counter.
func (r *Registry) RecordBlocked() {
	atomic.AddInt64(&r.blockedRequests, 1)
}

// Summary is the JSON-serializable snapshot returned by the management
// API's stats endpoint.
type Summary struct {
	TotalConnections int64 `json:"total_connections"`
	ActiveConnections int   `json:"active_connections"`
	TotalBytesIn     int64 `json:"total_bytes_in"`
	TotalBytesOut    int64 `json:"total_bytes_out"`
	AuthAttempts     int64 `json:"auth_attempts"`
	AuthSuccesses    int64 `json:"auth_successes"`
	BlockedRequests  int64 `json:"blocked_requests"`
	HistorySize      int   `json:"history_size"`
}

// Snapshot returns the current counters as a Summary.
func (r *Registry) Snapshot() Summary {
	r.historyMu.Lock()
	historySize := len(r.history)
	r.historyMu.Unlock()

	return Summary{
		TotalConnections:  atomic.LoadInt64(&r.totalConnections),
		ActiveConnections: r.ActiveCount(),
		TotalBytesIn:      atomic.LoadInt64(&r.totalBytesIn),
		TotalBytesOut:     atomic.LoadInt64(&r.totalBytesOut),
		AuthAttempts:      atomic.LoadInt64(&r.authAttempts),
		AuthSuccesses:     atomic.LoadInt64(&r.authSuccesses),
		BlockedRequests:   atomic.LoadInt64(&r.blockedRequests),
		HistorySize:       historySize,
	}
}

// History returns a copy of the retained connection history, oldest first.
func (r *Registry) History() []HistoryEntry {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	out := make([]HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}
