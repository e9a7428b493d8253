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

package auth

import (
	"sync"
	"time"
)

// progressiveDelay maps a per-user failure count to the delay tiers from
// the component design: 1s / 5s / 30s / 300s for 1-3 / 4-6 / 7-10 / 11+.
func progressiveDelay(attempts int) time.Duration {
	switch {
	case attempts <= 0:
		return 0
	case attempts <= 3:
		return 1 * time.Second
	case attempts <= 6:
		return 5 * time.Second
	case attempts <= 10:
		return 30 * time.Second
	default:
		return 300 * time.Second
	}
}

// RateLimitResetter is the narrow interface the manager uses to clear a
// user's auth-rate counter on success, implemented by the rate limiter.
type RateLimitResetter interface {
	ResetAuthCounter(key string)
}

// Manager composes the user store and session tracker with per-user
// progressive authentication delays.
type Manager struct {
	store    *Store
	sessions *SessionTracker
	enabled  bool
	resetter RateLimitResetter

	mu       sync.Mutex
	attempts map[string]int // per-username failure count
}

// NewManager builds a Manager. When enabled is false, Authenticate always
// succeeds as "anonymous"; no session is created in the tracker for it.
func NewManager(store *Store, sessions *SessionTracker, enabled bool, resetter RateLimitResetter) *Manager {
	return &Manager{
		store:    store,
		sessions: sessions,
		enabled:  enabled,
		resetter: resetter,
		attempts: make(map[string]int),
	}
}

// Authenticate validates username/password and returns the principal to
// use downstream.
func (m *Manager) Authenticate(username, password string) (string, bool) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()

	if !enabled {
		return "anonymous", true
	}

	if m.store.Validate(username, password) {
		m.mu.Lock()
		delete(m.attempts, username)
		m.mu.Unlock()
		if m.resetter != nil {
			m.resetter.ResetAuthCounter(username)
		}
		return username, true
	}

	m.mu.Lock()
	m.attempts[username]++
	m.mu.Unlock()
	return "", false
}

// DelayFor returns the progressive delay a caller should sleep before
// replying to a failed attempt for username.
func (m *Manager) DelayFor(username string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return progressiveDelay(m.attempts[username])
}

// Sessions exposes the underlying session tracker.
func (m *Manager) Sessions() *SessionTracker {
	return m.sessions
}

// Store exposes the underlying credential store, for the management API's
// user-administration endpoints.
func (m *Manager) Store() *Store {
	return m.store
}

// Enabled reports whether authentication is globally required.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Reload swaps the enabled flag and user store contents on config reload.
func (m *Manager) Reload(enabled bool, records []UserRecord) {
	m.store.Reload(records)
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
}
