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

	"github.com/google/uuid"
)

// Session is the abstract handle associating an authenticated principal
// with its open connections.
type Session struct {
	ID           string
	Principal    string
	ClientIP     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// SessionTracker maintains id->Session plus an inverse principal->sessions
// index, guarded by a single read-write lock (reads dominate, per the
// concurrency model).
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewSessionTracker builds an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Create mints a fresh session id (UUID v4) for principal/clientIP.
func (t *SessionTracker) Create(principal, clientIP string) *Session {
	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Principal:    principal,
		ClientIP:     clientIP,
		CreatedAt:    now,
		LastActivity: now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.ID] = s
	if t.byUser[principal] == nil {
		t.byUser[principal] = make(map[string]struct{})
	}
	t.byUser[principal][s.ID] = struct{}{}
	return s
}

// UpdateActivity refreshes last-activity for id, if it exists.
func (t *SessionTracker) UpdateActivity(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		s.LastActivity = time.Now()
	}
}

// Remove evicts id from both maps.
func (t *SessionTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return
	}
	delete(t.sessions, id)
	if set, ok := t.byUser[s.Principal]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(t.byUser, s.Principal)
		}
	}
}

// Get returns the session for id, if any.
func (t *SessionTracker) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Count returns the active session count (the cardinality invariant).
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Cleanup evicts sessions idle for longer than timeout. Calling it twice in
// immediate succession is idempotent: the second call finds nothing left
// to evict.
func (t *SessionTracker) Cleanup(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted int
	for id, s := range t.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(t.sessions, id)
			if set, ok := t.byUser[s.Principal]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(t.byUser, s.Principal)
				}
			}
			evicted++
		}
	}
	return evicted
}
