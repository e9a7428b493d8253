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

// Package auth implements the userpass credential store, the session
// tracker and the authentication manager that composes them with a
// per-username progressive delay. The manager keeps no per-IP failure
// state.
package auth

import "sync"

// UserRecord is one configured userpass credential.
type UserRecord struct {
	Username string
	Password string // reserved as a digest field in a production build; see Store doc
	Enabled  bool
}

// Store maps username -> UserRecord, replaced wholesale on config reload.
//
// The reference implementation compares passwords in plaintext; a
// production build should replace Password with a memory-hard digest and
// compare digests here instead. The store never logs password values.
type Store struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

// NewStore builds a Store from the given records.
func NewStore(records []UserRecord) *Store {
	s := &Store{users: make(map[string]UserRecord, len(records))}
	for _, r := range records {
		s.users[r.Username] = r
	}
	return s
}

// Validate returns true iff the record exists, is enabled, and password
// matches.
func (s *Store) Validate(username, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok || !u.Enabled {
		return false
	}
	return u.Password == password
}

// Reload atomically replaces the user map.
func (s *Store) Reload(records []UserRecord) {
	m := make(map[string]UserRecord, len(records))
	for _, r := range records {
		m[r.Username] = r
	}
	s.mu.Lock()
	s.users = m
	s.mu.Unlock()
}

// Get returns the record for username, if any.
func (s *Store) Get(username string) (UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

// Put inserts or replaces a single user record (used by the management API).
func (s *Store) Put(r UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[r.Username] = r
}

// Delete removes a user record (used by the management API).
func (s *Store) Delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}
