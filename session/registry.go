// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry owns every live Session, keyed by name. Creating a session
// reserves its name, spawns the PTY, and publishes the session under
// a single write-lock critical section, per spec.md §4.8: "creating a
// session must reserve the name, spawn the PTY, and publish it under
// a single critical section — otherwise a monitor task can remove it
// between insert and the follow-up get, producing use-after-free at
// the API layer."
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger, sessions: make(map[string]*Session)}
}

// Create reserves opts.Name (rejecting a collision with ErrNameConflict),
// spawns the session, publishes it into the registry, and starts a
// goroutine that removes it automatically once the child exits —
// all while holding the write lock, so no caller can observe the name
// reserved without a live session behind it.
func (r *Registry) Create(ctx context.Context, opts NewSessionOptions) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.Name != "" {
		if _, exists := r.sessions[opts.Name]; exists {
			return nil, fmt.Errorf("registry: create %q: %w", opts.Name, ErrNameConflict)
		}
	} else {
		opts.Name = r.allocateNameLocked()
	}

	sess, err := NewSession(ctx, r.logger, opts)
	if err != nil {
		return nil, err
	}
	r.sessions[opts.Name] = sess

	go r.reapOnExit(opts.Name, sess)

	return sess, nil
}

// reapOnExit removes sess from the registry once its child exits,
// closing the PTY master fd so no fd is ever leaked waiting for an
// operator to notice.
func (r *Registry) reapOnExit(name string, sess *Session) {
	<-sess.Done()
	if err := sess.Close(); err != nil {
		r.logger.Warn("session close after exit", "name", name, "error", err)
	}
	r.mu.Lock()
	if current, ok := r.sessions[name]; ok && current == sess {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
}

// allocateNameLocked picks the first unused "sessionN" name. Callers
// must hold r.mu for writing.
func (r *Registry) allocateNameLocked() string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("session%d", i)
		if _, exists := r.sessions[candidate]; !exists {
			return candidate
		}
	}
}

// Get returns the named session.
func (r *Registry) Get(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("registry: get %q: %w", name, ErrSessionNotFound)
	}
	return sess, nil
}

// List returns every live session, in no particular order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Remove force-kills the named session and removes it from the
// registry immediately, rather than waiting for reapOnExit to observe
// the natural exit.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	sess, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: remove %q: %w", name, ErrSessionNotFound)
	}
	sess.ForceKill()
	// Close reports the killed child's exit status; after ForceKill
	// that status is expected, so the removal itself succeeded.
	_ = sess.Close()
	return nil
}

// Shutdown drains every session: it detaches streaming clients and
// closes each Session (releasing its PTY master fd, which SIGHUPs any
// surviving child), per spec.md §4.8 ("On process-level shutdown, the
// registry drains all sessions, detaching streaming clients and
// dropping each Session").
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Detach()
			if err := sess.Close(); err != nil {
				r.logger.Warn("session close during shutdown", "session", sess.ID, "error", err)
			}
		}(sess)
	}
	wg.Wait()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
