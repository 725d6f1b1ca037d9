// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func catSessionOptions(name string) NewSessionOptions {
	return NewSessionOptions{Name: name, Command: []string{"/bin/cat"}, Cols: 80, Rows: 24}
}

func TestRegistryCreateAndGet(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	sess, err := r.Create(context.Background(), catSessionOptions("alpha"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Remove("alpha")

	got, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Fatal("Get returned a different *Session than Create")
	}
}

func TestRegistryCreateNameConflict(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if _, err := r.Create(context.Background(), catSessionOptions("dup")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	defer r.Remove("dup")

	if _, err := r.Create(context.Background(), catSessionOptions("dup")); !errors.Is(err, ErrNameConflict) {
		t.Fatalf("second Create: err = %v, want ErrNameConflict", err)
	}
}

func TestRegistryCreateAllocatesNameWhenEmpty(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	sess, err := r.Create(context.Background(), NewSessionOptions{Command: []string{"/bin/cat"}, Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer r.Remove(sess.Name)

	if sess.Name == "" {
		t.Fatal("Session.Name is empty, want an allocated name")
	}
	if _, err := r.Get(sess.Name); err != nil {
		t.Fatalf("Get(%q): %v", sess.Name, err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if _, err := r.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get: err = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if _, err := r.Create(context.Background(), catSessionOptions("gone")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Get("gone"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get after Remove: err = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryRemoveNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	if err := r.Remove("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Remove: err = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistryListAndLen(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	r.Create(context.Background(), catSessionOptions("one"))
	r.Create(context.Background(), catSessionOptions("two"))
	defer r.Remove("one")
	defer r.Remove("two")

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if len(r.List()) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(r.List()))
	}
}

func TestRegistryShutdownClearsSessions(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	r.Create(context.Background(), catSessionOptions("shutdown-a"))
	r.Create(context.Background(), catSessionOptions("shutdown-b"))

	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}

	if r.Len() != 0 {
		t.Fatalf("Len() after Shutdown = %d, want 0", r.Len())
	}
}

func TestRegistryReapOnExitRemovesSession(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	sess, err := r.Create(context.Background(), NewSessionOptions{
		Name:    "reaps",
		Command: []string{"/bin/sh", "-c", "exit 0"},
		Cols:    80,
		Rows:    24,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit in time")
	}

	// reapOnExit runs asynchronously after Done() fires; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get("reaps"); errors.Is(err, ErrSessionNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("registry did not reap the exited session in time")
}
