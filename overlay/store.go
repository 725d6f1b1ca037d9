// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlay implements ephemeral graphics positioned over a
// session's live PTY screen: a CRUD store of overlays and a renderer
// that paints them onto the terminal without corrupting PTY output or
// scrollback.
package overlay

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/vt"
)

// ErrNotFound is returned by Get/Update/Patch/Delete for an unknown
// overlay ID.
var ErrNotFound = errors.New("overlay: not found")

// Overlay is positioned on the PTY's visible screen grid and does not
// affect scrollback or VT state, per spec.md §3.
type Overlay struct {
	ID    uuid.UUID
	X     int
	Y     int
	Z     int
	Spans []vt.Span

	// Owner is the originating subscriber's tag, used to garbage
	// collect overlays on disconnect. Empty for overlays with no
	// owning subscriber.
	Owner string
}

// Patch describes a partial update to an overlay's position, z-order,
// or content. Nil fields are left unchanged.
type Patch struct {
	X     *int
	Y     *int
	Z     *int
	Spans []vt.Span
}

// Store is a concurrent map of overlays keyed by UUID, grounded on
// lib/artifact/tagstore.go's map-under-RWMutex CRUD shape (here kept
// purely in memory: overlays have no on-disk representation).
type Store struct {
	mu       sync.RWMutex
	overlays map[uuid.UUID]*Overlay
	nextZ    int
}

// NewStore creates an empty overlay store.
func NewStore() *Store {
	return &Store{overlays: make(map[uuid.UUID]*Overlay)}
}

// Create adds a new overlay at (x, y) with the given spans and owner.
// If z is nil, the overlay is placed above all previously created
// overlays that also omitted z.
func (s *Store) Create(x, y int, z *int, spans []vt.Span, owner string) *Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()

	zz := 0
	if z != nil {
		zz = *z
	} else {
		s.nextZ++
		zz = s.nextZ
	}

	ov := &Overlay{
		ID:    uuid.New(),
		X:     x,
		Y:     y,
		Z:     zz,
		Spans: spans,
		Owner: owner,
	}
	s.overlays[ov.ID] = ov
	return ov
}

// Get returns the overlay with the given ID.
func (s *Store) Get(id uuid.UUID) (*Overlay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ov, ok := s.overlays[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ov, nil
}

// List returns all overlays sorted by ascending z-order, the paint
// order the renderer uses (later entries drawn on top).
func (s *Store) List() []*Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Overlay, 0, len(s.overlays))
	for _, ov := range s.overlays {
		result = append(result, ov)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Z < result[j].Z })
	return result
}

// Update replaces an overlay's spans wholesale.
func (s *Store) Update(id uuid.UUID, spans []vt.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.overlays[id]
	if !ok {
		return ErrNotFound
	}
	ov.Spans = spans
	return nil
}

// Patch applies a partial update to an overlay.
func (s *Store) Patch(id uuid.UUID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov, ok := s.overlays[id]
	if !ok {
		return ErrNotFound
	}
	if patch.X != nil {
		ov.X = *patch.X
	}
	if patch.Y != nil {
		ov.Y = *patch.Y
	}
	if patch.Z != nil {
		ov.Z = *patch.Z
	}
	if patch.Spans != nil {
		ov.Spans = patch.Spans
	}
	return nil
}

// Delete removes an overlay by ID.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overlays[id]; !ok {
		return ErrNotFound
	}
	delete(s.overlays, id)
	return nil
}

// Clear removes every overlay.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays = make(map[uuid.UUID]*Overlay)
}

// DeleteByOwner removes every overlay tagged with owner and returns
// their IDs, for disconnect-triggered garbage collection.
func (s *Store) DeleteByOwner(owner string) []uuid.UUID {
	if owner == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uuid.UUID
	for id, ov := range s.overlays {
		if ov.Owner == owner {
			removed = append(removed, id)
			delete(s.overlays, id)
		}
	}
	return removed
}

// Len returns the number of overlays currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overlays)
}
