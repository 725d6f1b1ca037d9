// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package panel implements row-band panels that sit outside a
// session's PTY scroll region, a layout engine that allocates row
// budget to them, and a renderer that paints them without PTY output
// ever overwriting their rows.
package panel

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/vt"
)

// ErrNotFound is returned by Get/Update/Patch/Delete for an unknown
// panel ID.
var ErrNotFound = errors.New("panel: not found")

// Position is the row band a panel occupies.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// Panel occupies an exclusive row band outside the PTY's scroll
// region, per spec.md §3. Visible is computed by the layout engine,
// not set directly by callers.
type Panel struct {
	ID       uuid.UUID
	Position Position
	Height   int
	Z        int
	Spans    []vt.Span
	Visible  bool
}

// Patch describes a partial update to a panel's height, z-order, or
// content. Nil fields are left unchanged.
type Patch struct {
	Height *int
	Z      *int
	Spans  []vt.Span
}

// Store is a concurrent map of panels keyed by UUID, the same CRUD
// shape as overlay.Store.
type Store struct {
	mu     sync.RWMutex
	panels map[uuid.UUID]*Panel
}

// NewStore creates an empty panel store.
func NewStore() *Store {
	return &Store{panels: make(map[uuid.UUID]*Panel)}
}

// Create adds a new panel. The returned panel's Visible field is
// false until the next layout computation marks it visible.
func (s *Store) Create(position Position, height, z int, spans []vt.Span) *Panel {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Panel{
		ID:       uuid.New(),
		Position: position,
		Height:   height,
		Z:        z,
		Spans:    spans,
	}
	s.panels[p.ID] = p
	return p
}

// Get returns the panel with the given ID.
func (s *Store) Get(id uuid.UUID) (*Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.panels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns all panels sorted by position (top before bottom) then
// descending z-order, the order compute_layout allocates row budget in.
func (s *Store) List() []*Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Panel, 0, len(s.panels))
	for _, p := range s.panels {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position == PositionTop
		}
		return result[i].Z > result[j].Z
	})
	return result
}

// Update replaces a panel's spans wholesale.
func (s *Store) Update(id uuid.UUID, spans []vt.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok {
		return ErrNotFound
	}
	p.Spans = spans
	return nil
}

// Patch applies a partial update to a panel.
func (s *Store) Patch(id uuid.UUID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Height != nil {
		p.Height = *patch.Height
	}
	if patch.Z != nil {
		p.Z = *patch.Z
	}
	if patch.Spans != nil {
		p.Spans = patch.Spans
	}
	return nil
}

// Delete removes a panel by ID.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.panels[id]; !ok {
		return ErrNotFound
	}
	delete(s.panels, id)
	return nil
}

// Clear removes every panel.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels = make(map[uuid.UUID]*Panel)
}

// SetVisible updates a panel's computed Visible flag. Called only by
// the layout engine's caller after ComputeLayout runs.
func (s *Store) SetVisible(id uuid.UUID, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.panels[id]; ok {
		p.Visible = visible
	}
}

// Len returns the number of panels currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.panels)
}
