// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import "sync"

// Line is one row of cells retained in scrollback after it scrolls off
// the visible screen.
type Line struct {
	Cells []Cell
}

// Scrollback is a fixed-capacity buffer of retained lines. Once full,
// pushing a new line silently discards the oldest one by shifting the
// retained lines down one slot; there is no circular-overwrite index.
//
// Scrollback is safe for concurrent use, but in practice it is only
// ever touched from the single goroutine that owns the parser task;
// the lock exists so query handlers sharing that goroutine's state via
// a snapshot method never race with a concurrent Feed from a future
// refactor.
type Scrollback struct {
	mu       sync.Mutex
	lines    []Line
	capacity int
	// total is the number of lines ever pushed, including ones that
	// have since been evicted.
	total uint64
}

// NewScrollback creates a ring that retains at most capacity lines.
// Capacity <= 0 means no scrollback is retained at all.
func NewScrollback(capacity int) *Scrollback {
	if capacity < 0 {
		capacity = 0
	}
	return &Scrollback{
		lines:    make([]Line, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a line to the ring, evicting the oldest line if full.
func (s *Scrollback) Push(line Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity == 0 {
		s.total++
		return
	}
	if len(s.lines) < s.capacity {
		s.lines = append(s.lines, line)
	} else {
		copy(s.lines, s.lines[1:])
		s.lines[len(s.lines)-1] = line
	}
	s.total++
}

// Len returns the number of lines currently retained.
func (s *Scrollback) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// FirstIndex returns the absolute index of the oldest retained line.
// Lines with index < FirstIndex have been evicted.
func (s *Scrollback) FirstIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total - uint64(len(s.lines))
}

// Total returns the number of lines ever pushed, including evicted ones.
func (s *Scrollback) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Slice returns up to limit lines starting at absolute index offset.
// If offset predates the retained window, the result starts at the
// oldest retained line rather than failing — the same gap-fill
// semantics as resuming a byte stream after falling behind. An offset
// at or past the end returns an empty, non-nil slice.
func (s *Scrollback) Slice(offset uint64, limit int) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.total - uint64(len(s.lines))
	if offset < first {
		offset = first
	}
	if offset >= s.total || limit <= 0 {
		return []Line{}
	}

	start := int(offset - first)
	end := start + limit
	if end > len(s.lines) {
		end = len(s.lines)
	}

	out := make([]Line, end-start)
	copy(out, s.lines[start:end])
	return out
}
