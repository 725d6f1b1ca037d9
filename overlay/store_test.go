// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/vt"
)

func spans(text string) []vt.Span {
	return []vt.Span{{Text: text}}
}

func TestStoreCreateGet(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ov := s.Create(1, 2, nil, spans("hi"), "owner-a")

	got, err := s.Get(ov.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.X != 1 || got.Y != 2 || got.Owner != "owner-a" {
		t.Fatalf("got = %+v, want X=1 Y=2 Owner=owner-a", got)
	}
}

func TestStoreCreateAutoZOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	first := s.Create(0, 0, nil, spans("a"), "")
	second := s.Create(0, 0, nil, spans("b"), "")

	if second.Z <= first.Z {
		t.Fatalf("second.Z = %d, want > first.Z = %d", second.Z, first.Z)
	}
}

func TestStoreCreateExplicitZ(t *testing.T) {
	t.Parallel()

	s := NewStore()
	z := 42
	ov := s.Create(0, 0, &z, spans("a"), "")
	if ov.Z != 42 {
		t.Fatalf("ov.Z = %d, want 42", ov.Z)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, err := s.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestStoreListOrderedByZ(t *testing.T) {
	t.Parallel()

	s := NewStore()
	zHigh, zLow := 10, 1
	a := s.Create(0, 0, &zHigh, spans("a"), "")
	b := s.Create(0, 0, &zLow, spans("b"), "")

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("list = [%v %v], want lower z first", list[0].ID, list[1].ID)
	}
}

func TestStoreUpdateReplacesSpans(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ov := s.Create(0, 0, nil, spans("old"), "")
	if err := s.Update(ov.ID, spans("new")); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ov.ID)
	if len(got.Spans) != 1 || got.Spans[0].Text != "new" {
		t.Fatalf("got.Spans = %+v, want [{new}]", got.Spans)
	}
}

func TestStorePatchPartialUpdate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ov := s.Create(1, 1, nil, spans("a"), "")

	newX := 5
	if err := s.Patch(ov.ID, Patch{X: &newX}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	got, _ := s.Get(ov.ID)
	if got.X != 5 || got.Y != 1 {
		t.Fatalf("got = %+v, want X=5 Y=1 (unchanged)", got)
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ov := s.Create(0, 0, nil, spans("a"), "")
	if err := s.Delete(ov.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ov.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ov.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete again: err = %v, want ErrNotFound", err)
	}
}

func TestStoreDeleteByOwner(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a := s.Create(0, 0, nil, spans("a"), "owner-a")
	s.Create(0, 0, nil, spans("b"), "owner-b")

	removed := s.DeleteByOwner("owner-a")
	if len(removed) != 1 || removed[0] != a.ID {
		t.Fatalf("removed = %v, want [%v]", removed, a.ID)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreDeleteByOwnerEmptyOwnerNoop(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create(0, 0, nil, spans("a"), "")
	if removed := s.DeleteByOwner(""); removed != nil {
		t.Fatalf("removed = %v, want nil", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Create(0, 0, nil, spans("a"), "")
	s.Create(0, 0, nil, spans("b"), "")
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}
