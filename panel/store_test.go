// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package panel

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
	p := s.Create(PositionTop, 3, 1, spans("status"))

	got, err := s.Get(p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Position != PositionTop || got.Height != 3 || got.Z != 1 {
		t.Fatalf("got = %+v, want Position=top Height=3 Z=1", got)
	}
	if got.Visible {
		t.Fatal("newly created panel should not be Visible until layout runs")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, err := s.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestStoreListOrderedByPositionThenZDesc(t *testing.T) {
	t.Parallel()

	s := NewStore()
	bottomLow := s.Create(PositionBottom, 1, 1, spans("b1"))
	topHigh := s.Create(PositionTop, 1, 5, spans("t1"))
	topLow := s.Create(PositionTop, 1, 2, spans("t2"))

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	if list[0].ID != topHigh.ID || list[1].ID != topLow.ID || list[2].ID != bottomLow.ID {
		t.Fatalf("list order = [%v %v %v], want top-desc-z then bottom",
			list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestStorePatchPartialUpdate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	p := s.Create(PositionTop, 2, 0, spans("a"))

	newHeight := 4
	if err := s.Patch(p.ID, Patch{Height: &newHeight}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	got, _ := s.Get(p.ID)
	if got.Height != 4 || got.Z != 0 {
		t.Fatalf("got = %+v, want Height=4 Z=0 (unchanged)", got)
	}
}

func TestStoreSetVisible(t *testing.T) {
	t.Parallel()

	s := NewStore()
	p := s.Create(PositionTop, 2, 0, spans("a"))
	s.SetVisible(p.ID, true)

	got, _ := s.Get(p.ID)
	if !got.Visible {
		t.Fatal("Visible = false, want true after SetVisible")
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	p := s.Create(PositionTop, 2, 0, spans("a"))
	s.Create(PositionBottom, 1, 0, spans("b"))

	if err := s.Delete(p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}
