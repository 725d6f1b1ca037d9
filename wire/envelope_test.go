// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"testing"
)

func TestNewResultMarshalsIntoResponse(t *testing.T) {
	t.Parallel()

	type payload struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}

	resp, err := NewResult("req-1", "resize", payload{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	if resp.ID != "req-1" || resp.Method != "resize" {
		t.Fatalf("resp = %+v, want id=req-1 method=resize", resp)
	}
	if resp.Error != nil {
		t.Fatalf("resp.Error = %+v, want nil", resp.Error)
	}

	var got payload
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != (payload{Cols: 80, Rows: 24}) {
		t.Fatalf("got = %+v, want {80 24}", got)
	}
}

func TestNewErrorSetsErrorObject(t *testing.T) {
	t.Parallel()

	resp := NewError(3, "input", ErrCodeSessionNotFound, "no such session")
	if resp.Result != nil {
		t.Fatalf("resp.Result = %v, want nil", resp.Result)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeSessionNotFound || resp.Error.Message != "no such session" {
		t.Fatalf("resp.Error = %+v, want code=%s message=%q", resp.Error, ErrCodeSessionNotFound, "no such session")
	}
}

func TestNewEventMarshalsData(t *testing.T) {
	t.Parallel()

	type linePayload struct {
		Row int `json:"row"`
	}

	ev, err := NewEvent("line", linePayload{Row: 5})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if ev.Type != "line" {
		t.Fatalf("ev.Type = %q, want %q", ev.Type, "line")
	}

	var got linePayload
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got.Row != 5 {
		t.Fatalf("got.Row = %d, want 5", got.Row)
	}
}

func TestRequestUnmarshalsRawParams(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"id":1,"method":"input","params":{"data":"aGk="}}`)
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if req.Method != "input" {
		t.Fatalf("req.Method = %q, want %q", req.Method, "input")
	}

	var params struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if params.Data != "aGk=" {
		t.Fatalf("params.Data = %q, want %q", params.Data, "aGk=")
	}
}
