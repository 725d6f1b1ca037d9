// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wsh-dev/wsh/wire"
)

func TestWriteJSONSetsContentTypeAndBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"a": "b"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got["a"] != "b" {
		t.Fatalf("got = %+v, want {a: b}", got)
	}
}

func TestWriteWireErrorBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeWireError(rec, http.StatusNotFound, wire.ErrCodeSessionNotFound, "no such session")

	var got wireErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.Code != wire.ErrCodeSessionNotFound || got.Message != "no such session" {
		t.Fatalf("got = %+v, want code=%s message=%q", got, wire.ErrCodeSessionNotFound, "no such session")
	}
}

func TestHTTPStatusForCode(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		wire.ErrCodeAuthRequired: http.StatusUnauthorized,
		wire.ErrCodeAuthInvalid:  http.StatusForbidden,
		"something_else":        http.StatusUnauthorized,
	}
	for code, want := range cases {
		if got := httpStatusForCode(code); got != want {
			t.Errorf("httpStatusForCode(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestParseUintQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?limit=42&bad=notanumber", nil)
	if got := parseUintQuery(req, "limit", 7); got != 42 {
		t.Fatalf("parseUintQuery(limit) = %d, want 42", got)
	}
	if got := parseUintQuery(req, "bad", 7); got != 7 {
		t.Fatalf("parseUintQuery(bad) = %d, want fallback 7", got)
	}
	if got := parseUintQuery(req, "missing", 7); got != 7 {
		t.Fatalf("parseUintQuery(missing) = %d, want fallback 7", got)
	}
}

func TestParseDurationQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?timeout_ms=1500&bad=x", nil)
	if got := parseDurationQuery(req, "timeout_ms", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("parseDurationQuery(timeout_ms) = %v, want 1500ms", got)
	}
	if got := parseDurationQuery(req, "bad", time.Second); got != time.Second {
		t.Fatalf("parseDurationQuery(bad) = %v, want fallback 1s", got)
	}
	if got := parseDurationQuery(req, "missing", time.Second); got != time.Second {
		t.Fatalf("parseDurationQuery(missing) = %v, want fallback 1s", got)
	}
}
