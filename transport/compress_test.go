// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAcceptsZstd(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	if acceptsZstd(req) {
		t.Fatal("acceptsZstd() = true with no header, want false")
	}

	req.Header.Set("Accept-Encoding", "gzip, zstd")
	if !acceptsZstd(req) {
		t.Fatal("acceptsZstd() = false, want true for \"gzip, zstd\"")
	}

	req.Header.Set("Accept-Encoding", "br")
	if acceptsZstd(req) {
		t.Fatal("acceptsZstd() = true for \"br\", want false")
	}
}

func TestWriteJSONMaybeCompressedSmallBodyUncompressed(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	rec := httptest.NewRecorder()

	writeJSONMaybeCompressed(rec, req, 200, map[string]string{"a": "b"})

	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatal("small body should not be compressed")
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["a"] != "b" {
		t.Fatalf("got = %+v", got)
	}
}

func TestWriteJSONMaybeCompressedLargeBodyCompressedWhenAccepted(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "zstd")
	rec := httptest.NewRecorder()

	payload := map[string]string{"text": strings.Repeat("scrollback line\n", 1000)}
	writeJSONMaybeCompressed(rec, req, 200, payload)

	if rec.Header().Get("Content-Encoding") != "zstd" {
		t.Fatalf("Content-Encoding = %q, want zstd", rec.Header().Get("Content-Encoding"))
	}

	decoded, err := scrollbackDecoder.DecodeAll(rec.Body.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(decoded, &got); err != nil {
		t.Fatalf("unmarshal decoded body: %v", err)
	}
	if got["text"] != payload["text"] {
		t.Fatal("decoded payload does not match original")
	}
}

func TestWriteJSONMaybeCompressedLargeBodyUncompressedWithoutAcceptHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	payload := map[string]string{"text": strings.Repeat("scrollback line\n", 1000)}
	writeJSONMaybeCompressed(rec, req, 200, payload)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatal("Content-Encoding should be unset when client doesn't advertise zstd support")
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["text"] != payload["text"] {
		t.Fatal("decoded payload does not match original")
	}
}
