// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the minimum encoded body size before a response
// is worth zstd-compressing. Below this, the framing overhead of a
// zstd frame outweighs any savings.
const compressThreshold = 4096

// scrollbackEncoder and scrollbackDecoder are reused across requests
// to avoid repeated initialization overhead. zstd.Encoder and
// zstd.Decoder are safe for concurrent use.
var (
	scrollbackEncoder *zstd.Encoder
	scrollbackDecoder *zstd.Decoder
)

func init() {
	var err error
	scrollbackEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("transport: zstd encoder initialization failed: " + err.Error())
	}

	scrollbackDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transport: zstd decoder initialization failed: " + err.Error())
	}
}

// acceptsZstd reports whether the request's Accept-Encoding header
// lists zstd. Scrollback pages can run to several hundred KB of
// styled spans, and a wsh client attached over a slow link opts into
// the compressed encoding rather than paying that transfer cost.
func acceptsZstd(r *http.Request) bool {
	for _, enc := range r.Header.Values("Accept-Encoding") {
		if httpTokenListContains(enc, "zstd") {
			return true
		}
	}
	return false
}

func httpTokenListContains(list, token string) bool {
	start := 0
	for i := 0; i <= len(list); i++ {
		if i == len(list) || list[i] == ',' {
			field := list[start:i]
			start = i + 1
			for len(field) > 0 && (field[0] == ' ' || field[0] == '\t') {
				field = field[1:]
			}
			for len(field) > 0 && (field[len(field)-1] == ' ' || field[len(field)-1] == '\t') {
				field = field[:len(field)-1]
			}
			if field == token {
				return true
			}
		}
	}
	return false
}

// writeJSONMaybeCompressed encodes v as JSON, zstd-compressing the
// body when the client advertises support and the encoded size clears
// compressThreshold. Small responses are sent uncompressed to skip
// encoder overhead on the common case.
func writeJSONMaybeCompressed(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeWireError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(body) >= compressThreshold && acceptsZstd(r) {
		w.Header().Set("Content-Encoding", "zstd")
		w.WriteHeader(status)
		w.Write(scrollbackEncoder.EncodeAll(body, nil))
		return
	}

	w.WriteHeader(status)
	w.Write(body)
}
