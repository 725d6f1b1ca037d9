// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wsh-dev/wsh/wire"
)

// defaultMaxWait bounds how long a quiescence poll blocks; a poll that
// reaches it fails with a timeout instead of returning a generation.
const defaultMaxWait = 30 * time.Second

// writeJSON encodes v as the JSON response body, grounded on
// control-plane/internal/handlers/helpers.go's writeJSON.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// wireErrorBody is the REST rendering of a wire error code.
type wireErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeWireError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, wireErrorBody{Code: code, Message: message})
}

// httpStatusForCode maps a wire error code to an HTTP status for the
// REST surface. The structured JSON and raw byte-stream channels carry
// the code itself and don't need this mapping.
func httpStatusForCode(code string) int {
	switch code {
	case wire.ErrCodeAuthRequired:
		return http.StatusUnauthorized
	case wire.ErrCodeAuthInvalid:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func parseUintQuery(r *http.Request, key string, fallback uint64) uint64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseDurationQuery(r *http.Request, key string, fallback time.Duration) time.Duration {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
