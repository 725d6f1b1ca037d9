// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/wsh-dev/wsh/lib/service"
)

// Authenticator verifies the bearer token on incoming requests, per
// spec.md §6.3: "Authentication via bearer token (header preferred,
// query parameter accepted) when bound to non-loopback."
type Authenticator struct {
	token  string
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator that requires token. An
// empty token disables authentication (used when bound to loopback
// only).
func NewAuthenticator(token string, logger *slog.Logger) *Authenticator {
	return &Authenticator{token: token, logger: logger}
}

// Enabled reports whether a token is configured.
func (a *Authenticator) Enabled() bool {
	return a.token != ""
}

// Verify checks the request's bearer token (Authorization header
// preferred, "token" query parameter accepted) and returns an empty
// string on success or a wire error code on failure.
func (a *Authenticator) Verify(r *http.Request) string {
	if !a.Enabled() {
		return ""
	}

	candidate := bearerFromHeader(r.Header.Get("Authorization"))
	if candidate == "" {
		candidate = r.URL.Query().Get("token")
	}
	if candidate == "" {
		return "auth_required"
	}

	if err := service.VerifyBearerToken(a.token, candidate); err != nil {
		a.logger.Warn("auth failed", "fingerprint", fingerprint(candidate), "remote", r.RemoteAddr)
		return "auth_invalid"
	}
	return ""
}

func bearerFromHeader(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// authFingerprintDomainKey is a fixed 32-byte BLAKE3 keyed-hash domain
// separation key, ASCII-encoded and zero-padded, following the same
// convention as the artifact store's chunk/container/file domain keys.
var authFingerprintDomainKey = [32]byte{
	'w', 's', 'h', '.', 'a', 'u', 't', 'h', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p',
	'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// fingerprint returns a short, non-reversible identifier for a failed
// token so failures are distinguishable in logs without ever logging
// the raw token.
func fingerprint(token string) string {
	hasher, err := blake3.NewKeyed(authFingerprintDomainKey[:])
	if err != nil {
		return "unknown"
	}
	hasher.Write([]byte(token))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
