// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// httpBaseURL and wsURL derive REST and WebSocket URLs from the
// daemon's HTTP address.
func httpBaseURL(daemon string) string {
	return strings.TrimSuffix(daemon, "/")
}

func wsURL(daemon, path string) (string, error) {
	u, err := url.Parse(daemon)
	if err != nil {
		return "", fmt.Errorf("parsing daemon URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

// apiRequest performs a JSON HTTP request against the daemon and
// decodes a successful response into out (if non-nil).
func apiRequest(ctx context.Context, method, daemon, token, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, httpBaseURL(daemon)+path, reqBody)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", daemon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// dialAttach opens the raw byte-stream WebSocket for a session.
func dialAttach(ctx context.Context, daemon, token, name string) (*websocket.Conn, error) {
	target, err := wsURL(daemon, "/sessions/"+url.PathEscape(name)+"/attach")
	if err != nil {
		return nil, err
	}
	if token != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "token=" + url.QueryEscape(token)
	}
	conn, _, err := websocket.Dial(ctx, target, nil)
	return conn, err
}
