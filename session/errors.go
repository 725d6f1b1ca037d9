// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

// Sentinel errors checked with errors.Is, matching the wire error
// taxonomy in spec.md §6.4/§7.
var (
	// ErrChildExited is returned by operations that reach a PTY whose
	// child process has already exited.
	ErrChildExited = errors.New("session: child process exited")

	// ErrFocusTaken is returned by Capture when another subscriber
	// already holds input focus.
	ErrFocusTaken = errors.New("session: input focus already held")

	// ErrSessionNotFound is returned by registry lookups for a name
	// with no live session.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrNameConflict is returned by registry creation when the
	// requested name is already in use.
	ErrNameConflict = errors.New("session: name already in use")

	// ErrParserAlreadySubscribed is returned by Broker.SubscribeParser
	// when called more than once.
	ErrParserAlreadySubscribed = errors.New("session: parser already subscribed")

	// ErrQuiesceSuperseded is returned to a quiescence waiter whose
	// wait was displaced by a newer one on the same session.
	ErrQuiesceSuperseded = errors.New("session: quiesce wait superseded")
)
