// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vt maintains authoritative virtual-terminal state for one
// session: a cell grid, cursor, scrollback ring, and alternate-screen
// flag, fed by raw PTY bytes and queried by structured callers.
//
// [State] is the pure state machine: Feed consumes a byte chunk and
// returns which rows changed and whether the cursor moved. [Task]
// wraps a State in a single-threaded goroutine that owns it exclusively,
// communicating with the rest of the session only through a byte
// channel, a query channel, and an event broadcast — the parser state
// itself is never shared across goroutines, matching the session's
// "parser state is not shared" locking discipline.
//
// Sequence-boundary detection uses [github.com/charmbracelet/x/ansi]'s
// DecodeSequence, which reports how many bytes the next grapheme or
// control sequence consumes; State never has to guess where one
// sequence ends and the next begins, including across chunk boundaries
// that split a multi-byte UTF-8 rune or an escape sequence.
//
// The alternate-screen flag has no single dedicated escape code in the
// ANSI/ECMA-48 family; State tracks it by recognizing the DEC private
// modes 1049/1047/47 (set/reset) as they are decoded, and synthesizes a
// [ResetEvent] with reason AlternateScreenEnter/Exit whenever the flag
// flips. This is the documented detection mechanism for the alternate-
// screen boundary mentioned in the terminal literature as otherwise
// ambiguous.
package vt
