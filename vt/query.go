// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vt

import "errors"

// ErrParserUnavailable is returned by every query once the parser
// task has terminated (panic, or the session tearing down). It is
// wsh's "parser_unavailable" wire error in Go form.
var ErrParserUnavailable = errors.New("vt: parser unavailable")

// ScreenResult is the answer to a Screen query.
type ScreenResult struct {
	Lines           []FormattedLine
	Cursor          Cursor
	Cols, Rows      int
	AlternateScreen bool
	FirstLineIndex  uint64
	TotalLines      uint64
	Epoch           uint64
}

// ScrollbackResult is the answer to a Scrollback query.
type ScrollbackResult struct {
	Lines      []FormattedLine
	FirstIndex uint64
	Total      uint64
}

// query is the internal envelope sent over the parser task's query
// channel: one of the four request shapes plus a reply channel the
// task fulfills exactly once.
type query struct {
	screen     *screenQuery
	scrollback *scrollbackQuery
	cursor     *cursorQuery
	resize     *resizeQuery
}

type screenQuery struct {
	styled bool
	reply  chan screenReply
}

type screenReply struct {
	result ScreenResult
	err    error
}

type scrollbackQuery struct {
	offset uint64
	limit  int
	styled bool
	reply  chan scrollbackReply
}

type scrollbackReply struct {
	result ScrollbackResult
	err    error
}

type cursorQuery struct {
	reply chan cursorReply
}

type cursorReply struct {
	cursor Cursor
	err    error
}

type resizeQuery struct {
	cols, rows int
	reply      chan resizeReply
}

type resizeReply struct {
	err error
}
