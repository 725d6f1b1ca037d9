// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// ParsedKey is the best-effort decoding of a raw input byte sequence
// into a named key, per spec.md §4.5. Input whose bytes do not match
// a known sequence has no ParsedKey and is treated as literal text.
type ParsedKey struct {
	Name string
}

// keySequences covers the common xterm/VT220 sequences a coding agent
// needs to distinguish from literal text input: arrows, Home/End, Page
// Up/Down, function keys, and the single-byte control keys. This is a
// small table, not a terminfo-driven decoder (SPEC_FULL.md §4).
var keySequences = map[string]string{
	"\x1b[A": "Up",
	"\x1b[B": "Down",
	"\x1b[C": "Right",
	"\x1b[D": "Left",
	"\x1bOA": "Up",
	"\x1bOB": "Down",
	"\x1bOC": "Right",
	"\x1bOD": "Left",

	"\x1b[H":  "Home",
	"\x1b[F":  "End",
	"\x1b[1~": "Home",
	"\x1b[4~": "End",
	"\x1b[5~": "PageUp",
	"\x1b[6~": "PageDown",
	"\x1b[2~": "Insert",
	"\x1b[3~": "Delete",

	"\x1bOP": "F1",
	"\x1bOQ": "F2",
	"\x1bOR": "F3",
	"\x1bOS": "F4",
	"\x1b[15~": "F5",
	"\x1b[17~": "F6",
	"\x1b[18~": "F7",
	"\x1b[19~": "F8",
	"\x1b[20~": "F9",
	"\x1b[21~": "F10",
	"\x1b[23~": "F11",
	"\x1b[24~": "F12",

	"\r":   "Enter",
	"\n":   "Enter",
	"\t":   "Tab",
	"\x7f": "Backspace",
	"\x08": "Backspace",
	"\x1b": "Escape",
	"\x03": "CtrlC",
	"\x04": "CtrlD",
}

// decodeKey looks up data in the key sequence table. Returns nil if
// data does not match a known sequence.
func decodeKey(data []byte) *ParsedKey {
	if name, ok := keySequences[string(data)]; ok {
		return &ParsedKey{Name: name}
	}
	return nil
}
