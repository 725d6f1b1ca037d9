// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Error codes for the wire error taxonomy, per spec.md §6.4.
const (
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeUnknownMethod     = "unknown_method"
	ErrCodeParserUnavailable = "parser_unavailable"
	ErrCodeOverlayNotFound   = "overlay_not_found"
	ErrCodePanelNotFound     = "panel_not_found"
	ErrCodeInputSendFailed   = "input_send_failed"
	ErrCodeFocusTaken        = "focus_taken"
	ErrCodeQuiesceSuperseded = "quiesce_superseded"
	ErrCodeSessionNotFound   = "session_not_found"
	ErrCodeNameConflict      = "name_conflict"
	ErrCodeAuthRequired      = "auth_required"
	ErrCodeAuthInvalid       = "auth_invalid"
	ErrCodeInternalError     = "internal_error"
)
