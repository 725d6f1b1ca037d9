// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements wsh's two wire surfaces: the binary framed
// raw byte stream (spec.md §6.1) and the JSON request/response/event
// envelope for the structured channel (spec.md §6.2).
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType distinguishes the payload carried by a Frame on the raw
// byte stream.
type FrameType byte

const (
	// FrameData carries raw PTY bytes. Bidirectional: output flows
	// server→client, input flows client→server.
	FrameData FrameType = 0x01

	// FrameResize carries terminal dimensions, client→server only.
	// Payload is 4 bytes: cols (uint16 big-endian) then rows (uint16
	// big-endian).
	FrameResize FrameType = 0x02

	// FrameLagged signals that the server dropped messages before this
	// frame, server→client only. Payload is a uint32 big-endian count
	// of dropped messages.
	FrameLagged FrameType = 0x03
)

// frameHeaderLength is the fixed size of a frame header: 1 byte type +
// 4 bytes payload length.
const frameHeaderLength = 5

// maxFramePayload bounds a single frame's payload. 16 MiB comfortably
// exceeds any single PTY read chunk.
const maxFramePayload = 16 * 1024 * 1024

// Frame is a single message on the raw byte stream.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// WriteFrame writes a framed message to w: [1 byte type][4 byte
// big-endian payload length][payload].
func WriteFrame(w io.Writer, f Frame) error {
	var header [frameHeaderLength]byte
	header[0] = byte(f.Type)
	binary.BigEndian.PutUint32(header[1:5], uint32(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("wire: write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a framed message from r. The header is consumed
// before the payload is read, so a read that fails between the two
// leaves r positioned inside the frame; a later ReadFrame on the same
// reader does not resynchronise to the next frame boundary.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("wire: read frame header: %w", err)
	}
	frameType := FrameType(header[0])
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxFramePayload {
		return Frame{}, fmt.Errorf("wire: frame payload length %d exceeds maximum %d", payloadLength, maxFramePayload)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("wire: read frame payload: %w", err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}

// NewDataFrame wraps raw PTY bytes in a data frame.
func NewDataFrame(data []byte) Frame {
	return Frame{Type: FrameData, Payload: data}
}

// NewResizeFrame encodes a terminal resize request.
func NewResizeFrame(cols, rows uint16) Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], cols)
	binary.BigEndian.PutUint16(payload[2:4], rows)
	return Frame{Type: FrameResize, Payload: payload}
}

// ParseResizePayload extracts cols and rows from a resize frame's
// payload.
func ParseResizePayload(payload []byte) (cols, rows uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("wire: resize payload must be 4 bytes, got %d", len(payload))
	}
	cols = binary.BigEndian.Uint16(payload[0:2])
	rows = binary.BigEndian.Uint16(payload[2:4])
	return cols, rows, nil
}

// NewLaggedFrame encodes a lag notification carrying the number of
// dropped messages.
func NewLaggedFrame(count int) Frame {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(count))
	return Frame{Type: FrameLagged, Payload: payload}
}
