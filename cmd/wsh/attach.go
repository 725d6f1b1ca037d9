// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"golang.org/x/term"

	"github.com/wsh-dev/wsh/wire"
)

// runAttach connects to a session's raw byte stream and relays it
// against the local terminal: PTY output to stdout, stdin to PTY
// input, SIGWINCH to resize frames. Grounded on
// avkcode-xrunner's ssh.go client relay (makeStdinRaw/termSize/
// SIGWINCH-driven resize loop) and cmd/bureau/observe/observe.go's
// term.MakeRaw/Restore-around-Run structure.
func runAttach(args []string) error {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	daemon := fs.String("daemon", daemonURL(), "daemon base URL")
	token := fs.String("token", daemonToken(), "bearer token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: wsh attach <name>")
	}
	name := fs.Arg(0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := dialAttach(ctx, *daemon, *token, name)
	if err != nil {
		return fmt.Errorf("attach to %s: %w", name, err)
	}
	defer conn.CloseNow()

	restore, err := makeStdinRaw()
	if err != nil {
		return fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer restore()

	if cols, rows := termSize(); cols > 0 && rows > 0 {
		_ = writeFrame(ctx, conn, wire.NewResizeFrame(uint16(cols), uint16(rows)))
	}

	sigwinch := make(chan os.Signal, 4)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	defer signal.Stop(sigwinch)
	go func() {
		for range sigwinch {
			cols, rows := termSize()
			if cols <= 0 || rows <= 0 {
				continue
			}
			_ = writeFrame(ctx, conn, wire.NewResizeFrame(uint16(cols), uint16(rows)))
		}
	}()

	errc := make(chan error, 2)

	go func() {
		errc <- relayOutput(ctx, conn, os.Stdout)
	}()
	go func() {
		errc <- relayInput(ctx, conn, os.Stdin)
	}()

	err = <-errc
	cancel()
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func relayOutput(ctx context.Context, conn *websocket.Conn, out io.Writer) error {
	reader := bufio.NewReader(newWSReader(ctx, conn))
	for {
		frame, err := wire.ReadFrame(reader)
		if err != nil {
			return err
		}
		if frame.Type != wire.FrameData {
			continue
		}
		if _, err := out.Write(frame.Payload); err != nil {
			return err
		}
	}
}

func relayInput(ctx context.Context, conn *websocket.Conn, in io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if werr := writeFrame(ctx, conn, wire.NewDataFrame(buf[:n])); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f wire.Frame) error {
	var buf frameBuffer
	if err := wire.WriteFrame(&buf, f); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageBinary, buf.data)
}

type frameBuffer struct {
	data []byte
}

func (b *frameBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// wsReader adapts a *websocket.Conn's message-oriented Read into the
// io.Reader shape wire.ReadFrame's *bufio.Reader expects.
type wsReader struct {
	ctx  context.Context
	conn *websocket.Conn
	buf  []byte
}

func newWSReader(ctx context.Context, conn *websocket.Conn) *wsReader {
	return &wsReader{ctx: ctx, conn: conn}
}

func (r *wsReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		_, data, err := r.conn.Read(r.ctx)
		if err != nil {
			return 0, err
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func makeStdinRaw() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}

func termSize() (cols, rows int) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80, 24
	}
	c, r, err := term.GetSize(fd)
	if err != nil || c <= 0 || r <= 0 {
		return 80, 24
	}
	return c, r
}
