// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ReadBufferSize is the chunk size the PTY reader task passes to publish
// on each read, matching the reader/writer buffer size observe/relay.go
// uses for its PTY master reads.
const ReadBufferSize = 4096

// WriteQueueCapacity bounds the writer task's input queue. A slow or
// stalled child cannot make the write queue grow without bound.
const WriteQueueCapacity = 256

// SpawnOptions describes a child process to attach to a new PTY.
type SpawnOptions struct {
	Command []string
	Env     []string
	Cwd     string
	Cols    int
	Rows    int
}

// PTY owns the master side of a pseudo-terminal bound to a spawned
// child process. Its read half is consumed exclusively by a reader
// task and its write half exclusively by a writer task; resize is the
// only operation safe to call concurrently from outside those tasks.
type PTY struct {
	cmd  *exec.Cmd
	file *os.File

	sizeMu sync.Mutex
	cols   int
	rows   int

	writeQueue chan []byte

	exited    chan struct{}
	exitOnce  sync.Once
	exitErr   error
}

// Spawn starts opts.Command attached to a new PTY sized opts.Cols x
// opts.Rows. An empty Command defaults to the user's shell.
func Spawn(opts SpawnOptions) (*PTY, error) {
	command := opts.Command
	if len(command) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		command = []string{shell}
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(command[0], command[1:]...)
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}

	file, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("spawn child: %w", err)
	}

	return &PTY{
		cmd:        cmd,
		file:       file,
		cols:       cols,
		rows:       rows,
		writeQueue: make(chan []byte, WriteQueueCapacity),
		exited:     make(chan struct{}),
	}, nil
}

// Size returns the PTY's current dimensions.
func (p *PTY) Size() (cols, rows int) {
	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	return p.cols, p.rows
}

// Resize applies a new window size to the PTY master. Synchronous: it
// acquires a short mutex, issues the ioctl, updates the stored size,
// and returns. Safe under concurrent callers.
func (p *PTY) Resize(cols, rows int) error {
	p.sizeMu.Lock()
	defer p.sizeMu.Unlock()
	if err := pty.Setsize(p.file, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	p.cols, p.rows = cols, rows
	return nil
}

// ReadLoop is the reader task: it loops read(master) -> publish(bytes)
// until EOF or a fatal error, with a small backoff on transient
// errors. publish is called synchronously and must not block for long.
func (p *PTY) ReadLoop(ctx context.Context, logger *slog.Logger, publish func([]byte)) {
	buf := make([]byte, ReadBufferSize)
	backoff := time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := p.file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			publish(chunk)
			backoff = time.Millisecond
		}
		if err != nil {
			if isTransientReadError(err) {
				logger.Warn("pty read transient error, retrying", "error", err)
				time.Sleep(backoff)
				if backoff < 200*time.Millisecond {
					backoff *= 2
				}
				continue
			}
			// EIO is the normal signal that the slave side closed
			// because the child exited; any other error also ends
			// the session's I/O, matching observe/relay.go's reader.
			return
		}
	}
}

func isTransientReadError(err error) bool {
	return err == syscall.EINTR || err == syscall.EAGAIN
}

// WriteLoop is the writer task: it drains the write queue and writes
// each buffer to the master in full, retrying on partial writes, until
// the queue is closed or a write fails (which means the slave closed).
func (p *PTY) WriteLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-p.writeQueue:
			if !ok {
				return
			}
			if err := p.writeAll(buf); err != nil {
				return
			}
		}
	}
}

func (p *PTY) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := p.file.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Enqueue queues data for the writer task. Best-effort: if the queue
// is full, Enqueue blocks until there is room or ctx is done.
func (p *PTY) Enqueue(ctx context.Context, data []byte) error {
	select {
	case p.writeQueue <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.exited:
		return fmt.Errorf("enqueue input: %w", ErrChildExited)
	}
}

// Write implements the overlay/panel renderer Writer interface,
// queuing synchronized-update escape sequences the same way keystroke
// input is queued.
func (p *PTY) Write(ctx context.Context, data []byte) error {
	return p.Enqueue(ctx, data)
}

// WaitExit blocks until the child process exits and records its exit
// error. Safe to call from exactly one child-exit monitor goroutine.
func (p *PTY) WaitExit() error {
	err := p.cmd.Wait()
	p.exitOnce.Do(func() {
		p.exitErr = err
		close(p.exited)
	})
	return err
}

// Exited is closed once the child process has exited.
func (p *PTY) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the child's exit error, valid only after Exited is
// closed.
func (p *PTY) ExitErr() error {
	return p.exitErr
}

// Close sends SIGHUP to any surviving child and releases the PTY
// master fd, per spec: dropping the session's PTY must do this even
// without an explicit kill.
func (p *PTY) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGHUP)
	}
	return p.file.Close()
}

// Kill sends SIGKILL directly to the child, for force_kill's immediate
// removal path (spec.md §4.1: "cancels the session token... sends
// SIGKILL to the child").
func (p *PTY) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
