// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session implements the per-session runtime: the PTY owner,
// the broker that fans out raw PTY bytes, the activity/quiescence
// tracker, the input-mode arbiter, and the Session type that wires
// them together with the overlay and panel renderers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/lib/clock"
	"github.com/wsh-dev/wsh/overlay"
	"github.com/wsh-dev/wsh/panel"
	"github.com/wsh-dev/wsh/vt"
)

// DefaultScrollbackLines bounds the VT scrollback ring when a caller
// does not override it.
const DefaultScrollbackLines = 10000

// NewSessionOptions configures a new Session. Cols/Rows describe the
// outer terminal size before any panel row bands are subtracted.
type NewSessionOptions struct {
	Command []string
	Env     []string
	Cwd     string
	Cols    int
	Rows    int

	Name string
	Tags []string

	ScrollbackLines int
	IdleThreshold   time.Duration
	Clock           clock.Clock
}

// Session is the ownership cell for one PTY and every collaborator it
// needs, per spec.md §3: the PTY handle, the broker, the parser task,
// the activity tracker, the input arbiter, the overlay/panel stores
// and their renderers, the terminal-size cell, and the visual-update
// coalescer.
type Session struct {
	ID   uuid.UUID
	Name string
	Tags []string

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	pty      *PTY
	broker   *Broker
	parser   *vt.Task
	activity *ActivityTracker
	input    *InputArbiter

	overlays        *overlay.Store
	overlayRenderer *overlay.Renderer

	panels        *panel.Store
	panelRenderer *panel.Renderer

	visual *Coalescer

	sizeMu             sync.Mutex
	termCols, termRows int

	panelDirtyMu     sync.Mutex
	panelLayoutDirty bool
	panelSpansDirty  map[uuid.UUID]struct{}

	detachOnce sync.Once
	detached   chan struct{}

	doneOnce sync.Once
	done     chan struct{}
	exitErr  error

	wg sync.WaitGroup
}

// NewSession spawns a child process attached to a new PTY and starts
// every per-session task (PTY reader/writer, child-exit monitor,
// parser task, render loop), per spec.md §4.1 and §5 ("Each session
// spawns: one PTY reader, one PTY writer, one parser task, one
// renderer task (coalesced), and one child-exit monitor").
func NewSession(parent context.Context, logger *slog.Logger, opts NewSessionOptions) (*Session, error) {
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	scrollback := opts.ScrollbackLines
	if scrollback <= 0 {
		scrollback = DefaultScrollbackLines
	}

	p, err := Spawn(SpawnOptions{Command: opts.Command, Env: opts.Env, Cwd: opts.Cwd, Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("session: spawn pty: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		ID:              uuid.New(),
		Name:            opts.Name,
		Tags:            opts.Tags,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		pty:             p,
		broker:          NewBroker(logger),
		parser:          vt.NewTask(cols, rows, scrollback),
		overlays:        overlay.NewStore(),
		panels:          panel.NewStore(),
		visual:          NewCoalescer(),
		panelSpansDirty: make(map[uuid.UUID]struct{}),
		detached:        make(chan struct{}),
		done:            make(chan struct{}),
		termCols:        cols,
		termRows:        rows,
	}

	activityOpts := []ActivityTrackerOption{}
	if opts.Clock != nil {
		activityOpts = append(activityOpts, WithClock(opts.Clock))
	}
	if opts.IdleThreshold > 0 {
		activityOpts = append(activityOpts, WithIdleThreshold(opts.IdleThreshold))
	}
	s.activity = NewActivityTracker(activityOpts...)
	s.input = NewInputArbiter(p)

	s.overlayRenderer = overlay.NewRenderer(s.overlays, s.parser, p)
	s.panelRenderer = panel.NewRenderer(p)

	s.parser.Start(ctx)
	if err := s.broker.SubscribeParser(s.parser); err != nil {
		cancel()
		return nil, fmt.Errorf("session: subscribe parser: %w", err)
	}

	s.wg.Add(4)
	go s.runReader()
	go s.runWriter()
	go s.runExitMonitor()
	go s.runRenderLoop()

	return s, nil
}

func (s *Session) runReader() {
	defer s.wg.Done()
	s.pty.ReadLoop(s.ctx, s.logger, func(data []byte) {
		s.broker.Publish(data)
		s.activity.Observe()
	})
}

func (s *Session) runWriter() {
	defer s.wg.Done()
	s.pty.WriteLoop(s.ctx)
}

func (s *Session) runExitMonitor() {
	defer s.wg.Done()
	err := s.pty.WaitExit()
	s.logger.Info("session child exited", "session", s.ID, "name", s.Name, "error", err)
	s.markDone(err)
	s.Detach()
	s.cancel()
}

func (s *Session) runRenderLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.visual.C():
			if err := s.overlayRenderer.Render(s.ctx); err != nil {
				s.logger.Warn("overlay render failed", "session", s.ID, "error", err)
			}
			s.flushPanelRender()
		}
	}
}

func (s *Session) flushPanelRender() {
	s.panelDirtyMu.Lock()
	layoutDirty := s.panelLayoutDirty
	s.panelLayoutDirty = false
	spansDirty := s.panelSpansDirty
	s.panelSpansDirty = make(map[uuid.UUID]struct{})
	s.panelDirtyMu.Unlock()

	if layoutDirty {
		if err := s.reconfigureLayout(); err != nil {
			s.logger.Warn("panel layout reconfigure failed", "session", s.ID, "error", err)
		}
		return
	}

	s.sizeMu.Lock()
	cols := s.termCols
	s.sizeMu.Unlock()
	for id := range spansDirty {
		p, err := s.panels.Get(id)
		if err != nil {
			continue
		}
		if err := s.panelRenderer.RenderSpans(s.ctx, p, cols); err != nil {
			s.logger.Warn("panel span render failed", "session", s.ID, "panel", id, "error", err)
		}
	}
}

// reconfigureLayout is reconfigure_layout() from spec.md §4.7: compute
// the layout, update panel visibility, repaint the panel bands, then
// resize both the PTY and the parser to the shrunk size.
func (s *Session) reconfigureLayout() error {
	s.sizeMu.Lock()
	cols, rows := s.termCols, s.termRows
	s.sizeMu.Unlock()

	allPanels := s.panels.List()
	layout := panel.ComputeLayout(allPanels, rows, cols)
	for id, visible := range layout.Visible {
		s.panels.SetVisible(id, visible)
	}

	if err := s.panelRenderer.Reconfigure(s.ctx, layout, allPanels); err != nil {
		return fmt.Errorf("reconfigure panel layout: %w", err)
	}

	if err := s.pty.Resize(layout.PTYCols, layout.PTYRows); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	if err := s.parser.Resize(s.ctx, layout.PTYCols, layout.PTYRows); err != nil {
		return fmt.Errorf("resize parser: %w", err)
	}
	return nil
}

// Resize applies a new outer terminal size: it recomputes panel
// layout, then resizes the PTY and parser to the shrunk size, per
// spec.md §3 ("Its change triggers: recomputing panel layout →
// resizing the PTY → resizing the parser").
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("session: resize: invalid size %dx%d", cols, rows)
	}
	s.sizeMu.Lock()
	s.termCols, s.termRows = cols, rows
	s.sizeMu.Unlock()
	return s.reconfigureLayout()
}

// Size returns the outer terminal size (before panel bands are
// subtracted).
func (s *Session) Size() (cols, rows int) {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	return s.termCols, s.termRows
}

// SendInput routes bytes through the input arbiter.
func (s *Session) SendInput(ctx context.Context, data []byte) error {
	return s.input.SendInput(ctx, data)
}

// Parser exposes the VT query surface (Screen, Scrollback, Cursor).
func (s *Session) Parser() *vt.Task { return s.parser }

// Broker exposes the streaming/lag surface.
func (s *Session) Broker() *Broker { return s.broker }

// Activity exposes the quiescence-query surface.
func (s *Session) Activity() *ActivityTracker { return s.activity }

// Input exposes the input-mode/focus surface.
func (s *Session) Input() *InputArbiter { return s.input }

// --- Overlay CRUD, wrapped to notify the render coalescer ---

func (s *Session) CreateOverlay(x, y int, z *int, spans []vt.Span, owner string) *overlay.Overlay {
	ov := s.overlays.Create(x, y, z, spans, owner)
	s.visual.Notify()
	return ov
}

func (s *Session) GetOverlay(id uuid.UUID) (*overlay.Overlay, error) { return s.overlays.Get(id) }

func (s *Session) ListOverlays() []*overlay.Overlay { return s.overlays.List() }

func (s *Session) UpdateOverlay(id uuid.UUID, spans []vt.Span) error {
	if err := s.overlays.Update(id, spans); err != nil {
		return err
	}
	s.visual.Notify()
	return nil
}

func (s *Session) PatchOverlay(id uuid.UUID, patch overlay.Patch) error {
	if err := s.overlays.Patch(id, patch); err != nil {
		return err
	}
	s.visual.Notify()
	return nil
}

func (s *Session) DeleteOverlay(id uuid.UUID) error {
	if err := s.overlays.Delete(id); err != nil {
		return err
	}
	s.visual.Notify()
	return nil
}

func (s *Session) ClearOverlays() {
	s.overlays.Clear()
	s.visual.Notify()
}

// DisconnectOwner garbage-collects every overlay tagged with owner
// (spec.md §3: "disconnection can garbage-collect them") and releases
// any input capture the owner held, per spec.md §6.2 ("On client
// disconnect, server releases any input capture held by this
// connection and deletes overlays/panels owned by this connection").
func (s *Session) DisconnectOwner(owner string) {
	removed := s.overlays.DeleteByOwner(owner)
	s.input.HolderDisconnected(owner)
	if len(removed) > 0 {
		s.visual.Notify()
	}
}

// --- Panel CRUD, wrapped to track which render path is needed ---

func (s *Session) CreatePanel(position panel.Position, height, z int, spans []vt.Span) *panel.Panel {
	p := s.panels.Create(position, height, z, spans)
	s.markPanelLayoutDirty()
	return p
}

func (s *Session) GetPanel(id uuid.UUID) (*panel.Panel, error) { return s.panels.Get(id) }

func (s *Session) ListPanels() []*panel.Panel { return s.panels.List() }

// UpdatePanel replaces a panel's spans only; geometry is unchanged so
// only that panel's rows are repainted (spec.md §4.7: "Span-only panel
// updates... skip the scroll-region change and just repaint the
// panel's rows").
func (s *Session) UpdatePanel(id uuid.UUID, spans []vt.Span) error {
	if err := s.panels.Update(id, spans); err != nil {
		return err
	}
	s.markPanelSpansDirty(id)
	return nil
}

// PatchPanel applies a partial update. A height or z change affects
// layout and triggers the full reconfigure path; a spans-only patch
// takes the cheaper span-repaint path.
func (s *Session) PatchPanel(id uuid.UUID, patch panel.Patch) error {
	if err := s.panels.Patch(id, patch); err != nil {
		return err
	}
	if patch.Height != nil || patch.Z != nil {
		s.markPanelLayoutDirty()
	} else {
		s.markPanelSpansDirty(id)
	}
	return nil
}

func (s *Session) DeletePanel(id uuid.UUID) error {
	if err := s.panels.Delete(id); err != nil {
		return err
	}
	s.markPanelLayoutDirty()
	return nil
}

func (s *Session) ClearPanels() {
	s.panels.Clear()
	s.markPanelLayoutDirty()
}

func (s *Session) markPanelLayoutDirty() {
	s.panelDirtyMu.Lock()
	s.panelLayoutDirty = true
	s.panelDirtyMu.Unlock()
	s.visual.Notify()
}

func (s *Session) markPanelSpansDirty(id uuid.UUID) {
	s.panelDirtyMu.Lock()
	if !s.panelLayoutDirty {
		s.panelSpansDirty[id] = struct{}{}
	}
	s.panelDirtyMu.Unlock()
	s.visual.Notify()
}

// --- Lifecycle ---

// Detached returns a channel that is closed once Detach has run.
// Streaming-client tasks select on it to receive a clean detach
// signal, per spec.md §4.8.
func (s *Session) Detached() <-chan struct{} {
	return s.detached
}

// Detach cancels all streaming-client tasks associated with this
// session by closing the Detached channel they select on. Idempotent.
func (s *Session) Detach() {
	s.detachOnce.Do(func() { close(s.detached) })
}

// ForceKill performs Detach() followed by an immediate SIGKILL to the
// child, per spec.md §4.1/§4.8. Used when the registry needs the
// session gone now rather than waiting for a natural exit.
func (s *Session) ForceKill() {
	s.Detach()
	s.pty.Kill()
	s.cancel()
}

// Close cancels every per-session task and waits for them to exit,
// releasing the PTY master fd (which delivers SIGHUP to any surviving
// child), per spec.md §3 ("Dropping the Session must release the PTY
// master fd").
func (s *Session) Close() error {
	s.Detach()
	s.cancel()
	_ = s.pty.Close()
	s.wg.Wait()
	return s.exitErr
}

// Done returns a channel closed once the child process has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) markDone(err error) {
	s.doneOnce.Do(func() {
		s.exitErr = err
		close(s.done)
	})
}
