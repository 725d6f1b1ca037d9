// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wsh-dev/wsh/overlay"
	"github.com/wsh-dev/wsh/panel"
	"github.com/wsh-dev/wsh/session"
	"github.com/wsh-dev/wsh/vt"
	"github.com/wsh-dev/wsh/wire"
)

// handleAttachWS serves the raw byte-stream endpoint (spec.md §6.1):
// framed PTY output flows server→client, framed input and resize
// flow client→server. Grounded on control-plane/internal/handlers/
// terminal.go's websocket.Accept/Read/Write relay shape.
func (s *Server) handleAttachWS(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.logger.Warn("attach ws accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	owner := ownerFromRequest(r)
	stream, unsubscribe := sess.Broker().SubscribeStreaming()
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				var frame wire.Frame
				if msg.Lagged > 0 {
					frame = wire.NewLaggedFrame(msg.Lagged)
				} else {
					frame = wire.NewDataFrame(msg.Data)
				}
				if err := writeWSFrame(ctx, conn, frame); err != nil {
					return
				}
			}
		}
	}()

	defer sess.DisconnectOwner(owner)

	reader := bufio.NewReader(newWSReader(ctx, conn))
	for {
		frame, err := wire.ReadFrame(reader)
		if err != nil {
			return
		}
		switch frame.Type {
		case wire.FrameData:
			if err := sess.SendInput(ctx, frame.Payload); err != nil {
				return
			}
		case wire.FrameResize:
			cols, rows, err := wire.ParseResizePayload(frame.Payload)
			if err != nil {
				continue
			}
			_ = sess.Resize(int(cols), int(rows))
		}
	}
}

func writeWSFrame(ctx context.Context, conn *websocket.Conn, f wire.Frame) error {
	var buf frameBuffer
	if err := wire.WriteFrame(&buf, f); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageBinary, buf.Bytes())
}

// frameBuffer is a minimal io.Writer sink for a single WriteFrame
// call before handing the bytes to a websocket message write.
type frameBuffer struct {
	data []byte
}

func (b *frameBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *frameBuffer) Bytes() []byte { return b.data }

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

// handleStructuredWS serves the JSON request/response/event endpoint
// (spec.md §6.2).
func (s *Server) handleStructuredWS(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFromRequest(w, r)
	if sess == nil {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.logger.Warn("structured ws accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeWSJSON(ctx, conn, wire.Hello{Connected: true}); err != nil {
		return
	}

	d := &wsDispatcher{sess: sess, conn: conn, ctx: ctx, cancel: cancel, logger: s.logger, owner: ownerFromRequest(r)}
	defer d.teardown()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req wire.Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = writeWSJSON(ctx, conn, wire.NewError(nil, "", wire.ErrCodeInvalidRequest, err.Error()))
			continue
		}
		go d.dispatch(req)
	}
}

func writeWSJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, raw)
}

// wsDispatcher holds per-connection state for the structured channel:
// the current subscription and quiescence wait, if any, and cleanup
// for capture focus. mu guards the fields below it, which subscribe
// and await_quiesce mutate from whichever request goroutine currently
// owns them (each incoming request is dispatched on its own
// goroutine — see handleStructuredWS's "go d.dispatch(req)").
type wsDispatcher struct {
	sess   *session.Session
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	owner  string

	mu             sync.Mutex
	unsubParser    func()
	unsubInput     func()
	forwardCancel  context.CancelFunc
	pendingQuiesce *quiesceWait
}

// quiesceWait tracks one in-flight await_quiesce call so a later call
// on the same connection can supersede it, per spec.md §6.2.
type quiesceWait struct {
	cancel context.CancelCauseFunc
}

func (d *wsDispatcher) teardown() {
	d.mu.Lock()
	if d.forwardCancel != nil {
		d.forwardCancel()
	}
	if d.pendingQuiesce != nil {
		d.pendingQuiesce.cancel(context.Canceled)
	}
	unsubParser, unsubInput := d.unsubParser, d.unsubInput
	d.mu.Unlock()

	if unsubParser != nil {
		unsubParser()
	}
	if unsubInput != nil {
		unsubInput()
	}
	d.sess.DisconnectOwner(d.owner)
}

// resubscribe replaces any previous subscription atomically (spec.md
// §6.2's "subscribe replaces any previous subscription atomically")
// and pushes a fresh "sync" event carrying the complete current
// screen before returning.
func (d *wsDispatcher) resubscribe(styled bool) error {
	d.mu.Lock()
	if d.forwardCancel != nil {
		d.forwardCancel()
	}
	if d.unsubParser != nil {
		d.unsubParser()
	}
	if d.unsubInput != nil {
		d.unsubInput()
	}

	fctx, cancel := context.WithCancel(d.ctx)
	d.forwardCancel = cancel

	events := d.sess.Parser().Subscribe()
	d.unsubParser = func() { d.sess.Parser().Unsubscribe(events) }

	inputEvents, unsubInput := d.sess.Input().Subscribe()
	d.unsubInput = unsubInput

	go d.forwardEvents(fctx, events, inputEvents)
	d.mu.Unlock()

	screen, err := d.sess.Parser().Screen(d.ctx, styled)
	if err != nil {
		return err
	}
	evt, err := wire.NewEvent("sync", screen)
	if err != nil {
		return err
	}
	return writeWSJSON(d.ctx, d.conn, evt)
}

// forwardEvents pushes parser and input events to the client as they
// occur, per the "subscribe" method's event stream contract (spec.md
// §6.2). ctx is scoped to one subscription generation: resubscribe
// cancels it to retire a superseded forwarder without tearing down
// the whole connection.
func (d *wsDispatcher) forwardEvents(ctx context.Context, events <-chan vt.Event, inputEvents <-chan session.InputEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			evt, err := wire.NewEvent(string(e.Kind), parserEventPayload(e))
			if err != nil {
				continue
			}
			if err := writeWSJSON(d.ctx, d.conn, evt); err != nil {
				d.cancel()
				return
			}
		case e, ok := <-inputEvents:
			if !ok {
				return
			}
			var evt wire.Event
			var err error
			if e.Lagged > 0 {
				evt, err = wire.NewEvent("lagged", vt.LaggedEvent{Count: e.Lagged})
			} else {
				evt, err = wire.NewEvent("input", e)
			}
			if err != nil {
				continue
			}
			if err := writeWSJSON(d.ctx, d.conn, evt); err != nil {
				d.cancel()
				return
			}
		}
	}
}

func parserEventPayload(e vt.Event) any {
	switch e.Kind {
	case vt.EventLine:
		return e.Line
	case vt.EventCursor:
		return e.Cursor
	case vt.EventMode:
		return e.Mode
	case vt.EventReset:
		return e.Reset
	case vt.EventLagged:
		return e.Lagged
	default:
		return nil
	}
}

func (d *wsDispatcher) dispatch(req wire.Request) {
	resp := d.handle(req)
	if err := writeWSJSON(d.ctx, d.conn, resp); err != nil {
		d.cancel()
	}
}

func (d *wsDispatcher) handle(req wire.Request) wire.Response {
	switch req.Method {
	case "get_screen":
		var params struct{ Styled bool }
		json.Unmarshal(req.Params, &params)
		result, err := d.sess.Parser().Screen(d.ctx, params.Styled)
		if err != nil {
			return errorResponse(req, err)
		}
		resp, _ := wire.NewResult(req.ID, req.Method, result)
		return resp

	case "get_scrollback":
		var params struct {
			Offset uint64
			Limit  int
			Styled bool
		}
		json.Unmarshal(req.Params, &params)
		result, err := d.sess.Parser().Scrollback(d.ctx, params.Offset, params.Limit, params.Styled)
		if err != nil {
			return errorResponse(req, err)
		}
		resp, _ := wire.NewResult(req.ID, req.Method, result)
		return resp

	case "get_cursor":
		cursor, err := d.sess.Parser().Cursor(d.ctx)
		if err != nil {
			return errorResponse(req, err)
		}
		resp, _ := wire.NewResult(req.ID, req.Method, cursor)
		return resp

	case "send_input":
		var params struct{ Data []byte }
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.SendInput(d.ctx, params.Data); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInputSendFailed, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "get_input_mode":
		mode, holder := d.sess.Input().Mode()
		resp, _ := wire.NewResult(req.ID, req.Method, map[string]string{"mode": string(mode), "holder": holder})
		return resp

	case "capture_input":
		if err := d.sess.Input().Capture(d.owner); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeFocusTaken, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "release_input":
		d.sess.Input().Release(d.owner)
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "create_overlay":
		var params struct {
			X, Y  int
			Z     *int
			Spans []vt.Span
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		ov := d.sess.CreateOverlay(params.X, params.Y, params.Z, params.Spans, d.owner)
		resp, _ := wire.NewResult(req.ID, req.Method, ov)
		return resp

	case "update_overlay":
		var params struct {
			ID    uuid.UUID
			Spans []vt.Span
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.UpdateOverlay(params.ID, params.Spans); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeOverlayNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "patch_overlay":
		var params struct {
			ID    uuid.UUID
			Patch overlay.Patch
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.PatchOverlay(params.ID, params.Patch); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeOverlayNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "delete_overlay":
		var params struct{ ID uuid.UUID }
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.DeleteOverlay(params.ID); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeOverlayNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "list_overlays":
		resp, _ := wire.NewResult(req.ID, req.Method, d.sess.ListOverlays())
		return resp

	case "clear_overlays":
		d.sess.ClearOverlays()
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "create_panel":
		var params struct {
			Position panel.Position
			Height   int
			Z        int
			Spans    []vt.Span
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		p := d.sess.CreatePanel(params.Position, params.Height, params.Z, params.Spans)
		resp, _ := wire.NewResult(req.ID, req.Method, p)
		return resp

	case "update_panel":
		var params struct {
			ID    uuid.UUID
			Spans []vt.Span
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.UpdatePanel(params.ID, params.Spans); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodePanelNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "patch_panel":
		var params struct {
			ID    uuid.UUID
			Patch panel.Patch
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.PatchPanel(params.ID, params.Patch); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodePanelNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "delete_panel":
		var params struct{ ID uuid.UUID }
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInvalidRequest, err.Error())
		}
		if err := d.sess.DeletePanel(params.ID); err != nil {
			return wire.NewError(req.ID, req.Method, wire.ErrCodePanelNotFound, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "list_panels":
		resp, _ := wire.NewResult(req.ID, req.Method, d.sess.ListPanels())
		return resp

	case "clear_panels":
		d.sess.ClearPanels()
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	case "await_quiesce":
		var params struct {
			TimeoutMS      int64
			LastGeneration *uint64
			Fresh          bool
			MaxWaitMS      int64
		}
		json.Unmarshal(req.Params, &params)
		timeout := session.DefaultIdleThreshold
		if params.TimeoutMS > 0 {
			timeout = msToDuration(params.TimeoutMS)
		}
		maxWait := defaultMaxWait
		if params.MaxWaitMS > 0 {
			maxWait = msToDuration(params.MaxWaitMS)
		}

		// A second await_quiesce on the same connection supersedes the
		// first (spec.md §6.2): cancel the prior wait's context with a
		// distinguishable cause so its goroutine can reply
		// quiesce_superseded instead of a generic error.
		qctx, cancel := context.WithCancelCause(d.ctx)
		mine := &quiesceWait{cancel: cancel}
		d.mu.Lock()
		prior := d.pendingQuiesce
		d.pendingQuiesce = mine
		d.mu.Unlock()
		if prior != nil {
			prior.cancel(session.ErrQuiesceSuperseded)
		}

		generation, err := d.sess.Activity().WaitForQuiescence(qctx, timeout, params.LastGeneration, params.Fresh, maxWait)

		d.mu.Lock()
		if d.pendingQuiesce == mine {
			d.pendingQuiesce = nil
		}
		d.mu.Unlock()

		if err != nil {
			if errors.Is(context.Cause(qctx), session.ErrQuiesceSuperseded) {
				return wire.NewError(req.ID, req.Method, wire.ErrCodeQuiesceSuperseded, session.ErrQuiesceSuperseded.Error())
			}
			return wire.NewError(req.ID, req.Method, wire.ErrCodeInternalError, err.Error())
		}
		resp, _ := wire.NewResult(req.ID, req.Method, map[string]uint64{"generation": generation})
		return resp

	case "subscribe":
		var params struct{ Styled bool }
		json.Unmarshal(req.Params, &params)
		if err := d.resubscribe(params.Styled); err != nil {
			return errorResponse(req, err)
		}
		resp, _ := wire.NewResult(req.ID, req.Method, nil)
		return resp

	default:
		return wire.NewError(req.ID, req.Method, wire.ErrCodeUnknownMethod, "unknown method: "+req.Method)
	}
}

func errorResponse(req wire.Request, err error) wire.Response {
	if errors.Is(err, vt.ErrParserUnavailable) {
		return wire.NewError(req.ID, req.Method, wire.ErrCodeParserUnavailable, err.Error())
	}
	return wire.NewError(req.ID, req.Method, wire.ErrCodeInternalError, err.Error())
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
