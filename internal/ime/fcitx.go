package ime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// Fcitx D-Bus constants.
const (
	fcitxService      = "org.freedesktop.portal.Fcitx"
	fcitxPath         = "/org/freedesktop/portal/inputmethod"
	fcitxIMIface      = "org.fcitx.Fcitx.InputMethod1"
	fcitxICIface      = "org.fcitx.Fcitx.InputContext1"
	fcitxMethodCreate = fcitxIMIface + ".CreateInputContext"
)

// Fcitx capability flags declared on the input context.
const (
	fcitxCapPreedit          uint64 = 1 << 1
	fcitxCapFormattedPreedit uint64 = 1 << 4
)

// fcitxAttr is one (key, value) pair of the a(ss) argument to
// CreateInputContext.
type fcitxAttr struct {
	Key   string
	Value string
}

// FcitxTransport talks to a Fcitx daemon over the session bus. The wire
// contract matches the daemon bit-for-bit: ProcessKeyEvent(uuubu)->(b),
// FocusIn/FocusOut/SetCursorRect fire-and-forget, and the CommitString /
// UpdateFormattedPreedit signals.
type FcitxTransport struct {
	program string
	timeout time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	handlers  Handlers
	state     connState
	conn      *dbus.Conn
	ic        dbus.BusObject
	icPath    dbus.ObjectPath
	contextID string
	sigCh     chan *dbus.Signal
}

// NewFcitx creates a disconnected Fcitx transport. program names this
// client to the daemon; timeout <= 0 selects DefaultRequestTimeout.
func NewFcitx(program string, timeout time.Duration, log *slog.Logger) *FcitxTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &FcitxTransport{
		program: program,
		timeout: timeout,
		log:     log,
	}
}

// SetHandlers registers the signal handlers. Call before the first
// EnsureConnected; handlers installed later may miss signals already
// in flight.
func (t *FcitxTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *FcitxTransport) Name() string { return "fcitx" }

func (t *FcitxTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateConnected && t.conn != nil && t.conn.Connected()
}

func (t *FcitxTransport) ContextID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contextID
}

// EnsureConnected lazily connects on first use and reconnects after the
// bus reported disconnection. Each successful connect creates a fresh
// input context with a new identity.
func (t *FcitxTransport) EnsureConnected(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == stateConnected {
		if t.conn.Connected() {
			return nil
		}
		t.teardownLocked()
	}
	t.state = stateConnecting

	// Connecting runs on the caller's goroutine; an unresponsive daemon
	// must not stall it past the request deadline.
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		t.state = stateDisconnected
		return fmt.Errorf("%w: session bus: %v", ErrUnavailable, err)
	}
	handshake := make(chan error, 1)
	go func() {
		err := conn.Auth(nil)
		if err == nil {
			err = conn.Hello()
		}
		handshake <- err
	}()
	select {
	case err = <-handshake:
	case <-ctx.Done():
		// Closing the connection unblocks the handshake goroutine.
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		t.state = stateDisconnected
		return fmt.Errorf("%w: session bus handshake: %v", ErrUnavailable, err)
	}

	im := conn.Object(fcitxService, fcitxPath)
	var icPath dbus.ObjectPath
	var icUUID []byte
	err = im.CallWithContext(ctx, fcitxMethodCreate, 0,
		[]fcitxAttr{{Key: "program", Value: t.program}}).Store(&icPath, &icUUID)
	if err != nil {
		conn.Close()
		t.state = stateDisconnected
		return fmt.Errorf("%w: create input context: %v", ErrUnavailable, err)
	}

	ic := conn.Object(fcitxService, icPath)
	ic.Call(fcitxICIface+".SetCapability", dbus.FlagNoReplyExpected,
		fcitxCapPreedit|fcitxCapFormattedPreedit)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(icPath),
		dbus.WithMatchInterface(fcitxICIface),
	); err != nil {
		conn.Close()
		t.state = stateDisconnected
		return fmt.Errorf("%w: subscribe signals: %v", ErrUnavailable, err)
	}

	sigCh := make(chan *dbus.Signal, 32)
	conn.Signal(sigCh)
	go t.signalLoop(sigCh, icPath)

	t.conn = conn
	t.ic = ic
	t.icPath = icPath
	t.contextID = contextIDFromBytes(icUUID)
	t.sigCh = sigCh
	t.state = stateConnected
	t.log.Info("fcitx input context created", "path", string(icPath), "context", t.contextID)
	return nil
}

func contextIDFromBytes(b []byte) string {
	if id, err := uuid.FromBytes(b); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// signalLoop pushes backend-originated signals straight to the handlers.
// It exits when the connection closes the channel.
func (t *FcitxTransport) signalLoop(ch chan *dbus.Signal, icPath dbus.ObjectPath) {
	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()
	for sig := range ch {
		if sig.Path != icPath {
			continue
		}
		switch sig.Name {
		case fcitxICIface + ".CommitString":
			if len(sig.Body) < 1 {
				continue
			}
			if text, ok := sig.Body[0].(string); ok && handlers.Commit != nil {
				handlers.Commit(text)
			}
		case fcitxICIface + ".UpdateFormattedPreedit":
			if len(sig.Body) < 1 {
				continue
			}
			segs := decodeFormattedPreedit(sig.Body[0])
			if handlers.Preedit != nil {
				handlers.Preedit(segs)
			}
		}
	}
}

// decodeFormattedPreedit converts the wire a(si) segment array.
func decodeFormattedPreedit(body any) []PreeditSegment {
	raw, ok := body.([][]any)
	if !ok {
		// godbus may also deliver []interface{} of structs.
		general, ok2 := body.([]any)
		if !ok2 {
			return nil
		}
		raw = make([][]any, 0, len(general))
		for _, item := range general {
			if s, ok := item.([]any); ok {
				raw = append(raw, s)
			}
		}
	}
	segs := make([]PreeditSegment, 0, len(raw))
	for _, item := range raw {
		if len(item) != 2 {
			continue
		}
		text, okT := item[0].(string)
		attr, okA := item[1].(int32)
		if okT && okA {
			segs = append(segs, PreeditSegment{Text: text, Attr: attr})
		}
	}
	return segs
}

// ProcessKey submits one key transition with a fixed deadline. The reply
// callback runs exactly once on a transport goroutine.
func (t *FcitxTransport) ProcessKey(req KeyRequest, reply ReplyFunc) {
	t.mu.Lock()
	if t.state != stateConnected {
		t.mu.Unlock()
		go reply(false, ErrUnavailable)
		return
	}
	ic := t.ic
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	call := ic.GoWithContext(ctx, fcitxICIface+".ProcessKeyEvent", 0,
		make(chan *dbus.Call, 1),
		req.Keysym, req.Keycode, req.State, req.Release, req.Time)
	go func() {
		defer cancel()
		<-call.Done
		if call.Err != nil {
			err := call.Err
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrTimeout
			}
			t.noteCallFailure(err)
			reply(false, err)
			return
		}
		var handled bool
		if err := call.Store(&handled); err != nil {
			reply(false, err)
			return
		}
		reply(handled, nil)
	}()
}

// noteCallFailure marks the transport disconnected when the bus itself is
// gone, so the next key press reconnects lazily. Mid-flight requests are
// never retried.
func (t *FcitxTransport) noteCallFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateConnected && !t.conn.Connected() {
		t.log.Warn("fcitx bus connection lost", "err", err)
		t.teardownLocked()
	}
}

func (t *FcitxTransport) SetFocused(focused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected {
		return
	}
	method := fcitxICIface + ".FocusIn"
	if !focused {
		method = fcitxICIface + ".FocusOut"
	}
	t.ic.Call(method, dbus.FlagNoReplyExpected)
}

func (t *FcitxTransport) SetCursorGeometry(x, y, w, h int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected {
		return
	}
	t.ic.Call(fcitxICIface+".SetCursorRect", dbus.FlagNoReplyExpected, x, y, w, h)
}

func (t *FcitxTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	return nil
}

// teardownLocked releases the input context and bus connection. Callers
// hold t.mu.
func (t *FcitxTransport) teardownLocked() {
	if t.conn != nil {
		if t.ic != nil && t.conn.Connected() {
			t.ic.Call(fcitxICIface+".DestroyIC", dbus.FlagNoReplyExpected)
		}
		// Closing the connection terminates the signal handler, which
		// closes sigCh and ends the signal loop.
		t.conn.Close()
	}
	t.conn = nil
	t.ic = nil
	t.icPath = ""
	t.contextID = ""
	t.sigCh = nil
	t.state = stateDisconnected
}
