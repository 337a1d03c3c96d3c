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

	"keypipe/internal/keysym"
)

// IBus D-Bus constants. The portal service lives on the session bus and
// proxies to the private IBus daemon bus.
const (
	ibusService      = "org.freedesktop.portal.IBus"
	ibusPath         = "/org/freedesktop/IBus"
	ibusPortalIface  = "org.freedesktop.IBus.Portal"
	ibusICIface      = "org.freedesktop.IBus.InputContext"
	ibusMethodCreate = ibusPortalIface + ".CreateInputContext"
)

// IBus input-context capability flags.
const (
	ibusCapPreeditText uint32 = 1 << 0
	ibusCapFocus       uint32 = 1 << 3
)

// IBusTransport talks to an IBus daemon through its portal. It differs
// from the Fcitx wire contract only mechanically: key releases are encoded
// with a state mask bit instead of a boolean argument, and commit/preedit
// signals carry IBusText variants instead of plain strings. Both are
// normalized to the shared Handlers callbacks.
type IBusTransport struct {
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
}

// NewIBus creates a disconnected IBus transport.
func NewIBus(program string, timeout time.Duration, log *slog.Logger) *IBusTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &IBusTransport{
		program: program,
		timeout: timeout,
		log:     log,
	}
}

// SetHandlers registers the signal handlers. Call before the first
// EnsureConnected; handlers installed later may miss signals already
// in flight.
func (t *IBusTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

func (t *IBusTransport) Name() string { return "ibus" }

func (t *IBusTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateConnected && t.conn != nil && t.conn.Connected()
}

func (t *IBusTransport) ContextID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contextID
}

func (t *IBusTransport) EnsureConnected(ctx context.Context) error {
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

	portal := conn.Object(ibusService, ibusPath)
	var icPath dbus.ObjectPath
	if err := portal.CallWithContext(ctx, ibusMethodCreate, 0, t.program).Store(&icPath); err != nil {
		conn.Close()
		t.state = stateDisconnected
		return fmt.Errorf("%w: create input context: %v", ErrUnavailable, err)
	}

	ic := conn.Object(ibusService, icPath)
	ic.Call(ibusICIface+".SetCapabilities", dbus.FlagNoReplyExpected,
		ibusCapPreeditText|ibusCapFocus)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(icPath),
		dbus.WithMatchInterface(ibusICIface),
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
	t.contextID = uuid.NewString()
	t.state = stateConnected
	t.log.Info("ibus input context created", "path", string(icPath), "context", t.contextID)
	return nil
}

func (t *IBusTransport) signalLoop(ch chan *dbus.Signal, icPath dbus.ObjectPath) {
	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()
	for sig := range ch {
		if sig.Path != icPath {
			continue
		}
		switch sig.Name {
		case ibusICIface + ".CommitText":
			if len(sig.Body) < 1 {
				continue
			}
			if text, ok := textFromIBusValue(sig.Body[0]); ok && handlers.Commit != nil {
				handlers.Commit(text)
			}
		case ibusICIface + ".UpdatePreeditText":
			if len(sig.Body) < 3 {
				continue
			}
			visible, _ := sig.Body[2].(bool)
			var segs []PreeditSegment
			if text, ok := textFromIBusValue(sig.Body[0]); ok && visible && text != "" {
				segs = []PreeditSegment{{Text: text}}
			}
			if handlers.Preedit != nil {
				handlers.Preedit(segs)
			}
		}
	}
}

// textFromIBusValue extracts the plain string from an IBusText value. On
// the wire an IBusText is a variant holding the struct
// ("IBusText", attachments, text, attributes); the text sits at index 2.
func textFromIBusValue(body any) (string, bool) {
	v := body
	if variant, ok := v.(dbus.Variant); ok {
		v = variant.Value()
	}
	switch val := v.(type) {
	case string:
		return val, true
	case []any:
		if len(val) >= 3 {
			if text, ok := val[2].(string); ok {
				return text, true
			}
		}
	}
	return "", false
}

// ProcessKey submits one key transition. Releases are encoded with the
// release bit in the state mask, per the IBus contract.
func (t *IBusTransport) ProcessKey(req KeyRequest, reply ReplyFunc) {
	t.mu.Lock()
	if t.state != stateConnected {
		t.mu.Unlock()
		go reply(false, ErrUnavailable)
		return
	}
	ic := t.ic
	t.mu.Unlock()

	state := req.State
	if req.Release {
		state |= keysym.ReleaseMask
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	call := ic.GoWithContext(ctx, ibusICIface+".ProcessKeyEvent", 0,
		make(chan *dbus.Call, 1),
		req.Keysym, req.Keycode, state)
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

func (t *IBusTransport) noteCallFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateConnected && !t.conn.Connected() {
		t.log.Warn("ibus bus connection lost", "err", err)
		t.teardownLocked()
	}
}

func (t *IBusTransport) SetFocused(focused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected {
		return
	}
	method := ibusICIface + ".FocusIn"
	if !focused {
		method = ibusICIface + ".FocusOut"
	}
	t.ic.Call(method, dbus.FlagNoReplyExpected)
}

func (t *IBusTransport) SetCursorGeometry(x, y, w, h int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected {
		return
	}
	t.ic.Call(ibusICIface+".SetCursorLocation", dbus.FlagNoReplyExpected, x, y, w, h)
}

func (t *IBusTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
	return nil
}

func (t *IBusTransport) teardownLocked() {
	if t.conn != nil {
		// Closing the connection terminates the signal handler and ends
		// the signal loop.
		t.conn.Close()
	}
	t.conn = nil
	t.ic = nil
	t.icPath = ""
	t.contextID = ""
	t.state = stateDisconnected
}
