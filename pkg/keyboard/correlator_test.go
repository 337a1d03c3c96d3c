package keyboard

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"keypipe/internal/ime"
	"keypipe/internal/logging"
	"keypipe/internal/metrics"
)

// fakeTransport is a scriptable ime.Transport. Replies are captured and
// released by the test, so each scenario controls exactly when and how the
// backend answers.
type fakeTransport struct {
	contextID   string
	connectErr  error
	requests    []ime.KeyRequest
	replies     []ime.ReplyFunc
	focusCalls  []bool
	handlers    ime.Handlers
	handlersSet bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) SetHandlers(h ime.Handlers) {
	f.handlers = h
	f.handlersSet = true
}

func (f *fakeTransport) Connected() bool { return f.connectErr == nil }

func (f *fakeTransport) EnsureConnected(_ context.Context) error { return f.connectErr }

func (f *fakeTransport) ContextID() string { return f.contextID }

func (f *fakeTransport) ProcessKey(req ime.KeyRequest, reply ime.ReplyFunc) {
	f.requests = append(f.requests, req)
	f.replies = append(f.replies, reply)
}

func (f *fakeTransport) SetFocused(focused bool) { f.focusCalls = append(f.focusCalls, focused) }

func (f *fakeTransport) SetCursorGeometry(x, y, w, h int32) {}

func (f *fakeTransport) Close() error { return nil }

// answer releases the i-th captured reply.
func (f *fakeTransport) answer(i int, handled bool, err error) {
	f.replies[i](handled, err)
}

func testMetrics() *metrics.Pipeline {
	return metrics.NewPipeline("test", metrics.WithRegistry(prometheus.NewRegistry()))
}

// newTestCorrelator wires a correlator whose post runs inline, so reply
// completions execute synchronously in the test goroutine.
func newTestCorrelator(t *testing.T, tr ime.Transport) (*Correlator, *[]ResolvedKeyEvent) {
	t.Helper()
	var emitted []ResolvedKeyEvent
	resolve := func(ev PhysicalKeyEvent) localResolution {
		return localResolution{
			event: ResolvedKeyEvent{
				Key:      KeyA,
				Scancode: ev.Scancode,
				Action:   ev.Action,
				Text:     "a",
			},
			deliver: true,
			keysym:  'a',
		}
	}
	emit := func(ev ResolvedKeyEvent) { emitted = append(emitted, ev) }
	post := func(fn func()) { fn() }
	c := newCorrelator(tr, resolve, emit, post, logging.Discard(), testMetrics())
	return c, &emitted
}

func press(scancode uint32) PhysicalKeyEvent {
	return PhysicalKeyEvent{Scancode: scancode, Action: Press}
}

func release(scancode uint32) PhysicalKeyEvent {
	return PhysicalKeyEvent{Scancode: scancode, Action: Release}
}

func TestNilTransportResolvesLocally(t *testing.T) {
	c, emitted := newTestCorrelator(t, nil)

	c.HandleKey(press(38))
	c.HandleKey(release(38))

	if len(*emitted) != 2 {
		t.Fatalf("expected 2 events, got %d", len(*emitted))
	}
	if (*emitted)[0].Action != Press || (*emitted)[1].Action != Release {
		t.Errorf("wrong actions: %v, %v", (*emitted)[0].Action, (*emitted)[1].Action)
	}
}

func TestUnavailableTransportFallsBack(t *testing.T) {
	tr := &fakeTransport{connectErr: ime.ErrUnavailable}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))

	if len(tr.requests) != 0 {
		t.Fatalf("no request should reach an unavailable backend, got %d", len(tr.requests))
	}
	if len(*emitted) != 1 {
		t.Fatalf("expected immediate local event, got %d", len(*emitted))
	}
}

func TestHandledPressSwallowedAndReleaseSuppressed(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	if len(tr.requests) != 1 {
		t.Fatalf("expected 1 ime request, got %d", len(tr.requests))
	}
	if len(*emitted) != 0 {
		t.Fatalf("press must be held until the reply, got %d events", len(*emitted))
	}

	tr.answer(0, true, nil)
	if len(*emitted) != 0 {
		t.Fatalf("handled press must not emit, got %d events", len(*emitted))
	}

	// The paired release is suppressed exactly once.
	c.HandleKey(release(38))
	if len(*emitted) != 0 {
		t.Fatalf("release of a handled press must be suppressed, got %d events", len(*emitted))
	}

	// A second release of the same key is an ordinary event again.
	c.HandleKey(release(38))
	if len(*emitted) != 1 {
		t.Fatalf("second release must emit, got %d events", len(*emitted))
	}
}

func TestUnhandledReplyRetractsPreeditThenEmitsLocal(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	tr.answer(0, false, nil)

	if len(*emitted) != 2 {
		t.Fatalf("expected retract + local, got %d events", len(*emitted))
	}
	retract := (*emitted)[0]
	if retract.IMEState != IMEPreeditChanged || retract.Text != "" {
		t.Errorf("first event must clear preedit, got state=%v text=%q", retract.IMEState, retract.Text)
	}
	local := (*emitted)[1]
	if local.IMEState != IMENone || local.Text != "a" {
		t.Errorf("second event must be the local candidate, got state=%v text=%q", local.IMEState, local.Text)
	}

	// The release is not suppressed after an unhandled reply.
	c.HandleKey(release(38))
	if len(*emitted) != 3 {
		t.Fatalf("release must emit, got %d events", len(*emitted))
	}
}

func TestErrorReplyFallsBackLocally(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	tr.answer(0, false, errors.New("bus gone"))

	if len(*emitted) != 2 {
		t.Fatalf("expected retract + local after error, got %d events", len(*emitted))
	}
}

func TestTimeoutReplyFallsBackLocally(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	tr.answer(0, false, ime.ErrTimeout)

	if len(*emitted) != 2 {
		t.Fatalf("expected retract + local after timeout, got %d events", len(*emitted))
	}
}

func TestStaleContextReplyDiscarded(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	// The input context changed (reconnect, focus move) while the request
	// was in flight.
	tr.contextID = "ctx-2"
	tr.answer(0, true, nil)

	if len(*emitted) != 0 {
		t.Fatalf("stale reply must be discarded silently, got %d events", len(*emitted))
	}
	// The stale handled reply must not arm release suppression.
	c.HandleKey(release(38))
	if len(*emitted) != 1 {
		t.Fatalf("release after stale reply must emit, got %d events", len(*emitted))
	}
}

func TestOverwrittenRequestReplyDiscarded(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	c.HandleKey(press(38)) // same scancode, overwrites the pending entry
	if len(tr.requests) != 2 {
		t.Fatalf("expected 2 ime requests, got %d", len(tr.requests))
	}

	// First reply is stale; only the second press resolves.
	tr.answer(0, false, nil)
	if len(*emitted) != 0 {
		t.Fatalf("overwritten reply must be discarded, got %d events", len(*emitted))
	}
	tr.answer(1, false, nil)
	if len(*emitted) != 2 {
		t.Fatalf("expected retract + local from the live reply, got %d events", len(*emitted))
	}
}

func TestResetInvalidatesPendingRequests(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	c.Reset()
	tr.answer(0, false, nil)

	if len(*emitted) != 0 {
		t.Fatalf("reply after reset must be discarded, got %d events", len(*emitted))
	}
}

func TestResetClearsSuppressionSlot(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, emitted := newTestCorrelator(t, tr)

	c.HandleKey(press(38))
	tr.answer(0, true, nil)
	c.Reset()

	c.HandleKey(release(38))
	if len(*emitted) != 1 {
		t.Fatalf("release after reset must emit, got %d events", len(*emitted))
	}
}

func TestNoSymbolSkipsIME(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	var emitted []ResolvedKeyEvent
	resolve := func(ev PhysicalKeyEvent) localResolution {
		// A key with no effective symbol, e.g. an ambiguous drop.
		return localResolution{}
	}
	c := newCorrelator(tr, resolve, func(ev ResolvedKeyEvent) { emitted = append(emitted, ev) },
		func(fn func()) { fn() }, logging.Discard(), testMetrics())

	c.HandleKey(press(99))
	if len(tr.requests) != 0 {
		t.Fatalf("symbol-less key must not round-trip, got %d requests", len(tr.requests))
	}
	if len(emitted) != 0 {
		t.Fatalf("dropped resolution must not emit, got %d events", len(emitted))
	}
}

func TestRequestCarriesWireFields(t *testing.T) {
	tr := &fakeTransport{contextID: "ctx-1"}
	c, _ := newTestCorrelator(t, tr)

	c.HandleKey(PhysicalKeyEvent{Scancode: 38, Action: Press, RawModifierMask: 0x5, Timestamp: 1234})

	req := tr.requests[0]
	if req.Keysym != 'a' || req.Keycode != 38 || req.State != 0x5 || req.Release || req.Time != 1234 {
		t.Errorf("unexpected wire request: %+v", req)
	}
}
