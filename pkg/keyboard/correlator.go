package keyboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keypipe/internal/ime"
	"keypipe/internal/metrics"
)

// localResolution is the outcome of resolving a physical transition
// against the layout state and compose engine. It is always computed for
// presses, even when the IME later discards it, so a usable fallback
// exists the instant a reply is needed.
type localResolution struct {
	// event is the candidate ResolvedKeyEvent.
	event ResolvedKeyEvent

	// deliver is false when the transition produces no event: ambiguous
	// symbol, or a compose sequence swallowing the press.
	deliver bool

	// keysym is the effective symbol submitted to the input method.
	keysym uint32
}

// resolveFunc computes the local candidate for a transition.
type resolveFunc func(ev PhysicalKeyEvent) localResolution

// emitFunc forwards a resolved event toward the sink.
type emitFunc func(ev ResolvedKeyEvent)

// pendingRequest keeps one in-flight IME request, keyed by scancode. At
// most one exists per scancode under serialized dispatch; a new press on
// the same scancode before the reply overwrites the old entry, whose
// reply is then discarded as stale.
type pendingRequest struct {
	scancode  uint32
	event     PhysicalKeyEvent
	local     localResolution
	contextID string
	issuedAt  time.Time
}

// Correlator decides, per physical key transition, whether to resolve
// locally or defer to the input method, and reconciles whichever reply
// arrives — success, failure, timeout, or stale — against the original
// transition and the paired release. Each press/release reaches the sink
// exactly once, or exactly zero times when the IME consumed it.
type Correlator struct {
	transport ime.Transport // nil when no backend is configured
	resolve   resolveFunc
	emit      emitFunc

	// post serializes reply completions into the dispatch context that
	// owns all correlator state.
	post func(func())

	log     *slog.Logger
	metrics *metrics.Pipeline
	now     func() time.Time

	pending map[uint32]*pendingRequest

	// lastHandledPress is a single-slot record of the most recent press
	// the IME confirmed handled; consumed by the matching release. Two
	// rapid overlapping handled presses of different keys can evict each
	// other — a known approximation, kept deliberately.
	lastHandledPress uint32
	hasLastHandled   bool
}

func newCorrelator(transport ime.Transport, resolve resolveFunc, emit emitFunc, post func(func()), log *slog.Logger, m *metrics.Pipeline) *Correlator {
	return &Correlator{
		transport: transport,
		resolve:   resolve,
		emit:      emit,
		post:      post,
		log:       log,
		metrics:   m,
		now:       time.Now,
		pending:   make(map[uint32]*pendingRequest),
	}
}

// HandleKey processes one physical transition.
func (c *Correlator) HandleKey(ev PhysicalKeyEvent) {
	if ev.Action == Release {
		c.handleRelease(ev)
		return
	}
	c.handlePress(ev)
}

// handlePress implements the press/repeat path: the local candidate is
// always computed first, then either emitted immediately (no usable IME)
// or parked in a pending request awaiting the asynchronous reply.
func (c *Correlator) handlePress(ev PhysicalKeyEvent) {
	res := c.resolve(ev)

	// Keys with no effective symbol have nothing to offer the input
	// method; whatever the resolver decided stands.
	if c.transport == nil || res.keysym == 0 {
		c.emitLocal(res)
		return
	}
	if err := c.transport.EnsureConnected(context.Background()); err != nil {
		c.metrics.IMEFallback("unavailable")
		c.log.Debug("ime unavailable, resolving locally", "scancode", ev.Scancode, "err", err)
		c.emitLocal(res)
		return
	}

	p := &pendingRequest{
		scancode:  ev.Scancode,
		event:     ev,
		local:     res,
		contextID: c.transport.ContextID(),
		issuedAt:  c.now(),
	}
	c.pending[ev.Scancode] = p
	c.metrics.IMERequest()

	req := ime.KeyRequest{
		Keysym:  res.keysym,
		Keycode: ev.Scancode,
		State:   ev.RawModifierMask,
		Release: false,
		Time:    ev.Timestamp,
	}
	c.transport.ProcessKey(req, func(handled bool, err error) {
		c.post(func() {
			c.completeRequest(p, handled, err)
		})
	})
}

// handleRelease never round-trips to the IME. A release matching the
// last handled press is suppressed exactly once; anything else resolves
// locally like a press would, minus the IME branch.
func (c *Correlator) handleRelease(ev PhysicalKeyEvent) {
	if c.hasLastHandled && c.lastHandledPress == ev.Scancode {
		c.hasLastHandled = false
		c.metrics.ReleaseSuppressed()
		c.log.Debug("suppressing release of ime-handled press", "scancode", ev.Scancode)
		return
	}
	c.emitLocal(c.resolve(ev))
}

// completeRequest reconciles an IME reply with its original press. Runs
// on the dispatch context.
func (c *Correlator) completeRequest(p *pendingRequest, handled bool, err error) {
	c.metrics.IMEReply(c.now().Sub(p.issuedAt).Seconds())

	current, ok := c.pending[p.scancode]
	if !ok || current != p {
		// A newer press on the same scancode overwrote this request, or
		// the pipeline was reset while the request was in flight.
		c.metrics.IMEFallback("stale")
		c.log.Debug("discarding reply for overwritten request", "scancode", p.scancode)
		return
	}
	delete(c.pending, p.scancode)

	if p.contextID != c.transport.ContextID() {
		// The input context changed while the request was in flight;
		// the reply no longer matches the current focus.
		c.metrics.IMEFallback("stale")
		c.log.Debug("discarding stale reply", "scancode", p.scancode,
			"request_context", p.contextID, "current_context", c.transport.ContextID())
		return
	}

	if err == nil && handled {
		c.metrics.IMEHandled()
		c.lastHandledPress = p.scancode
		c.hasLastHandled = true
		// The IME delivers the real text later through its own signal
		// channel. Nothing is emitted for the press itself.
		return
	}

	switch {
	case err == nil:
		c.metrics.IMEFallback("unhandled")
	case errors.Is(err, ime.ErrTimeout):
		c.metrics.IMEFallback("timeout")
		c.log.Warn("ime request timed out", "scancode", p.scancode)
	default:
		c.metrics.IMEFallback("error")
		c.log.Warn("ime request failed", "scancode", p.scancode, "err", err)
	}

	// Retract any stale preedit visualization before the literal key
	// event lands.
	retract := p.local.event
	retract.Text = ""
	retract.IMEState = IMEPreeditChanged
	c.emit(retract)
	c.emitLocal(p.local)
}

func (c *Correlator) emitLocal(res localResolution) {
	if !res.deliver {
		return
	}
	c.emit(res.event)
}

// Reset clears the last-handled slot and invalidates pending requests, so
// in-flight replies are discarded as stale. Called on focus and layout
// teardown.
func (c *Correlator) Reset() {
	c.hasLastHandled = false
	clear(c.pending)
}
