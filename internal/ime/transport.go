// Package ime provides transports to out-of-process input-method daemons
// over the session bus. Two equivalent adapters exist, one per backend
// family: Fcitx and IBus. Both are lazily connected, issue asynchronous
// per-key requests with a fixed deadline, and push backend-originated
// commit/preedit signals to handler callbacks independently of any
// request/reply exchange.
package ime

import (
	"context"
	"errors"
	"time"
)

// Connection lifecycle states.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Sentinel errors surfaced to the correlator. Every one of them means the
// same thing there: fall back to the local candidate.
var (
	// ErrUnavailable means no backend daemon could be reached.
	ErrUnavailable = errors.New("ime: backend unavailable")
	// ErrTimeout means a ProcessKey request exceeded its deadline.
	ErrTimeout = errors.New("ime: request deadline exceeded")
)

// DefaultRequestTimeout is the fixed deadline carried by every ProcessKey
// request.
const DefaultRequestTimeout = 3 * time.Second

// KeyRequest carries one key transition to the backend daemon.
type KeyRequest struct {
	Keysym  uint32
	Keycode uint32
	State   uint32
	Release bool
	Time    uint32
}

// ReplyFunc receives the asynchronous outcome of a ProcessKey request.
// handled=true means the backend consumed the key; any non-nil error is
// equivalent to handled=false.
type ReplyFunc func(handled bool, err error)

// PreeditSegment is one run of formatted preedit text.
type PreeditSegment struct {
	Text string
	Attr int32
}

// Handlers receive backend-originated signals. They are invoked from the
// transport's signal goroutine; callers are responsible for re-entering
// their own dispatch context.
type Handlers struct {
	Commit  func(text string)
	Preedit func(segments []PreeditSegment)
}

// Transport is a lazily-connected session to exactly one input-method
// daemon.
type Transport interface {
	// Name identifies the backend family ("fcitx" or "ibus").
	Name() string

	// SetHandlers registers the signal handlers. Must be called before
	// the first EnsureConnected.
	SetHandlers(h Handlers)

	// Connected reports whether a live input context exists.
	Connected() bool

	// EnsureConnected establishes the connection and input context on
	// first use, and reconnects after the bus reported disconnection.
	EnsureConnected(ctx context.Context) error

	// ContextID identifies the current input context. It changes on every
	// (re)connect; the correlator compares it to detect stale replies.
	ContextID() string

	// ProcessKey submits a key transition asynchronously. reply is invoked
	// exactly once, from a transport goroutine, with the outcome or with
	// an error once the fixed deadline expires.
	ProcessKey(req KeyRequest, reply ReplyFunc)

	// SetFocused forwards focus changes. Fire-and-forget.
	SetFocused(focused bool)

	// SetCursorGeometry forwards the caret rectangle so the daemon can
	// place candidate windows. Fire-and-forget.
	SetCursorGeometry(x, y, w, h int32)

	// Close tears down the input context and bus connection.
	Close() error
}
