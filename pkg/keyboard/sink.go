package keyboard

import (
	"log/slog"

	"keypipe/internal/metrics"
)

// keyRecord tracks per-scancode delivery state for repeat detection and
// sticky-key latching.
type keyRecord struct {
	action Action
	stuck  bool
}

// Sink is the last stage of the pipeline. It applies, in order: repeat
// detection, sticky-key latching, and modifier-lock stripping, then
// invokes the registered application callback exactly once per event.
type Sink struct {
	stickyKeys    bool
	stickyButtons bool
	lockKeyMods   bool

	keys     map[uint32]*keyRecord
	buttons  map[uint32]*keyRecord
	callback Callback
	log      *slog.Logger
	metrics  *metrics.Pipeline
}

func newSink(stickyKeys, stickyButtons, lockKeyMods bool, log *slog.Logger, m *metrics.Pipeline) *Sink {
	return &Sink{
		stickyKeys:    stickyKeys,
		stickyButtons: stickyButtons,
		lockKeyMods:   lockKeyMods,
		keys:          make(map[uint32]*keyRecord),
		buttons:       make(map[uint32]*keyRecord),
		log:           log,
		metrics:       m,
	}
}

// SetCallback registers the application callback.
func (s *Sink) SetCallback(cb Callback) {
	s.callback = cb
}

// SetStickyKeys toggles sticky-key latching. Disabling it releases any
// latched state.
func (s *Sink) SetStickyKeys(enabled bool) {
	if s.stickyKeys && !enabled {
		for _, rec := range s.keys {
			rec.stuck = false
		}
	}
	s.stickyKeys = enabled
}

// SetLockKeyMods toggles caps-lock/num-lock bits in reported masks.
func (s *Sink) SetLockKeyMods(enabled bool) {
	s.lockKeyMods = enabled
}

// Deliver applies the sink stages and invokes the callback. IME-tagged
// events (commit, preedit) carry no physical transition and bypass the
// state tracking.
func (s *Sink) Deliver(window uint64, ev ResolvedKeyEvent) {
	if ev.IMEState == IMENone {
		ev.Action = s.track(ev.Scancode, ev.Action)
	}
	if !s.lockKeyMods {
		ev.Mods &^= ModCapsLock | ModNumLock
	}
	s.metrics.EventEmitted()
	if s.callback != nil {
		s.callback(window, ev)
	}
}

// track updates per-key state and turns a Press on an already-pressed key
// into Repeat.
func (s *Sink) track(scancode uint32, action Action) Action {
	rec, ok := s.keys[scancode]
	if !ok {
		rec = &keyRecord{action: Release}
		s.keys[scancode] = rec
	}
	switch action {
	case Press:
		if rec.action == Press || rec.action == Repeat {
			action = Repeat
		}
		rec.action = action
	case Repeat:
		rec.action = Repeat
	case Release:
		if s.stickyKeys {
			rec.stuck = true
		}
		rec.action = Release
	}
	return action
}

// KeyState reports the last delivered action for a scancode. With sticky
// keys enabled, a latched release is consumed here: the first query after
// the release returns Press once, then reverts to Release.
func (s *Sink) KeyState(scancode uint32) Action {
	rec, ok := s.keys[scancode]
	if !ok {
		return Release
	}
	if rec.stuck {
		rec.stuck = false
		return Press
	}
	if rec.action == Repeat {
		return Press
	}
	return rec.action
}

// TrackButton records a mouse button transition for sticky-button
// latching. Buttons take no part in the key pipeline; only their polled
// state lives here.
func (s *Sink) TrackButton(button uint32, pressed bool) {
	rec, ok := s.buttons[button]
	if !ok {
		rec = &keyRecord{action: Release}
		s.buttons[button] = rec
	}
	if pressed {
		rec.action = Press
		return
	}
	if s.stickyButtons {
		rec.stuck = true
	}
	rec.action = Release
}

// ButtonState reports a button's state with the same one-shot sticky
// consumption as KeyState.
func (s *Sink) ButtonState(button uint32) Action {
	rec, ok := s.buttons[button]
	if !ok {
		return Release
	}
	if rec.stuck {
		rec.stuck = false
		return Press
	}
	return rec.action
}
