// Package keyboard implements the keyboard event translation, compose, and
// asynchronous input-method correlation pipeline. The platform layer feeds
// it raw key transitions and focus/geometry notifications; it delivers
// each physical press/release to the application callback exactly once,
// either resolved locally or reconciled with an out-of-process input
// method.
package keyboard

import "keypipe/internal/layout"

// Action is the transition type of a key event.
type Action int

const (
	// Release reports a key going up.
	Release Action = iota
	// Press reports a key going down.
	Press
	// Repeat reports an auto-repeated press.
	Repeat
)

func (a Action) String() string {
	switch a {
	case Release:
		return "release"
	case Press:
		return "press"
	case Repeat:
		return "repeat"
	}
	return "unknown"
}

// IMEState tags a resolved event with its input-method provenance.
type IMEState int

const (
	// IMENone marks an ordinary, locally resolved key event.
	IMENone IMEState = iota
	// IMECommit marks text committed by the input method.
	IMECommit
	// IMEPreeditChanged marks a provisional preedit update; an empty Text
	// retracts any visible preedit.
	IMEPreeditChanged
)

func (s IMEState) String() string {
	switch s {
	case IMENone:
		return "none"
	case IMECommit:
		return "commit"
	case IMEPreeditChanged:
		return "preedit"
	}
	return "unknown"
}

// Mods is the modifier bitfield reported to the application.
type Mods int

const (
	ModShift    Mods = Mods(layout.ModShift)
	ModControl  Mods = Mods(layout.ModControl)
	ModAlt      Mods = Mods(layout.ModAlt)
	ModSuper    Mods = Mods(layout.ModSuper)
	ModCapsLock Mods = Mods(layout.ModCapsLock)
	ModNumLock  Mods = Mods(layout.ModNumLock)
)

// PhysicalKeyEvent is one raw hardware key transition from the platform
// layer. It is immutable and not retained past its handling turn except
// when cloned into a pending IME request.
type PhysicalKeyEvent struct {
	// Scancode is the hardware keycode, independent of layout.
	Scancode uint32

	// Action is Press, Release, or Repeat.
	Action Action

	// RawModifierMask is the platform modifier state, forwarded verbatim
	// to the input method.
	RawModifierMask uint32

	// Timestamp is the platform event time in milliseconds.
	Timestamp uint32
}

// ResolvedKeyEvent is the only type crossing into the application
// callback.
type ResolvedKeyEvent struct {
	// Key is the logical key identity, layout-independent where possible.
	Key Key

	// Scancode is the originating hardware keycode.
	Scancode uint32

	// Action is Press, Release, or Repeat.
	Action Action

	// Mods is the modifier bitfield after lock-key stripping.
	Mods Mods

	// Text is the UTF-8 text produced, if any.
	Text string

	// IMEState tags commit and preedit deliveries; IMENone otherwise.
	IMEState IMEState
}

// Callback receives resolved key events. window identifies the focused
// window the platform layer last reported.
type Callback func(window uint64, ev ResolvedKeyEvent)
