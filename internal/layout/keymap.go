// Package layout resolves hardware scancodes to keysyms under the active
// keyboard layout. It keeps one shared keymap with three projections of
// modifier state: effective (all active modifiers and groups), clean
// (group index only, ignoring transient level modifiers), and default
// (the hardware baseline layout used as a keybinding fallback).
package layout

import (
	"errors"
	"fmt"

	"keypipe/internal/keysym"
)

// ErrAmbiguousSymbol is returned when a scancode resolves to more than one
// simultaneous keysym. Such keys are unsupported and the event is dropped
// by the caller.
var ErrAmbiguousSymbol = errors.New("layout: scancode resolves to multiple symbols")

// Entry describes one physical key in a group: the keysyms it produces at
// each shift level, and whether caps-lock acts as shift for it.
type Entry struct {
	// Levels holds, per shift level, the keysyms produced. A level with
	// more than one keysym makes the key ambiguous.
	Levels [][]uint32

	// Caps marks alphabetic keys whose level is raised by caps-lock.
	Caps bool
}

// Group is one layout group (one selectable keyboard layout).
type Group struct {
	Name string
	Keys map[uint32]Entry
}

// Keymap is a compiled keyboard layout: groups of key entries plus the
// named-modifier table resolved to bit indices.
type Keymap struct {
	Name   string
	Groups []Group

	// ModifierNames maps modifier names from the keymap source to bit
	// indices in the depressed/latched/locked masks.
	ModifierNames map[string]uint

	named namedModifiers
}

// namedModifiers holds the bit index of each modifier the pipeline cares
// about, or -1 when the keymap does not define it. Resolved once when the
// keymap compiles.
type namedModifiers struct {
	shift, caps, ctrl, alt, num, super, altgr int
}

func resolveNamed(names map[string]uint) namedModifiers {
	n := namedModifiers{shift: -1, caps: -1, ctrl: -1, alt: -1, num: -1, super: -1, altgr: -1}
	pick := func(dst *int, aliases ...string) {
		for _, a := range aliases {
			if idx, ok := names[a]; ok {
				*dst = int(idx)
				return
			}
		}
	}
	pick(&n.shift, "shift")
	pick(&n.caps, "caps", "lock")
	pick(&n.ctrl, "control", "ctrl")
	pick(&n.alt, "alt", "mod1")
	pick(&n.num, "num", "mod2")
	pick(&n.super, "super", "mod4")
	pick(&n.altgr, "altgr", "mod5")
	return n
}

// Compile validates the keymap and resolves named modifier indices.
func (k *Keymap) Compile() error {
	if len(k.Groups) == 0 {
		return errors.New("layout: keymap has no groups")
	}
	for gi, g := range k.Groups {
		if len(g.Keys) == 0 {
			return fmt.Errorf("layout: group %d (%s) has no keys", gi, g.Name)
		}
		for code, e := range g.Keys {
			if len(e.Levels) == 0 {
				return fmt.Errorf("layout: group %d scancode %d has no levels", gi, code)
			}
		}
	}
	for name, idx := range k.ModifierNames {
		if idx > 31 {
			return fmt.Errorf("layout: modifier %q index %d out of range", name, idx)
		}
	}
	k.named = resolveNamed(k.ModifierNames)
	return nil
}

// lookup returns the entry for a scancode in the given group, clamping the
// group index to the available range.
func (k *Keymap) lookup(group int, scancode uint32) (Entry, bool) {
	if group < 0 || group >= len(k.Groups) {
		group = 0
	}
	e, ok := k.Groups[group].Keys[scancode]
	return e, ok
}

func alpha(lower, upper rune) Entry {
	return Entry{
		Levels: [][]uint32{{keysym.FromRune(lower)}, {keysym.FromRune(upper)}},
		Caps:   true,
	}
}

func pair(base, shifted uint32) Entry {
	return Entry{Levels: [][]uint32{{base}, {shifted}}}
}

func single(sym uint32) Entry {
	return Entry{Levels: [][]uint32{{sym}}}
}

// USKeymap builds the builtin US QWERTY keymap. Scancodes are X keycodes
// (evdev scancode + 8). It serves as the default hardware baseline layout
// and as the fallback when no keymap document is configured.
func USKeymap() *Keymap {
	keys := map[uint32]Entry{
		9:  single(keysym.Escape),
		10: pair('1', '!'), 11: pair('2', '@'), 12: pair('3', '#'),
		13: pair('4', '$'), 14: pair('5', '%'), 15: pair('6', '^'),
		16: pair('7', '&'), 17: pair('8', '*'), 18: pair('9', '('),
		19: pair('0', ')'),
		20: pair('-', '_'), 21: pair('=', '+'),
		22: single(keysym.BackSpace),
		23: single(keysym.Tab),
		24: alpha('q', 'Q'), 25: alpha('w', 'W'), 26: alpha('e', 'E'),
		27: alpha('r', 'R'), 28: alpha('t', 'T'), 29: alpha('y', 'Y'),
		30: alpha('u', 'U'), 31: alpha('i', 'I'), 32: alpha('o', 'O'),
		33: alpha('p', 'P'),
		34: pair('[', '{'), 35: pair(']', '}'),
		36: single(keysym.Return),
		37: single(keysym.ControlL),
		38: alpha('a', 'A'), 39: alpha('s', 'S'), 40: alpha('d', 'D'),
		41: alpha('f', 'F'), 42: alpha('g', 'G'), 43: alpha('h', 'H'),
		44: alpha('j', 'J'), 45: alpha('k', 'K'), 46: alpha('l', 'L'),
		47: pair(';', ':'), 48: pair('\'', '"'), 49: pair('`', '~'),
		50: single(keysym.ShiftL),
		51: pair('\\', '|'),
		52: alpha('z', 'Z'), 53: alpha('x', 'X'), 54: alpha('c', 'C'),
		55: alpha('v', 'V'), 56: alpha('b', 'B'), 57: alpha('n', 'N'),
		58: alpha('m', 'M'),
		59: pair(',', '<'), 60: pair('.', '>'), 61: pair('/', '?'),
		62:  single(keysym.ShiftR),
		64:  single(keysym.AltL),
		65:  single(keysym.Space),
		66:  single(keysym.CapsLock),
		77:  single(keysym.NumLock),
		105: single(keysym.ControlR),
		108: single(keysym.AltR),
		133: single(keysym.SuperL),
	}
	km := &Keymap{
		Name:   "us",
		Groups: []Group{{Name: "English (US)", Keys: keys}},
		ModifierNames: map[string]uint{
			"shift": 0, "caps": 1, "control": 2, "alt": 3,
			"num": 4, "super": 6, "altgr": 7,
		},
	}
	if err := km.Compile(); err != nil {
		panic(err)
	}
	return km
}
