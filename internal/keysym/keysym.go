// Package keysym provides X11 keysym values, conversions between keysyms,
// runes, and XCompose names, and the modifier state masks shared by the
// layout, compose, and IME transport code.
package keysym

// Special keysyms.
const (
	VoidSymbol uint32 = 0xffffff
	NoSymbol   uint32 = 0

	BackSpace uint32 = 0xff08
	Tab       uint32 = 0xff09
	Return    uint32 = 0xff0d
	Escape    uint32 = 0xff1b
	Delete    uint32 = 0xffff
	Space     uint32 = 0x0020

	ShiftL   uint32 = 0xffe1
	ShiftR   uint32 = 0xffe2
	ControlL uint32 = 0xffe3
	ControlR uint32 = 0xffe4
	CapsLock uint32 = 0xffe5
	AltL     uint32 = 0xffe9
	AltR     uint32 = 0xffea
	SuperL   uint32 = 0xffeb
	SuperR   uint32 = 0xffec
	NumLock  uint32 = 0xff7f

	MultiKey uint32 = 0xff20
)

// Dead-key keysyms recognized by compose tables.
const (
	DeadGrave      uint32 = 0xfe50
	DeadAcute      uint32 = 0xfe51
	DeadCircumflex uint32 = 0xfe52
	DeadTilde      uint32 = 0xfe53
	DeadMacron     uint32 = 0xfe54
	DeadBreve      uint32 = 0xfe55
	DeadAbovedot   uint32 = 0xfe56
	DeadDiaeresis  uint32 = 0xfe57
	DeadAbovering  uint32 = 0xfe58
	DeadCaron      uint32 = 0xfe5a
	DeadCedilla    uint32 = 0xfe5b
	DeadOgonek     uint32 = 0xfe5c
)

// X modifier state masks. The IBus wire protocol reuses these values and
// adds the release bit.
const (
	ShiftMask   uint32 = 1 << 0
	LockMask    uint32 = 1 << 1
	ControlMask uint32 = 1 << 2
	Mod1Mask    uint32 = 1 << 3 // Alt
	Mod2Mask    uint32 = 1 << 4 // NumLock on most layouts
	Mod3Mask    uint32 = 1 << 5
	Mod4Mask    uint32 = 1 << 6 // Super/Meta
	Mod5Mask    uint32 = 1 << 7 // AltGr / ISO_Level3_Shift
	ReleaseMask uint32 = 1 << 30
)

// unicodeOffset marks keysyms that carry a Unicode codepoint directly.
const unicodeOffset uint32 = 0x01000000

// ToRune converts a keysym to the rune it produces, or 0 for keysyms with
// no character interpretation (function keys, modifiers, dead keys).
func ToRune(sym uint32) rune {
	switch {
	case sym >= 0x20 && sym <= 0x7e:
		return rune(sym)
	case sym >= 0xa0 && sym <= 0xff:
		return rune(sym)
	case sym >= unicodeOffset && sym <= unicodeOffset+0x10ffff:
		return rune(sym - unicodeOffset)
	default:
		return 0
	}
}

// FromRune converts a rune to its keysym. Latin-1 runes map directly;
// everything else uses the Unicode keysym range.
func FromRune(r rune) uint32 {
	switch {
	case r >= 0x20 && r <= 0x7e:
		return uint32(r)
	case r >= 0xa0 && r <= 0xff:
		return uint32(r)
	case r > 0:
		return unicodeOffset + uint32(r)
	default:
		return NoSymbol
	}
}

// IsDead reports whether sym is a dead-key keysym.
func IsDead(sym uint32) bool {
	return sym >= 0xfe50 && sym <= 0xfe5f
}

// IsModifier reports whether sym is a modifier keysym (shift, control,
// alt, super, or a lock key).
func IsModifier(sym uint32) bool {
	return (sym >= ShiftL && sym <= SuperR) || sym == NumLock
}
