package keysym

import (
	"fmt"
	"strconv"
	"strings"
)

// names maps the keysym names that appear in XCompose tables and keymap
// documents to their values. ASCII letters and digits are handled by
// FromName directly and are not listed here.
var names = map[string]uint32{
	"space":        Space,
	"exclam":       0x21,
	"quotedbl":     0x22,
	"numbersign":   0x23,
	"dollar":       0x24,
	"percent":      0x25,
	"ampersand":    0x26,
	"apostrophe":   0x27,
	"parenleft":    0x28,
	"parenright":   0x29,
	"asterisk":     0x2a,
	"plus":         0x2b,
	"comma":        0x2c,
	"minus":        0x2d,
	"period":       0x2e,
	"slash":        0x2f,
	"colon":        0x3a,
	"semicolon":    0x3b,
	"less":         0x3c,
	"equal":        0x3d,
	"greater":      0x3e,
	"question":     0x3f,
	"at":           0x40,
	"bracketleft":  0x5b,
	"backslash":    0x5c,
	"bracketright": 0x5d,
	"asciicircum":  0x5e,
	"underscore":   0x5f,
	"grave":        0x60,
	"braceleft":    0x7b,
	"bar":          0x7c,
	"braceright":   0x7d,
	"asciitilde":   0x7e,

	"nobreakspace": 0xa0,
	"diaeresis":    0xa8,
	"acute":        0xb4,
	"cedilla":      0xb8,

	"BackSpace": BackSpace,
	"Tab":       Tab,
	"Return":    Return,
	"Escape":    Escape,
	"Delete":    Delete,

	"Shift_L":   ShiftL,
	"Shift_R":   ShiftR,
	"Control_L": ControlL,
	"Control_R": ControlR,
	"Caps_Lock": CapsLock,
	"Num_Lock":  NumLock,
	"Alt_L":     AltL,
	"Alt_R":     AltR,
	"Super_L":   SuperL,
	"Super_R":   SuperR,
	"Multi_key": MultiKey,

	"dead_grave":      DeadGrave,
	"dead_acute":      DeadAcute,
	"dead_circumflex": DeadCircumflex,
	"dead_tilde":      DeadTilde,
	"dead_macron":     DeadMacron,
	"dead_breve":      DeadBreve,
	"dead_abovedot":   DeadAbovedot,
	"dead_diaeresis":  DeadDiaeresis,
	"dead_abovering":  DeadAbovering,
	"dead_caron":      DeadCaron,
	"dead_cedilla":    DeadCedilla,
	"dead_ogonek":     DeadOgonek,

	"VoidSymbol": VoidSymbol,
}

// Common accented Latin-1 keysym names appearing as compose results.
var latin1Names = map[string]uint32{
	"agrave": 0xe0, "aacute": 0xe1, "acircumflex": 0xe2, "atilde": 0xe3,
	"adiaeresis": 0xe4, "aring": 0xe5, "ae": 0xe6, "ccedilla": 0xe7,
	"egrave": 0xe8, "eacute": 0xe9, "ecircumflex": 0xea, "ediaeresis": 0xeb,
	"igrave": 0xec, "iacute": 0xed, "icircumflex": 0xee, "idiaeresis": 0xef,
	"ntilde": 0xf1, "ograve": 0xf2, "oacute": 0xf3, "ocircumflex": 0xf4,
	"otilde": 0xf5, "odiaeresis": 0xf6, "ugrave": 0xf9, "uacute": 0xfa,
	"ucircumflex": 0xfb, "udiaeresis": 0xfc, "yacute": 0xfd,
	"Agrave": 0xc0, "Aacute": 0xc1, "Acircumflex": 0xc2, "Atilde": 0xc3,
	"Adiaeresis": 0xc4, "Aring": 0xc5, "AE": 0xc6, "Ccedilla": 0xc7,
	"Egrave": 0xc8, "Eacute": 0xc9, "Ecircumflex": 0xca, "Ediaeresis": 0xcb,
	"Igrave": 0xcc, "Iacute": 0xcd, "Icircumflex": 0xce, "Idiaeresis": 0xcf,
	"Ntilde": 0xd1, "Ograve": 0xd2, "Oacute": 0xd3, "Ocircumflex": 0xd4,
	"Otilde": 0xd5, "Odiaeresis": 0xd6, "Ugrave": 0xd9, "Uacute": 0xda,
	"Ucircumflex": 0xdb, "Udiaeresis": 0xdc, "Yacute": 0xdd,
	"ssharp": 0xdf, "degree": 0xb0, "currency": 0xa4, "sterling": 0xa3,
	"cent": 0xa2, "yen": 0xa5, "section": 0xa7, "copyright": 0xa9,
	"registered": 0xae, "plusminus": 0xb1, "mu": 0xb5, "paragraph": 0xb6,
	"masculine": 0xba, "ordfeminine": 0xaa, "guillemotleft": 0xab,
	"guillemotright": 0xbb, "onequarter": 0xbc, "onehalf": 0xbd,
	"threequarters": 0xbe, "questiondown": 0xbf, "exclamdown": 0xa1,
	"multiply": 0xd7, "division": 0xf7, "notsign": 0xac, "hyphen": 0xad,
	"macron": 0xaf, "onesuperior": 0xb9, "twosuperior": 0xb2,
	"threesuperior": 0xb3, "periodcentered": 0xb7, "eth": 0xf0,
	"thorn": 0xfe, "ETH": 0xd0, "THORN": 0xde, "ydiaeresis": 0xff,
	"oslash": 0xf8, "Ooblique": 0xd8,
}

// FromName resolves a keysym name to its value. Single-character names map
// through FromRune; "U+XXXX" and "UXXXX" forms carry a codepoint directly.
// Returns NoSymbol for unknown names.
func FromName(name string) uint32 {
	if sym, ok := names[name]; ok {
		return sym
	}
	if sym, ok := latin1Names[name]; ok {
		return sym
	}
	runes := []rune(name)
	if len(runes) == 1 {
		return FromRune(runes[0])
	}
	if len(name) >= 5 && (name[0] == 'U' || strings.HasPrefix(name, "U+")) {
		hex := strings.TrimPrefix(strings.TrimPrefix(name, "U+"), "U")
		if cp, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return FromRune(rune(cp))
		}
	}
	return NoSymbol
}

// Name returns a printable name for a keysym, for logs and errors.
func Name(sym uint32) string {
	for n, s := range names {
		if s == sym {
			return n
		}
	}
	if r := ToRune(sym); r != 0 {
		return string(r)
	}
	return fmt.Sprintf("0x%x", sym)
}
