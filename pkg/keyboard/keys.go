package keyboard

import "keypipe/internal/keysym"

// Key is a logical, layout-independent key identity. Printable keys take
// their US-layout ASCII value; function and modifier keys use the 256+
// range. The values match the conventional GLFW keycode table so
// applications can reuse existing keybinding constants.
type Key int

// KeyUnknown marks keys with no logical identity in the current layouts.
const KeyUnknown Key = -1

// Printable keys.
const (
	KeySpace        Key = 32
	KeyApostrophe   Key = 39
	KeyComma        Key = 44
	KeyMinus        Key = 45
	KeyPeriod       Key = 46
	KeySlash        Key = 47
	Key0            Key = 48
	Key1            Key = 49
	Key2            Key = 50
	Key3            Key = 51
	Key4            Key = 52
	Key5            Key = 53
	Key6            Key = 54
	Key7            Key = 55
	Key8            Key = 56
	Key9            Key = 57
	KeySemicolon    Key = 59
	KeyEqual        Key = 61
	KeyA            Key = 65
	KeyB            Key = 66
	KeyC            Key = 67
	KeyD            Key = 68
	KeyE            Key = 69
	KeyF            Key = 70
	KeyG            Key = 71
	KeyH            Key = 72
	KeyI            Key = 73
	KeyJ            Key = 74
	KeyK            Key = 75
	KeyL            Key = 76
	KeyM            Key = 77
	KeyN            Key = 78
	KeyO            Key = 79
	KeyP            Key = 80
	KeyQ            Key = 81
	KeyR            Key = 82
	KeyS            Key = 83
	KeyT            Key = 84
	KeyU            Key = 85
	KeyV            Key = 86
	KeyW            Key = 87
	KeyX            Key = 88
	KeyY            Key = 89
	KeyZ            Key = 90
	KeyLeftBracket  Key = 91
	KeyBackslash    Key = 92
	KeyRightBracket Key = 93
	KeyGraveAccent  Key = 96
)

// Function and modifier keys.
const (
	KeyEscape       Key = 256
	KeyEnter        Key = 257
	KeyTab          Key = 258
	KeyBackspace    Key = 259
	KeyInsert       Key = 260
	KeyDelete       Key = 261
	KeyCapsLock     Key = 280
	KeyNumLock      Key = 282
	KeyLeftShift    Key = 340
	KeyLeftControl  Key = 341
	KeyLeftAlt      Key = 342
	KeyLeftSuper    Key = 343
	KeyRightShift   Key = 344
	KeyRightControl Key = 345
	KeyRightAlt     Key = 346
	KeyRightSuper   Key = 347
)

// controlKeys maps non-printable keysyms to logical keys.
var controlKeys = map[uint32]Key{
	keysym.Escape:    KeyEscape,
	keysym.Return:    KeyEnter,
	keysym.Tab:       KeyTab,
	keysym.BackSpace: KeyBackspace,
	keysym.Delete:    KeyDelete,
	keysym.CapsLock:  KeyCapsLock,
	keysym.NumLock:   KeyNumLock,
	keysym.ShiftL:    KeyLeftShift,
	keysym.ShiftR:    KeyRightShift,
	keysym.ControlL:  KeyLeftControl,
	keysym.ControlR:  KeyRightControl,
	keysym.AltL:      KeyLeftAlt,
	keysym.AltR:      KeyRightAlt,
	keysym.SuperL:    KeyLeftSuper,
	keysym.SuperR:    KeyRightSuper,
}

// keyFromKeysym translates a keysym to its logical key identity, or
// KeyUnknown. Letters fold to their uppercase key. Callers pass the clean
// symbol, so shifted variants never arrive here.
func keyFromKeysym(sym uint32) Key {
	if k, ok := controlKeys[sym]; ok {
		return k
	}
	r := keysym.ToRune(sym)
	switch {
	case r >= 'a' && r <= 'z':
		return Key(r - 'a' + 'A')
	case r >= 'A' && r <= 'Z':
		return Key(r)
	case r >= '0' && r <= '9':
		return Key(r)
	}
	switch r {
	case ' ':
		return KeySpace
	case '\'':
		return KeyApostrophe
	case ',':
		return KeyComma
	case '-':
		return KeyMinus
	case '.':
		return KeyPeriod
	case '/':
		return KeySlash
	case ';':
		return KeySemicolon
	case '=':
		return KeyEqual
	case '[':
		return KeyLeftBracket
	case '\\':
		return KeyBackslash
	case ']':
		return KeyRightBracket
	case '`':
		return KeyGraveAccent
	}
	return KeyUnknown
}
