package layout

// Modifiers is the public modifier bitfield reported with resolved key
// events. Bit values match the conventional GLFW-style mask.
type Modifiers uint32

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModSuper
	ModCapsLock
	ModNumLock
)

// maxUnknownModifiers bounds the array of modifier bit indices that do not
// correspond to any named modifier.
const maxUnknownModifiers = 16

// projection is one view of the keyboard state: modifier masks plus the
// active group index.
type projection struct {
	depressed, latched, locked uint32
	group                      int
}

func (p projection) combined() uint32 {
	return p.depressed | p.latched | p.locked
}

// State tracks the active keymap and its effective and clean projections,
// plus a default hardware-baseline keymap used as a resolution fallback.
// All three projections share the group index; only the modifier masks
// differ between effective and clean.
type State struct {
	keymap   *Keymap
	fallback *Keymap

	effective projection
	clean     projection

	unknown  [maxUnknownModifiers]uint
	nUnknown int
}

// NewState creates a layout state over the given keymap. fallback is the
// default hardware layout; if nil, the builtin US keymap is used.
func NewState(km *Keymap, fallback *Keymap) *State {
	if fallback == nil {
		fallback = USKeymap()
	}
	return &State{keymap: km, fallback: fallback}
}

// SetKeymap replaces the active keymap whole, resetting both projections.
func (s *State) SetKeymap(km *Keymap) {
	s.keymap = km
	s.effective = projection{}
	s.clean = projection{}
	s.nUnknown = 0
}

// Update recomputes the modifier bitfields for the effective projection and
// propagates only the group indices into the clean projection, so the clean
// state follows physical layout switches but not transient level modifiers.
func (s *State) Update(depressed, latched, locked uint32, group, latchedGroup, lockedGroup int) {
	effGroup := group + latchedGroup + lockedGroup
	if n := len(s.keymap.Groups); n > 0 {
		effGroup = ((effGroup % n) + n) % n
	}
	s.effective = projection{depressed: depressed, latched: latched, locked: locked, group: effGroup}
	s.clean = projection{group: effGroup}
	s.trackUnknown(depressed | latched | locked)
}

// trackUnknown records modifier bit indices not matching any named
// modifier, bounded by maxUnknownModifiers.
func (s *State) trackUnknown(mask uint32) {
	named := s.keymap.named
	for bit := uint(0); bit < 32; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		idx := int(bit)
		if idx == named.shift || idx == named.caps || idx == named.ctrl ||
			idx == named.alt || idx == named.num || idx == named.super ||
			idx == named.altgr {
			continue
		}
		seen := false
		for i := 0; i < s.nUnknown; i++ {
			if s.unknown[i] == bit {
				seen = true
				break
			}
		}
		if !seen && s.nUnknown < maxUnknownModifiers {
			s.unknown[s.nUnknown] = bit
			s.nUnknown++
		}
	}
}

// UnknownModifiers returns the modifier bit indices observed active that do
// not correspond to a named modifier.
func (s *State) UnknownModifiers() []uint {
	return append([]uint(nil), s.unknown[:s.nUnknown]...)
}

func (s *State) active(p projection, bitIndex int) bool {
	if bitIndex < 0 {
		return false
	}
	return p.combined()&(1<<uint(bitIndex)) != 0
}

// Mods returns the public modifier bitfield for the effective projection.
func (s *State) Mods() Modifiers {
	var m Modifiers
	n := s.keymap.named
	p := s.effective
	if s.active(p, n.shift) {
		m |= ModShift
	}
	if s.active(p, n.ctrl) {
		m |= ModControl
	}
	if s.active(p, n.alt) {
		m |= ModAlt
	}
	if s.active(p, n.super) {
		m |= ModSuper
	}
	if s.active(p, n.caps) {
		m |= ModCapsLock
	}
	if s.active(p, n.num) {
		m |= ModNumLock
	}
	return m
}

// level computes the shift level for an entry under a projection.
func (s *State) level(p projection, e Entry) int {
	n := s.keymap.named
	shift := s.active(p, n.shift)
	if e.Caps && s.active(p, n.caps) {
		shift = !shift
	}
	lvl := 0
	if shift {
		lvl = 1
	}
	if s.active(p, n.altgr) {
		lvl += 2
	}
	// Clamp to the levels the key actually defines.
	for lvl >= len(e.Levels) {
		if lvl >= 2 {
			lvl -= 2
		} else {
			lvl = 0
		}
		if lvl == 0 {
			break
		}
	}
	if lvl >= len(e.Levels) {
		lvl = 0
	}
	return lvl
}

func resolveIn(km *Keymap, s *State, p projection, scancode uint32) (uint32, error) {
	e, ok := km.lookup(p.group, scancode)
	if !ok {
		return 0, nil
	}
	syms := e.Levels[s.level(p, e)]
	switch len(syms) {
	case 1:
		return syms[0], nil
	case 0:
		return 0, nil
	default:
		return 0, ErrAmbiguousSymbol
	}
}

// Resolve maps a scancode to its keysym under the effective and clean
// projections. A zero keysym means the key produces nothing in that
// projection. ErrAmbiguousSymbol is returned when the key carries more
// than one simultaneous keysym; such events are dropped by the caller.
func (s *State) Resolve(scancode uint32) (effective, clean uint32, err error) {
	effective, err = resolveIn(s.keymap, s, s.effective, scancode)
	if err != nil {
		return 0, 0, err
	}
	clean, err = resolveIn(s.keymap, s, s.clean, scancode)
	if err != nil {
		return 0, 0, err
	}
	return effective, clean, nil
}

// ResolveDefault re-resolves a scancode against the default hardware
// baseline layout, ignoring user remapping. Used to recover a best-effort
// logical key identity for keybindings when the clean symbol maps to no
// logical keycode and no text was produced.
func (s *State) ResolveDefault(scancode uint32) uint32 {
	sym, err := resolveIn(s.fallback, s, projection{}, scancode)
	if err != nil {
		return 0
	}
	return sym
}
