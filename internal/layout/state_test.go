package layout

import (
	"testing"

	"keypipe/internal/keysym"
)

func newUSState(t *testing.T) *State {
	t.Helper()
	return NewState(USKeymap(), nil)
}

func TestResolveBaseLevel(t *testing.T) {
	s := newUSState(t)

	eff, clean, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'a' || clean != 'a' {
		t.Errorf("expected 'a'/'a', got %q/%q", eff, clean)
	}
}

func TestResolveShiftLevel(t *testing.T) {
	s := newUSState(t)
	s.Update(1<<0, 0, 0, 0, 0, 0)

	eff, clean, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'A' {
		t.Errorf("effective must see shift, got %q", eff)
	}
	if clean != 'a' {
		t.Errorf("clean must ignore shift, got %q", clean)
	}
}

func TestCapsLockRaisesAlphaOnly(t *testing.T) {
	s := newUSState(t)
	s.Update(0, 0, 1<<1, 0, 0, 0)

	eff, _, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'A' {
		t.Errorf("caps lock must uppercase letters, got %q", eff)
	}

	eff, _, err = s.Resolve(10) // the 1/! key, caps-insensitive
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != '1' {
		t.Errorf("caps lock must not shift digits, got %q", eff)
	}
}

func TestShiftAndCapsCancelOnAlpha(t *testing.T) {
	s := newUSState(t)
	s.Update(1<<0, 0, 1<<1, 0, 0, 0)

	eff, _, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'a' {
		t.Errorf("shift and caps cancel on letters, got %q", eff)
	}
}

func TestLatchedAndLockedCountAsActive(t *testing.T) {
	s := newUSState(t)
	s.Update(0, 1<<0, 0, 0, 0, 0)

	eff, _, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'A' {
		t.Errorf("latched shift must raise the level, got %q", eff)
	}
}

func TestUnmappedScancodeResolvesToZero(t *testing.T) {
	s := newUSState(t)
	eff, clean, err := s.Resolve(250)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 0 || clean != 0 {
		t.Errorf("expected zero symbols, got %d/%d", eff, clean)
	}
}

func TestAmbiguousSymbolRejected(t *testing.T) {
	km := &Keymap{
		Name: "odd",
		Groups: []Group{{Keys: map[uint32]Entry{
			10: {Levels: [][]uint32{{'1', keysym.FromRune('½')}}},
		}}},
		ModifierNames: map[string]uint{"shift": 0},
	}
	if err := km.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	s := NewState(km, nil)

	if _, _, err := s.Resolve(10); err != ErrAmbiguousSymbol {
		t.Fatalf("expected ErrAmbiguousSymbol, got %v", err)
	}
}

func TestGroupSelection(t *testing.T) {
	km := &Keymap{
		Name: "dual",
		Groups: []Group{
			{Name: "first", Keys: map[uint32]Entry{38: {Levels: [][]uint32{{'a'}}}}},
			{Name: "second", Keys: map[uint32]Entry{38: {Levels: [][]uint32{{'f'}}}}},
		},
		ModifierNames: map[string]uint{"shift": 0},
	}
	if err := km.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	s := NewState(km, nil)

	s.Update(0, 0, 0, 1, 0, 0)
	eff, clean, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'f' || clean != 'f' {
		t.Errorf("group 1 must apply to both projections, got %q/%q", eff, clean)
	}

	// Group indices combine and wrap around the group count.
	s.Update(0, 0, 0, 1, 0, 1)
	eff, _, _ = s.Resolve(38)
	if eff != 'a' {
		t.Errorf("group must wrap modulo the group count, got %q", eff)
	}

	// Negative effective groups wrap from the other end.
	s.Update(0, 0, 0, -1, 0, 0)
	eff, _, _ = s.Resolve(38)
	if eff != 'f' {
		t.Errorf("negative group must wrap, got %q", eff)
	}
}

func TestLevelClampsToDefinedLevels(t *testing.T) {
	s := newUSState(t)
	// Shift plus altgr selects level 3, which single-level keys like
	// Escape do not define.
	s.Update(1<<0|1<<7, 0, 0, 0, 0, 0)

	eff, _, err := s.Resolve(9)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != keysym.Escape {
		t.Errorf("expected Escape, got %#x", eff)
	}
}

func TestModsReportsNamedModifiers(t *testing.T) {
	s := newUSState(t)
	s.Update(1<<0|1<<2, 0, 1<<1, 0, 0, 0)

	mods := s.Mods()
	if mods&ModShift == 0 || mods&ModControl == 0 || mods&ModCapsLock == 0 {
		t.Errorf("missing modifier bits: %b", mods)
	}
	if mods&ModAlt != 0 {
		t.Errorf("alt must not be reported: %b", mods)
	}
}

func TestUnknownModifiersTracked(t *testing.T) {
	s := newUSState(t)
	// Bit 5 names no modifier in the builtin map.
	s.Update(1<<5, 0, 0, 0, 0, 0)

	unknown := s.UnknownModifiers()
	if len(unknown) != 1 || unknown[0] != 5 {
		t.Errorf("expected [5], got %v", unknown)
	}

	// Duplicates are not recorded.
	s.Update(1<<5, 0, 0, 0, 0, 0)
	if got := s.UnknownModifiers(); len(got) != 1 {
		t.Errorf("expected 1 tracked bit, got %v", got)
	}
}

func TestSetKeymapResetsProjections(t *testing.T) {
	s := newUSState(t)
	s.Update(1<<0, 0, 0, 0, 0, 0)
	s.SetKeymap(USKeymap())

	eff, _, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'a' {
		t.Errorf("projections must reset with the keymap, got %q", eff)
	}
}

func TestResolveDefaultIgnoresActiveKeymap(t *testing.T) {
	remapped := &Keymap{
		Name: "swapped",
		Groups: []Group{{Keys: map[uint32]Entry{
			38: {Levels: [][]uint32{{'q'}}},
		}}},
		ModifierNames: map[string]uint{"shift": 0},
	}
	if err := remapped.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	s := NewState(remapped, nil)

	eff, _, err := s.Resolve(38)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if eff != 'q' {
		t.Errorf("active keymap must win, got %q", eff)
	}
	if def := s.ResolveDefault(38); def != 'a' {
		t.Errorf("default resolution must use the baseline layout, got %q", def)
	}
}
