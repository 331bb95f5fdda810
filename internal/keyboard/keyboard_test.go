package keyboard

import "testing"

func TestFeedLowercaseLetter(t *testing.T) {
	var d Decoder
	ev, ok := d.Feed(0x1E) // make code for 'a'
	if !ok || ev.Rune != 'a' || !ev.Pressed {
		t.Fatalf("Feed(0x1E) = %+v, ok=%v", ev, ok)
	}
	ev, ok = d.Feed(0x1E | breakBit)
	if !ok || ev.Pressed {
		t.Fatalf("break code should report release, got %+v", ev)
	}
}

func TestFeedShiftUppercases(t *testing.T) {
	var d Decoder
	if ev, ok := d.Feed(scLeftShift); !ok || !ev.Mods.Shift {
		t.Fatalf("shift make code should set Mods.Shift, got %+v ok=%v", ev, ok)
	}
	ev, _ := d.Feed(0x1E)
	if ev.Rune != 'A' {
		t.Fatalf("shifted 'a' scancode = %q, want 'A'", ev.Rune)
	}
	d.Feed(scLeftShift | breakBit)
	if d.Modifiers().Shift {
		t.Fatalf("shift release did not clear Mods.Shift")
	}
}

func TestFeedE0SuperSetsModifier(t *testing.T) {
	var d Decoder
	if _, ok := d.Feed(e0Prefix); ok {
		t.Fatalf("bare E0 prefix should not produce an event")
	}
	ev, ok := d.Feed(scE0Super)
	if !ok || !ev.Mods.Super {
		t.Fatalf("E0 super make code = %+v ok=%v, want Mods.Super set", ev, ok)
	}
	ev, ok = d.Feed(e0Prefix)
	_ = ev
	if ok {
		t.Fatalf("E0 prefix before release byte should not itself emit")
	}
	ev, ok = d.Feed(scE0Super | breakBit)
	if !ok || ev.Mods.Super {
		t.Fatalf("E0 super break code should clear Mods.Super, got %+v", ev)
	}
}

func TestUnmappedScancodeYieldsZeroRune(t *testing.T) {
	var d Decoder
	ev, ok := d.Feed(0x01) // Escape: no table entry
	if !ok || ev.Rune != 0 {
		t.Fatalf("Feed(Escape) = %+v, want zero rune", ev)
	}
}
