// Package keyboard translates PS/2 scancode-set-1 bytes into ASCII runes and
// modifier state, the thin collaborator spec.md §1 leaves out of scope and
// §9's SUPPLEMENTED FEATURES calls back in: original_source's
// kernel/src/drivers/periferics/keyboard.rs fixes a shift/ctrl/alt/E0
// state machine over a 128-entry scancode table. kestrel keeps the state
// machine but replaces the AZERTY-flavored table with a plain US QWERTY
// map, since localization is explicitly a collaborator detail (spec.md §1).
package keyboard

// breakBit marks a key-release scancode (set 1).
const breakBit = 0x80

// e0Prefix precedes an extended scancode (arrows, right-alt, etc).
const e0Prefix = 0xE0

// Modifiers tracks the live modifier keys, including the "super" key the
// compositor's drag/resize gesture gates on (spec.md §4.9).
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
	Super bool
}

// scancode set 1, make codes 0x00-0x39, unshifted/shifted US QWERTY. Entries
// left '\x00' produce no rune (function keys, modifiers, unmapped).
var lower = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5', 0x07: '6',
	0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0', 0x0C: '-', 0x0D: '=',
	0x0E: '\b', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y',
	0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p', 0x1A: '[', 0x1B: ']',
	0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h',
	0x24: 'j', 0x25: 'k', 0x26: 'l', 0x27: ';', 0x28: '\'', 0x29: '`',
	0x2B: '\\',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b', 0x31: 'n',
	0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
	0x39: ' ',
}

var upper = [128]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%', 0x07: '^',
	0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')', 0x0C: '_', 0x0D: '+',
	0x0E: '\b', 0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T', 0x15: 'Y',
	0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P', 0x1A: '{', 0x1B: '}',
	0x1C: '\n',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G', 0x23: 'H',
	0x24: 'J', 0x25: 'K', 0x26: 'L', 0x27: ':', 0x28: '"', 0x29: '~',
	0x2B: '|',
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B', 0x31: 'N',
	0x32: 'M', 0x33: '<', 0x34: '>', 0x35: '?',
	0x39: ' ',
}

// make codes that are modifiers rather than printable keys.
const (
	scLeftShift  = 0x2A
	scRightShift = 0x36
	scLeftCtrl   = 0x1D
	scLeftAlt    = 0x38
)

// extended (E0-prefixed) make codes kestrel recognizes: the left-hand super
// key, used by the compositor as the drag/resize modifier.
const scE0Super = 0x5B

// Event is one decoded keystroke: Rune is zero for keys with no printable
// mapping (arrows, bare modifiers).
type Event struct {
	Rune    rune
	Pressed bool
	Mods    Modifiers
}

// Decoder holds the running shift/ctrl/alt/super/E0 state across scancode
// bytes, mirroring original_source's file-scope SHIFT_ACTIVE/E0_ACTIVE
// statics as ordinary struct fields instead of global mutable statics.
type Decoder struct {
	mods Modifiers
	e0   bool
}

// Feed decodes one scancode byte, updating modifier state and returning the
// resulting Event. The E0 prefix byte itself yields no event; it only flags
// the next byte as extended.
func (d *Decoder) Feed(b byte) (Event, bool) {
	if b == e0Prefix {
		d.e0 = true
		return Event{}, false
	}
	extended := d.e0
	d.e0 = false

	pressed := b&breakBit == 0
	code := b &^ breakBit

	if extended && code == scE0Super {
		d.mods.Super = pressed
		return Event{Pressed: pressed, Mods: d.mods}, true
	}

	switch code {
	case scLeftShift, scRightShift:
		d.mods.Shift = pressed
		return Event{Pressed: pressed, Mods: d.mods}, true
	case scLeftCtrl:
		d.mods.Ctrl = pressed
		return Event{Pressed: pressed, Mods: d.mods}, true
	case scLeftAlt:
		d.mods.Alt = pressed
		return Event{Pressed: pressed, Mods: d.mods}, true
	}

	table := &lower
	if d.mods.Shift {
		table = &upper
	}
	var r rune
	if int(code) < len(table) && table[code] != 0 {
		r = rune(table[code])
	}
	return Event{Rune: r, Pressed: pressed, Mods: d.mods}, true
}

// Modifiers returns the decoder's current modifier state, for the
// compositor's super-key drag/resize gate (spec.md §4.9).
func (d *Decoder) Modifiers() Modifiers { return d.mods }
