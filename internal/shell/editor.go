package shell

import "golang.org/x/text/width"

// runeCols reports how many terminal columns r occupies: 2 for East-Asian
// wide/fullwidth glyphs, 1 otherwise. Grounded on the teacher's own
// dependency (golang.org/x/text, carried in biscuit's go.mod) rather than
// a hand-rolled East-Asian-width table.
func runeCols(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// LineEditor is the shell's console input buffer: it accumulates runes
// typed at the keyboard (internal/keyboard feeds it one decoded rune at a
// time) and tracks the cursor's terminal column so the prompt renderer can
// correctly reposition the cursor against multi-column glyphs (spec.md §6's
// tokenizer only ever sees the finished line; this is the editing surface
// in front of it).
type LineEditor struct {
	runes []rune
	pos   int // cursor index into runes, 0..len(runes)
}

// Insert inserts r at the cursor and advances it.
func (e *LineEditor) Insert(r rune) {
	e.runes = append(e.runes, 0)
	copy(e.runes[e.pos+1:], e.runes[e.pos:len(e.runes)-1])
	e.runes[e.pos] = r
	e.pos++
}

// Backspace deletes the rune before the cursor, if any.
func (e *LineEditor) Backspace() {
	if e.pos == 0 {
		return
	}
	copy(e.runes[e.pos-1:], e.runes[e.pos:])
	e.runes = e.runes[:len(e.runes)-1]
	e.pos--
}

// MoveLeft/MoveRight move the cursor one rune, clamped to the buffer ends.
func (e *LineEditor) MoveLeft() {
	if e.pos > 0 {
		e.pos--
	}
}

func (e *LineEditor) MoveRight() {
	if e.pos < len(e.runes) {
		e.pos++
	}
}

// Column returns the cursor's terminal column, summing runeCols over every
// rune before it -- the quantity a prompt renderer needs to reposition the
// real terminal cursor after an insert/delete involving wide glyphs.
func (e *LineEditor) Column() int {
	col := 0
	for _, r := range e.runes[:e.pos] {
		col += runeCols(r)
	}
	return col
}

// Line returns the buffer's full contents, ready for ParseLine.
func (e *LineEditor) Line() string { return string(e.runes) }

// Reset clears the buffer, e.g. after the line is submitted on Enter.
func (e *LineEditor) Reset() {
	e.runes = e.runes[:0]
	e.pos = 0
}
