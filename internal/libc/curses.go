package libc

import "unicode"

// Minimal curses/ctype stubs, kept deliberately thin per spec.md §1 (curses
// is an out-of-scope collaborator); these only exist so higher-level
// userland code has something coherent to call, mirroring
// original_source/libs/libc/src/curses.rs's ctype/ncurses shims.

// IsWAlnum reports whether r is alphanumeric, the wide-char ctype family
// original_source's iswalnum covers.
func IsWAlnum(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

// IsWBlank reports whether r is a space or tab.
func IsWBlank(r rune) bool { return r == ' ' || r == '\t' }

// ToWLower lowercases r, the wide-char analogue of towlower.
func ToWLower(r rune) rune { return unicode.ToLower(r) }

// Window is the thinnest possible stand-in for an ncurses WINDOW*: curses
// itself is out of scope, so kestrel models only what internal/shell's
// builtins (`clear`) need.
type Window struct {
	Rows, Cols int
}

// NewWindow returns a Window sized rows x cols, the stub for ncurses' newwin.
func NewWindow(rows, cols int) *Window { return &Window{Rows: rows, Cols: cols} }
