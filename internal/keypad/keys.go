package keypad

import (
	"unicode"

	"github.com/gdamore/tcell/v2"
)

// KeyCode translates a terminal key into the browser keyCode the walker understands.
// Arrows map to 37-40, letters to their upper-case ASCII code and space to 32.
func KeyCode(key tcell.Key, r rune) (int, bool) {
	switch key {
	case tcell.KeyLeft:
		return 37, true
	case tcell.KeyUp:
		return 38, true
	case tcell.KeyRight:
		return 39, true
	case tcell.KeyDown:
		return 40, true
	case tcell.KeyRune:
		if r == ' ' {
			return 32, true
		}
		upper := unicode.ToUpper(r)
		if upper >= 'A' && upper <= 'Z' {
			return int(upper), true
		}
	}

	return 0, false
}

// Quit reports whether key ends the keypad session.
func Quit(key tcell.Key) bool {
	return key == tcell.KeyEscape || key == tcell.KeyCtrlC
}
