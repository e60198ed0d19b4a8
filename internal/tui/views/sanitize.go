package views

import (
	"strings"
	"unicode"
)

// termText drops codepoints tcell cannot lay out in a fixed cell width:
// skin tone modifiers, zero width joiners and variation selectors. A
// thumbs-up with a tone modifier becomes a plain two-cell thumbs-up.
func termText(s string) string {
	return strings.Map(func(r rune) rune {
		if zeroWidth(r) {
			return -1
		}
		return r
	}, s)
}

// oneLine is termText for table cells: control characters, newlines
// included, become spaces.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case zeroWidth(r):
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
}

func zeroWidth(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
