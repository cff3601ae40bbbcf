package extract

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// spaceVariants are the non-breaking and typographic space code points that
// show up inside numeric strings in poorly encoded filings: no-break space,
// en/em/figure/thin spaces, narrow no-break space, ideographic space.
var spaceVariants = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u00a0', '\u2002', '\u2003', '\u2007', '\u2009', '\u202f', '\u3000':
		return true
	}
	return false
})

// zeroWidth matches zero-width and BOM code points that break tag and
// number tokenization entirely.
var zeroWidth = runes.Predicate(func(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\ufeff':
		return true
	}
	return false
})

// RepairBytes normalizes known encoding artifacts before re-parsing:
// space variants collapse to ASCII space, zero-width runes are removed,
// full-width digits and punctuation fold to their narrow forms, and any
// remaining irregular unicode whitespace becomes plain space.
func RepairBytes(b []byte) []byte {
	t := transform.Chain(
		runes.Remove(zeroWidth),
		runes.Map(func(r rune) rune {
			if spaceVariants.Contains(r) {
				return ' '
			}
			if unicode.IsSpace(r) && r != ' ' && r != '\n' && r != '\t' && r != '\r' {
				return ' '
			}
			return r
		}),
		width.Narrow,
	)
	out, _, err := transform.Bytes(t, b)
	if err != nil {
		return b
	}
	return out
}
