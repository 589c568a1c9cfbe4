package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeText returns text in NFC form with surrounding whitespace trimmed.
// Interior whitespace is preserved because segment boundaries depend on it.
func NormalizeText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// NormalizeWord returns a single-line NFC form of word with runs of whitespace
// collapsed to one space.
func NormalizeWord(word string) string {
	return strings.Join(strings.Fields(norm.NFC.String(word)), " ")
}

// FoldWord returns the case-folded key used to compare two words.
func FoldWord(word string) string {
	return folder.String(NormalizeWord(word))
}

// StripMarks removes combining marks, turning "Café" into "Cafe".
func StripMarks(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}
