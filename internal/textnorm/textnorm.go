// Package textnorm folds free text into a canonical form for keyword
// matching: Unicode NFKC, case folding, collapsed whitespace.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s in NFKC form, case folded, with runs of whitespace
// collapsed to a single space.
func Fold(s string) string {
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Words splits folded text into lowercase word tokens, dropping
// punctuation.
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
}

// ContainsTerm reports whether folded text contains term as a whole
// word or phrase. Both sides are folded before comparison.
func ContainsTerm(text, term string) bool {
	t := Fold(term)
	if t == "" {
		return false
	}
	haystack := " " + strings.Join(Words(text), " ") + " "
	needle := " " + strings.Join(Words(t), " ") + " "
	return strings.Contains(haystack, needle)
}
