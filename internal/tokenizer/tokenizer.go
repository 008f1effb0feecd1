// Package tokenizer provides text tokenisation for the search engine. CJK
// scripts carry no whitespace word boundaries, so every Han, kana, or Hangul
// rune becomes its own single-rune token; the remaining text is lower-cased
// and split on word boundaries. No stemming and no stop-word removal.
package tokenizer

import (
	"strings"
	"unicode"
)

var cjkTables = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

// IsCJK reports whether r belongs to one of the indexed CJK scripts.
func IsCJK(r rune) bool {
	for _, table := range cjkTables {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

// CountCJK returns the number of CJK runes in text. The searcher uses it to
// decide between token matching and exact-phrase matching.
func CountCJK(text string) int {
	n := 0
	for _, r := range text {
		if IsCJK(r) {
			n++
		}
	}
	return n
}

// Tokenize breaks text into its token set. Duplicates are collapsed and
// order is not preserved. The function is pure.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, r := range text {
		if IsCJK(r) {
			tokens[string(r)] = struct{}{}
		}
	}
	// ASCII \w+ semantics: anything outside [a-z0-9_] separates words, so
	// CJK runes never leak into word tokens.
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r > unicode.MaxASCII ||
			(!unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_')
	})
	for _, word := range words {
		tokens[word] = struct{}{}
	}
	return tokens
}
