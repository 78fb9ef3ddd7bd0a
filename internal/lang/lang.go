// Package lang holds the text helpers shared by every stage of the reply
// pipeline: normalisation and language detection.
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	English = "english"
	Arabic  = "arabic"
)

// asciiSymbols are the members of the ASCII punctuation table that Unicode
// classifies as symbols rather than punctuation.
const asciiSymbols = "$+<=>^`|~"

// contractions expands English contractions so that "what's" and "what is"
// share a key. Irregular forms come before the generic suffixes.
var contractions = strings.NewReplacer(
	"won't", "will not", "won’t", "will not",
	"can't", "can not", "can’t", "can not",
	"n't", " not", "n’t", " not",
	"'re", " are", "’re", " are",
	"'s", " is", "’s", " is",
	"'m", " am", "’m", " am",
	"'ve", " have", "’ve", " have",
	"'ll", " will", "’ll", " will",
	"'d", " would", "’d", " would",
)

// Normalize lowercases text, expands English contractions and strips
// punctuation. The result is the lookup key for learned corrections and the
// input to intent matching.
func Normalize(text string) string {
	lowered := contractions.Replace(cases.Lower(language.Und).String(text))
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || strings.ContainsRune(asciiSymbols, r) {
			return -1
		}
		return r
	}, lowered)
}

// Detect returns Arabic if text contains a rune from the Arabic block and
// fallback otherwise.
func Detect(text, fallback string) string {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return Arabic
		}
	}
	if fallback == "" {
		return English
	}
	return fallback
}

// Truncate cuts s to at most n runes, appending suffix when it had to cut.
func Truncate(s string, n int, suffix string) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + suffix
}
