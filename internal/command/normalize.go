package command

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var tokenFolder = cases.Fold()

// NormalizeToken reduces a spoken token to its marker comparison form: NFC
// composed, punctuation and symbols removed, case folded.
func NormalizeToken(text string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.Predicate(func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})))
	cleaned, _, err := transform.String(t, strings.TrimSpace(text))
	if err != nil {
		cleaned = norm.NFC.String(text)
	}
	return tokenFolder.String(strings.TrimSpace(cleaned))
}

// splitPhrase normalises a configured marker phrase into its tokens.
func splitPhrase(phrase string) []string {
	var tokens []string
	for _, field := range strings.Fields(phrase) {
		if tok := NormalizeToken(field); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// endsSentence reports whether a raw token closes a sentence. Closing quotes
// and brackets after the stop are ignored.
func endsSentence(text string) bool {
	trimmed := strings.TrimRightFunc(strings.TrimSpace(text), func(r rune) bool {
		switch r {
		case '"', '\'', ')', ']', '}', '»', '”', '’':
			return true
		}
		return false
	})
	if trimmed == "" {
		return false
	}
	switch r := []rune(trimmed); r[len(r)-1] {
	case '.', '?', '!', '…', '。', '？', '！':
		return true
	}
	return false
}
