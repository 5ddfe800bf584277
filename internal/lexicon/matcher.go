package lexicon

import (
	"strings"
	"unicode"
)

// Text is a normalized utterance ready for term matching.
type Text struct {
	lower  string
	tokens []string
	set    map[string]struct{}
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'")

// Normalize lower-cases s and splits it into word tokens. Tokens are runs
// of letters, digits and apostrophes.
func Normalize(s string) Text {
	lower := apostrophes.Replace(strings.ToLower(strings.TrimSpace(s)))
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !isWordRune(r)
	})
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return Text{lower: lower, tokens: tokens, set: set}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// isWord reports whether term is a single token rather than a phrase or marker.
func isWord(term string) bool {
	if term == "" {
		return false
	}
	for _, r := range term {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}

// Empty reports whether the text has no content.
func (t Text) Empty() bool { return t.lower == "" }

// String returns the normalized text.
func (t Text) String() string { return t.lower }

// Tokens returns the word tokens in order of appearance.
func (t Text) Tokens() []string { return t.tokens }

// Contains reports whether sub occurs anywhere in the normalized text.
func (t Text) Contains(sub string) bool {
	return sub != "" && strings.Contains(t.lower, sub)
}

// Has matches a single word against whole tokens and anything else
// (phrases, punctuation, emoji) as a substring.
func (t Text) Has(term string) bool {
	term = apostrophes.Replace(strings.ToLower(term))
	if isWord(term) {
		_, ok := t.set[term]
		return ok
	}
	return t.Contains(term)
}

// Count returns how many distinct terms match.
func (t Text) Count(terms []string) int {
	n := 0
	for _, term := range terms {
		if t.Has(term) {
			n++
		}
	}
	return n
}

// Matches returns the terms that match, in lexicon order.
func (t Text) Matches(terms []string) []string {
	var out []string
	for _, term := range terms {
		if t.Has(term) {
			out = append(out, term)
		}
	}
	return out
}

// HasAny reports whether at least one term matches.
func (t Text) HasAny(terms []string) bool {
	for _, term := range terms {
		if t.Has(term) {
			return true
		}
	}
	return false
}
