// Package moderation masks forbidden words in chat content.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor rewrites chat content before it is relayed.
type Censor interface {
	Censor(content string) string
}

// Moderator finds dictionary words with an Aho-Corasick automaton built over
// a normalized alphabet, so "B.4.d.g.e.r" still matches "badger".
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// New builds a Moderator.  It returns nil when words is empty so callers can
// treat "no dictionary" as "no moderation".
func New(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if p := fold([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement}, nil
}

// Censor replaces every rune of the original text that took part in a match,
// including punctuation inside the match.  Text outside matches is untouched.
func (m *Moderator) Censor(content string) string {
	original := []rune(content)
	normalized := make([]rune, 0, len(original))
	positions := make([]int, 0, len(original))
	for i, r := range original {
		r = simplify(r)
		if isNoise(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		positions = append(positions, i)
	}
	if len(normalized) == 0 {
		return content
	}

	terms := m.matcher.MultiPatternSearch(normalized, false)
	if len(terms) == 0 {
		return content
	}
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		for i := positions[start]; i <= positions[end-1]; i++ {
			original[i] = m.replacement
		}
	}
	return string(original)
}

func fold(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		r = simplify(r)
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// simplify maps leet-speak digits and symbols back to letters.
func simplify(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
