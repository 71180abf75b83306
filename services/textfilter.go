package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TextFilter matches free text against a list of excluded words.
// Matching is substring containment after Unicode lower-casing.
type TextFilter struct {
	words []string
}

// NewTextFilter normalises words once: trims, lower-cases, drops blanks
// and duplicates.
func NewTextFilter(words []string) *TextFilter {
	seen := make(map[string]struct{}, len(words))
	f := &TextFilter{}
	for _, w := range words {
		w = lower(normaliseText(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		f.words = append(f.words, w)
	}
	return f
}

// Empty reports whether the filter has nothing to match.
func (f *TextFilter) Empty() bool { return len(f.words) == 0 }

// Match returns the first excluded word found in text.
func (f *TextFilter) Match(text string) (string, bool) {
	if f.Empty() {
		return "", false
	}
	text = lower(normaliseText(text))
	for _, w := range f.words {
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}

// lower uses a fresh Caser per call; Casers are not safe for concurrent use.
func lower(s string) string {
	return cases.Lower(language.Finnish).String(s)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
