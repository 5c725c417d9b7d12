package bm25

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultStopwords are common English words excluded from indexing.
var DefaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if", "in", "into", "is", "it",
	"no", "not", "of", "on", "or", "such", "that", "the", "their", "then", "there", "these",
	"they", "this", "to", "was", "will", "with",
}

// Stopwords is a set of terms dropped by Tokenize.
type Stopwords map[string]struct{}

// NewStopwords builds a set from words, lowercased.
func NewStopwords(words ...string) Stopwords {
	s := make(Stopwords, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// Has reports whether term is a stopword.
func (s Stopwords) Has(term string) bool {
	_, ok := s[term]
	return ok
}

// Tokenize normalizes text (NFKC, lowercase), splits it on anything that is
// not a letter, digit or underscore, drops stopwords and stems plurals.
func Tokenize(text string, stop Stopwords) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := words[:0]
	for _, w := range words {
		if stop.Has(w) {
			continue
		}
		out = append(out, Stem(w))
	}
	return out
}

// Stem strips common English plural suffixes. Verb forms are left alone:
// "testing" and "test" stay distinct terms.
func Stem(term string) string {
	n := len(term)
	if n < 3 {
		return term
	}
	switch {
	case n > 3 && strings.HasSuffix(term, "ies"):
		return term[:n-3] + "y"
	case n > 3 && (strings.HasSuffix(term, "xes") || strings.HasSuffix(term, "zes")):
		return term[:n-2]
	case n > 4 && strings.HasSuffix(term, "sses"):
		return term[:n-2]
	case n > 4 && strings.HasSuffix(term, "shes"):
		return term[:n-2]
	case strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss"):
		return term[:n-1]
	}
	return term
}
