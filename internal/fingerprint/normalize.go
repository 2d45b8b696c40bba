// Package fingerprint turns raw vocabulary text into the canonical keys used
// to match cards across imports.
package fingerprint

import (
	"strings"
	"unicode"

	"github.com/conorfennell/lexicard/internal/domain"
	"golang.org/x/text/unicode/norm"
)

const (
	maxTranslationLen = 120
	maxDigestLen      = 40
	maxTags           = 10
)

// trailing sentence punctuation, ASCII and full-width
const sentencePunct = ".,!?;:…。，！？；：、"

// CanonicalTerm returns the matching key for a term. It is insensitive to
// case, spacing, trailing punctuation and accents, and is idempotent.
func CanonicalTerm(text string) string {
	s := strings.TrimSpace(text)
	s = strings.ToLower(s)
	s = collapseSpace(s)
	s = strings.TrimRight(s, sentencePunct)
	s = norm.NFKD.String(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\'', r == '-', r == '/':
			b.WriteRune(r)
		}
	}
	// dropping characters can leave doubled or edge spaces
	return strings.TrimSpace(collapseSpace(b.String()))
}

// CanonicalTranslation trims and collapses whitespace and caps the length.
func CanonicalTranslation(text string) string {
	s := collapseSpace(strings.TrimSpace(text))
	return truncate(s, maxTranslationLen)
}

// Digest is the translation half of a fingerprint: the lowercased canonical
// translation reduced to CJK ideographs, a-z and 0-9. An empty translation
// digests to "".
func Digest(translation string) string {
	s := strings.ToLower(CanonicalTranslation(translation))
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxDigestLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || unicode.Is(unicode.Han, r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

// Of computes the fingerprint of a term/translation pair.
func Of(term, translation string) domain.Fingerprint {
	return domain.Fingerprint{
		Normalized: CanonicalTerm(term),
		Digest:     Digest(translation),
	}
}

// ParseTags splits a raw tag field on whitespace, commas, semicolons and
// slashes. Order of first appearance is kept, duplicates and empties are
// dropped, and at most 10 tags are returned.
func ParseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '/', '，', '；':
			return true
		}
		return unicode.IsSpace(r)
	})
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || contains(tags, f) {
			continue
		}
		tags = append(tags, f)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// MergeTags returns the union of a and b, keeping a's order first.
func MergeTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if t != "" && !contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// collapseSpace folds every run of Unicode whitespace, including the
// ideographic space U+3000, into one ASCII space.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == '　' {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
