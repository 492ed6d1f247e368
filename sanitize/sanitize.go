// Package sanitize normalizes raw user text before it is embedded or stored.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxRunes bounds the payload sent to embedding providers.
const DefaultMaxRunes = 4096

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Normalizer strips markup, collapses whitespace and caps length.
type Normalizer struct {
	MaxRunes int
}

// New returns a Normalizer with the given cap; non-positive values use DefaultMaxRunes.
func New(maxRunes int) Normalizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return Normalizer{MaxRunes: maxRunes}
}

// Clean normalizes s with the default cap.
func Clean(s string) string {
	return New(DefaultMaxRunes).Clean(s)
}

// Clean returns s with tags replaced by a space, whitespace runs collapsed,
// ends trimmed and the result truncated to MaxRunes runes. Invalid UTF-8 is
// replaced rather than rejected.
func (n Normalizer) Clean(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}

	s = tagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return strings.TrimRight(truncateRunes(s, n.limit()), " ")
}

func (n Normalizer) limit() int {
	if n.MaxRunes <= 0 {
		return DefaultMaxRunes
	}
	return n.MaxRunes
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
