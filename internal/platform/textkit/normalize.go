// Package textkit provides the text primitives shared by the intake,
// triage and privacy engines: accent stripping, leetspeak folding and
// tolerant parsing of yes/no, temperature and duration answers. All
// functions are pure and deterministic.
package textkit

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripAccents removes combining diacritical marks, so "éternuements"
// becomes "eternuements". Input that fails to transform is returned
// unchanged.
func StripAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lowercases, strips accents, folds smart apostrophes to
// ASCII and collapses runs of whitespace to single spaces. This is the
// canonical form every substring matcher operates on.
func Normalize(s string) string {
	s = strings.ToLower(StripAccents(s))
	s = strings.NewReplacer("’", "'", "‘", "'", "´", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Compact removes all whitespace from an already normalized string.
// Matching against the compact form catches adversarial spacing such
// as "unspec  ified".
func Compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var deleet = map[rune]rune{
	'0': 'o', '1': 'i', '2': 'z', '3': 'e', '4': 'a',
	'5': 's', '6': 'g', '7': 't', '8': 'b', '9': 'g',
}

// Deleet folds digit substitutions onto letters so "dy5pnea" matches
// the same red-flag terms as "dyspnea". Apply after Normalize; numeric
// answers must not go through this.
func Deleet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := deleet[r]; ok {
			b.WriteRune(sub)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
