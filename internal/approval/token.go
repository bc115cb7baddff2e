package approval

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultTokens is the affirmative allow-list used when none is configured.
var DefaultTokens = []string{"OK", "YES", "Y", "CO", "DUYET"}

var upper = cases.Upper(language.Und)

// NormalizeToken trims, strips diacritics and upper-cases a message body so
// "duyệt", "Có " and "ok" compare equal to DUYET, CO and OK.
func NormalizeToken(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			// Đ does not decompose under NFD.
			switch r {
			case 'đ':
				return 'd'
			case 'Đ':
				return 'D'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	return upper.String(out)
}

// TokenSet is a normalized allow-list.
type TokenSet map[string]struct{}

// NewTokenSet normalizes tokens into a set. Blank entries are dropped.
func NewTokenSet(tokens []string) TokenSet {
	set := make(TokenSet, len(tokens))
	for _, tok := range tokens {
		if n := NormalizeToken(tok); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Matches reports whether body, once normalized, is exactly one of the tokens.
func (s TokenSet) Matches(body string) bool {
	_, ok := s[NormalizeToken(body)]
	return ok
}
