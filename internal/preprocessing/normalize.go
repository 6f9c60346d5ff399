package preprocessing

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	percentSuffix   = regexp.MustCompile(`(\d+)%`)
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Zs}.,!?()]`)
	wonSuffix       = regexp.MustCompile(`(\d+)원`)
	whitespaceRun   = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// Normalize canonicalizes a question before any matching happens. Hangul
// is composed to NFC, "<n>%" becomes "<n> 퍼센트", symbols outside letters,
// digits and . , ! ? ( ) are dropped, "<n>원" becomes "<n> 원", and
// whitespace runs collapse to one space. Normalize(Normalize(x)) equals
// Normalize(x).
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFC.String(text)
	// % is rewritten before the symbol strip would discard it.
	text = percentSuffix.ReplaceAllString(text, "${1} 퍼센트")
	text = disallowedChars.ReplaceAllString(text, "")
	// Stripping can leave conjoining jamo adjacent.
	text = norm.NFC.String(text)
	text = wonSuffix.ReplaceAllString(text, "${1} 원")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
