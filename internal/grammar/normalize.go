package grammar

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	parenthetical = regexp.MustCompile(`\(.*?\)`)
	quotes        = regexp.MustCompile(`["']`)
	multiSpace    = regexp.MustCompile(` {2,}`)
)

// Normalize strips stage directions like "(Persuade)", quotes and hyphens
// from a phrase so it reads the way a player would say it.
func Normalize(phrase string) string {
	phrase = parenthetical.ReplaceAllString(phrase, "")
	phrase = quotes.ReplaceAllString(phrase, "")
	phrase = strings.ReplaceAll(phrase, "-", " ")
	phrase = multiSpace.ReplaceAllString(phrase, " ")
	return strings.TrimSpace(phrase)
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
