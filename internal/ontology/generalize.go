package ontology

import (
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

func compileForValidation(pattern string) (*regexp2.Regexp, error) {
	return regexp2.Compile(pattern, regexp2.None)
}

// generalizePattern deterministically derives a regex from a concrete piece
// of source text: literal characters are escaped, runs of digits become
// \d+, and runs of uppercase letters become [A-Z]+. The result is wrapped in
// a single named group "match" so extraction can recover the full span.
func generalizePattern(sourceText string) string {
	text := strings.TrimSpace(sourceText)
	if text == "" {
		return `(?P<match>.+)`
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		switch {
		case isDigit(text[i]):
			j := i
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			b.WriteString(`\d+`)
			i = j
		case isUpper(text[i]):
			j := i
			for j < len(text) && isUpper(text[j]) {
				j++
			}
			b.WriteString(`[A-Z]+`)
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(text[i])))
			i++
		}
	}
	return `(?P<match>` + b.String() + `)`
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
