package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics strips combining marks, e.g. "Jiří" -> "Jiri".
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// NormalizeName folds a display name to the key used by FindByName:
// case-folded, without diacritics, with dashes, underscores and runs of
// whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	folded := cases.Fold().String(RemoveDiacritics(name))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	return strings.Join(words, " ")
}
