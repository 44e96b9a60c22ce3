package verify

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a track, artist or album name for comparison: diacritics
// stripped, case folded, transliterated to ASCII, whitespace collapsed.
// "Beyoncé  " and "BEYONCE" normalize to the same string.
func Normalize(s string) string {
	// Transformers and casers carry state, so build them per call.
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(strip, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	out = strings.ToLower(unidecode.Unidecode(out))
	return strings.Join(strings.Fields(out), " ")
}
