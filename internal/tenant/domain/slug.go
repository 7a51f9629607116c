package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugStripRe = regexp.MustCompile(`[^a-z0-9-]+`)
var slugDashRe = regexp.MustCompile(`-{2,}`)

// Slugify derives a URL-safe slug from a tenant name: accents folded,
// non-alphanumerics collapsed to single hyphens. Names are customer input
// (e.g. "Ana Martínez Nutrición"), so fold rather than reject.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	s := strings.ToLower(folded)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = slugStripRe.ReplaceAllString(s, "")
	s = slugDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
