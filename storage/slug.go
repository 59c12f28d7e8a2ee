package storage

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLength caps slugs, in runes.
const MaxSlugLength = 96

// slugHashLength is the hex suffix kept on truncated slugs.
const slugHashLength = 8

// Slugify turns a title into a URL-safe natural key: accents removed, lowercase,
// runs of anything else collapsed to a single '-'.
//
// Slugs longer than MaxSlugLength are cut and end in '-' plus a hash of the full
// slug, so long titles that share a prefix keep distinct keys.
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var out []rune
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && len(out) > 0 {
				out = append(out, '-')
			}
			pendingDash = false
			out = append(out, r)
			continue
		}
		pendingDash = true
	}

	if len(out) <= MaxSlugLength {
		return string(out)
	}

	full := string(out)
	h := fnv.New32a()
	_, _ = h.Write([]byte(full))
	suffix := fmt.Sprintf("%0*x", slugHashLength, h.Sum32())

	prefix := strings.TrimRight(string(out[:MaxSlugLength-slugHashLength-1]), "-")
	return prefix + "-" + suffix
}
