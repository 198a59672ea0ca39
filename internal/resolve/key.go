// Package resolve maps OPI reference names to real files below the
// high-resolution image root.
//
// Reference names arrive mangled: written by Mac OS 9, Windows or Posix
// layout applications, volume-prefixed, sometimes pointing at the
// low-resolution proxy tree, with accents encoded half a dozen ways.
// The resolver builds a one-time index of the hires tree keyed by a
// canonical form of each path and matches references by exact canonical
// equality. Visually distinct names that fold to the same key (café.tif
// vs cafe.tif) are a genuine ambiguity and reported as such instead of
// guessed at.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CanonicalKey folds one path component for matching: decompose (NFD),
// drop combining marks, lower-case, collapse runs of blanks.
func CanonicalKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// canonicalPath folds every component and joins with '/'.
func canonicalPath(components []string) string {
	keys := make([]string, len(components))
	for i, c := range components {
		keys[i] = CanonicalKey(c)
	}
	return strings.Join(keys, "/")
}
