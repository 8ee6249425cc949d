package datasets

import (
	"regexp"
	"strings"
)

var schemePrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
var slugUnsafeRegex = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Slugify turns a URL into the deterministic per-topic filename slug
// spec.md §6.3 mandates for URL-keyed archive paths (a reaction's topic,
// a bookmark's href): drop the scheme prefix, replace reserved filesystem
// and control characters with `-`, then trim trailing dashes.
func Slugify(raw string) string {
	s := schemePrefixRegex.ReplaceAllString(raw, "")
	s = slugUnsafeRegex.ReplaceAllString(s, "-")
	return strings.TrimRight(s, "-")
}
