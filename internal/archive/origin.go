package archive

import (
	"net/url"
	"strings"
)

// CanonicalOrigin normalizes raw to a lowercase scheme://host form,
// stripping path/query/fragment/credentials and a trailing slash. Used
// everywhere an archive URL or DNS key enters the Coordinator so
// `crawl:<origin>` lock names and CrawlSource lookups are stable
// regardless of how a caller spelled the URL.
func CanonicalOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
