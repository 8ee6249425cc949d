package search

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
)

// Get implements spec.md §4.6.2: parse url into (origin, pathname), query
// the dataset keyed on (crawl_sources.origin, pathname), return nil if
// absent.
func Get(ctx context.Context, db *sql.DB, spec DatasetSpec, authors AuthorHydrator, rawURL string) (*Record, error) {
	origin, pathname, err := splitURL(rawURL)
	if err != nil {
		return nil, crawlerr.Wrap(crawlerr.KindInvalidURL, err, "parse %s", rawURL)
	}

	cols, joins := columnsAndJoins(spec)
	colList := ""
	for i, c := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += c
	}
	joinClause := ""
	for _, j := range joins {
		joinClause += " " + j
	}

	query := fmt.Sprintf("SELECT %s FROM %s p%s WHERE cs.origin = ? AND p.pathname = ? GROUP BY p.id",
		colList, spec.Table, joinClause)

	rows, err := db.QueryContext(ctx, query, origin, pathname)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", spec.Table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRow(spec, rows)
	if err != nil {
		return nil, err
	}

	if authors != nil {
		if title, desc, err := authors.GetBestSiteDescription(ctx, rec.Author); err == nil {
			rec.AuthorTitle = title
			rec.AuthorDescription = desc
		}
	}
	return &rec, nil
}

// splitURL parses a record URL into its canonical origin and archive
// pathname, failing with InvalidURL on malformed input (spec.md §4.6.2).
func splitURL(raw string) (origin, pathname string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Path == "" {
		return "", "", fmt.Errorf("malformed record url %q", raw)
	}
	return archive.CanonicalOrigin(raw), u.Path, nil
}
