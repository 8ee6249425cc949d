package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

// AuthorHydrator resolves a subject origin to its best-known site
// description, satisfied by *sqlite.Store.GetBestSiteDescription.
type AuthorHydrator interface {
	GetBestSiteDescription(ctx context.Context, subjectURL string) (title, description string, err error)
}

// Record is one hydrated, post-processed list/get/search result row.
type Record struct {
	URL               string
	Author            string // canonical origin
	AuthorTitle       string
	AuthorDescription string
	Pathname          string
	CrawledAt         int64
	Tags              []string
	Fields            map[string]any // dataset-specific columns, keyed by column name
	Snippet           string         // FTS snippet() output, federated search only
}

// ListFilter is the common list(filters) input (spec.md §4.6.1).
type ListFilter struct {
	Authors []string // normalized origins; empty means "no author filter"
	Tags    []string // AND semantics: every tag must appear
	Offset  int
	Limit   int
	Reverse bool
}

// List runs the common list query composition: inner join to
// crawl_sources, left join to the dataset's tag tables when applicable,
// grouped by record id, ordered by the dataset's canonical time column.
// Author hydration and tag AND-filtering are applied after the SQL round
// trip, per spec.md §4.6.1.
func List(ctx context.Context, db *sql.DB, spec DatasetSpec, authors AuthorHydrator, filter ListFilter) ([]Record, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, crawlerr.New(crawlerr.KindInvalidArgument, "offset and limit must be >= 0")
	}

	cols, joins := columnsAndJoins(spec)

	qb := sqlite.NewQueryBuilder(spec.Table+" p", cols...)
	for _, j := range joins {
		qb.Join(j)
	}
	if len(filter.Authors) > 0 {
		placeholders := make([]string, len(filter.Authors))
		args := make([]any, len(filter.Authors))
		for i, a := range filter.Authors {
			placeholders[i] = "?"
			args[i] = a
		}
		qb.Where("cs.origin IN ("+strings.Join(placeholders, ",")+")", args...)
	}
	qb.GroupBy("p.id")
	qb.OrderBy("p."+spec.TimeColumn, filter.Reverse)
	if filter.Limit > 0 {
		qb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		qb.Offset(filter.Offset)
	}

	sqlText, args := qb.Build()
	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", spec.Table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRow(spec, rows)
		if err != nil {
			return nil, err
		}
		if !matchesTagFilter(rec.Tags, filter.Tags) {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if authors != nil {
		for i := range out {
			title, desc, err := authors.GetBestSiteDescription(ctx, out[i].Author)
			if err == nil {
				out[i].AuthorTitle = title
				out[i].AuthorDescription = desc
			}
		}
	}
	return out, nil
}

// columnsAndJoins renders the SELECT column list and JOIN clauses shared
// by List and Get for one DatasetSpec.
func columnsAndJoins(spec DatasetSpec) (cols []string, joins []string) {
	cols = []string{"p.id", "cs.origin", "p.pathname", "p.crawled_at"}
	for _, c := range spec.Columns {
		cols = append(cols, "p."+c)
	}
	joins = append(joins, "INNER JOIN crawl_sources cs ON cs.id = p.source_id")
	if spec.hasTags() {
		joins = append(joins,
			fmt.Sprintf("LEFT JOIN %s jt ON jt.%s = p.id", spec.TagJoinTable, spec.TagFKColumn),
			"LEFT JOIN tags t ON t.id = jt.tag_id")
		cols = append(cols, "GROUP_CONCAT(DISTINCT t.tag) AS tags")
	}
	return cols, joins
}

// scanRow decodes one row produced by a query built with columnsAndJoins:
// id, origin, pathname, crawled_at, <spec.Columns...>, [tags].
func scanRow(spec DatasetSpec, rows *sql.Rows) (Record, error) {
	return decodeRow(spec, rows, false)
}

// scanSearchRow decodes a federated-search row, which additionally carries
// a trailing FTS snippet() column when the query was non-empty.
func scanSearchRow(spec DatasetSpec, rows *sql.Rows, hasSnippet bool) (Record, error) {
	return decodeRow(spec, rows, hasSnippet)
}

// decodeRow is the shared row decoder for both plain list/get rows and
// federated-search rows (which append a snippet() column at the end).
func decodeRow(spec DatasetSpec, rows *sql.Rows, hasSnippet bool) (Record, error) {
	width := 4 + len(spec.Columns)
	if spec.hasTags() {
		width++
	}
	if hasSnippet {
		width++
	}
	dest := make([]any, width)
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return Record{}, fmt.Errorf("scan %s row: %w", spec.Table, err)
	}

	origin, _ := asString(*dest[1].(*any))
	pathname, _ := asString(*dest[2].(*any))
	crawledAt := asInt64(*dest[3].(*any))

	rec := Record{
		Author:    origin,
		Pathname:  pathname,
		URL:       origin + pathname,
		CrawledAt: crawledAt,
		Fields:    make(map[string]any, len(spec.Columns)),
	}
	for i, c := range spec.Columns {
		rec.Fields[c] = normalizeValue(*dest[4+i].(*any))
	}

	idx := 4 + len(spec.Columns)
	if spec.hasTags() {
		if tagStr, ok := asString(*dest[idx].(*any)); ok && tagStr != "" {
			rec.Tags = strings.Split(tagStr, ",")
		}
		idx++
	}
	if hasSnippet {
		if s, ok := asString(*dest[idx].(*any)); ok {
			rec.Snippet = s
		}
	}
	return rec, nil
}

// normalizeValue converts driver-returned []byte (common for TEXT columns
// under modernc.org/sqlite) to string so Fields holds plain Go values.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// matchesTagFilter reports whether every tag in want appears in have
// (spec.md §4.6.1's AND semantics across tags).
func matchesTagFilter(have []string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

var _ AuthorHydrator = (*sqlite.Store)(nil)
