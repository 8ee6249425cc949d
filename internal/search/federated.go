package search

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/models"
)

// federatedDatasets lists the dataset-tag keys "all" expands to, in the
// order FTSTables declares them (spec.md §4.6.3).
var federatedDatasets = []string{"site-descriptions", "posts", "bookmarks", "discussions"}

// datasetAliases maps the federated-search input names to Specs keys.
var datasetAliases = map[string]string{
	"sites":     "site-descriptions",
	"posts":     "posts",
	"bookmarks": "bookmarks",
}

// SourceResolver is the narrow Index Store surface federated search needs
// to turn an origin into a CrawlSource id.
type SourceResolver interface {
	GetCrawlSourceByOrigin(ctx context.Context, origin string) (*models.CrawlSource, error)
}

// EdgeReader is the narrow Index Store surface federated search needs to
// read the acting user's direct follows for hops=2 trust-set expansion.
type EdgeReader interface {
	ListEdgeDestinations(ctx context.Context, table string, sourceID int64) ([]string, error)
}

// FederatedInput is the federated search request (spec.md §4.6.3).
type FederatedInput struct {
	UserOrigin string
	Query      string
	Hops       int      // 1 or 2; any other value is treated as 1
	Datasets   []string // subset of {"sites", "posts", "bookmarks", "all"}; empty means "all"
	Since      int64    // epoch ms floor
	Offset     int
	Limit      int // default 20
}

// FederatedResult is the federated search response.
type FederatedResult struct {
	HighlightNonce int
	Results        []Record
}

// FederatedSearch implements spec.md §4.6.3.
func FederatedSearch(ctx context.Context, db *sql.DB, sources SourceResolver, edges EdgeReader, authors AuthorHydrator, in FederatedInput) (*FederatedResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if in.Offset < 0 {
		return nil, crawlerr.New(crawlerr.KindInvalidArgument, "offset must be >= 0")
	}

	trust, err := buildTrustSet(ctx, sources, edges, in.UserOrigin, in.Hops)
	if err != nil {
		return nil, err
	}
	if len(trust) == 0 {
		return &FederatedResult{}, nil
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	sanitized := sanitizeQuery(in.Query)
	keys := expandDatasets(in.Datasets)

	var merged []Record
	for _, key := range keys {
		spec, ok := Specs[key]
		if !ok {
			continue
		}
		recs, err := searchDataset(ctx, db, spec, trust, sanitized, nonce, in.Since, in.Offset, limit)
		if err != nil {
			return nil, err
		}
		merged = append(merged, recs...)
	}

	if authors != nil {
		for i := range merged {
			if title, desc, err := authors.GetBestSiteDescription(ctx, merged[i].Author); err == nil {
				merged[i].AuthorTitle = title
				merged[i].AuthorDescription = desc
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CrawledAt > merged[j].CrawledAt })
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return &FederatedResult{HighlightNonce: nonce, Results: merged}, nil
}

// buildTrustSet implements spec.md §4.6.3 step 1-2: {user} for hops=1,
// {user} ∪ {follows(user)} for hops=2. Returns an empty set (not an
// error) when the user has never been crawled.
func buildTrustSet(ctx context.Context, sources SourceResolver, edges EdgeReader, userOrigin string, hops int) ([]int64, error) {
	origin := archive.CanonicalOrigin(userOrigin)
	cs, err := sources.GetCrawlSourceByOrigin(ctx, origin)
	if err != nil {
		if errors.Is(err, crawlerr.NotFound) {
			return nil, nil
		}
		return nil, err
	}

	trust := []int64{cs.ID}
	if hops != 2 {
		return trust, nil
	}

	follows, err := edges.ListEdgeDestinations(ctx, "follow_edges", cs.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range follows {
		fcs, err := sources.GetCrawlSourceByOrigin(ctx, f)
		if err != nil {
			continue
		}
		trust = append(trust, fcs.ID)
	}
	return trust, nil
}

// sanitizeQuery implements spec.md §4.6.3 step 3. Empty input (or input
// that normalizes to nothing) returns "", signaling the non-FTS fallback.
func sanitizeQuery(raw string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	cleaned := strings.Join(strings.Fields(sb.String()), " ")
	if cleaned == "" {
		return ""
	}
	return cleaned + "*"
}

// randomNonce allocates the random 10-bit highlightNonce (spec.md §4.6.3
// step 4), via crypto/rand for an unpredictable marker the UI can't
// collide with user content.
func randomNonce() (int, error) {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("allocate highlight nonce: %w", err)
	}
	return (int(buf[0])<<8 | int(buf[1])) & 0x3FF, nil
}

// expandDatasets maps the requested dataset names to Specs keys,
// expanding "all" (or an empty request) to every federated dataset.
func expandDatasets(requested []string) []string {
	if len(requested) == 0 {
		return federatedDatasets
	}
	seen := make(map[string]bool, len(requested))
	var out []string
	for _, d := range requested {
		if d == "all" {
			return federatedDatasets
		}
		key, ok := datasetAliases[d]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

// searchDataset executes one dataset's with-FTS or without-FTS query
// variant, per spec.md §4.6.3 step 5.
func searchDataset(ctx context.Context, db *sql.DB, spec DatasetSpec, trust []int64, sanitized string, nonce int, since int64, offset, limit int) ([]Record, error) {
	cols, joins := columnsAndJoins(spec)

	trustPlaceholders := make([]string, len(trust))
	trustArgs := make([]any, len(trust))
	for i, id := range trust {
		trustPlaceholders[i] = "?"
		trustArgs[i] = id
	}
	trustClause := "cs.id IN (" + strings.Join(trustPlaceholders, ",") + ")"

	joinClause := ""
	for _, j := range joins {
		joinClause += " " + j
	}

	var (
		query string
		args  []any
	)
	if sanitized == "" {
		query = fmt.Sprintf(
			"SELECT %s FROM %s p%s WHERE %s AND p.crawled_at >= ? GROUP BY p.id ORDER BY p.crawled_at DESC LIMIT ? OFFSET ?",
			strings.Join(cols, ", "), spec.Table, joinClause, trustClause)
		args = append(args, trustArgs...)
		args = append(args, since, limit, offset)
	} else {
		ftsTable := spec.Table + "_fts_index"
		startMark := fmt.Sprintf("{%x}", nonce)
		endMark := fmt.Sprintf("{/%x}", nonce)
		selectCols := append(append([]string{}, cols...),
			fmt.Sprintf("snippet(%s, -1, ?, ?, '...', 24) AS snippet", ftsTable))
		query = fmt.Sprintf(
			"SELECT %s FROM %s p INNER JOIN %s ON %s.rowid = p.id%s WHERE %s MATCH ? AND %s AND p.crawled_at >= ? GROUP BY p.id ORDER BY p.crawled_at DESC LIMIT ? OFFSET ?",
			strings.Join(selectCols, ", "), spec.Table, ftsTable, ftsTable, joinClause, ftsTable, trustClause)
		args = append(args, startMark, endMark, sanitized)
		args = append(args, trustArgs...)
		args = append(args, since, limit, offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("federated search %s: %w", spec.Table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSearchRow(spec, rows, sanitized != "")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
