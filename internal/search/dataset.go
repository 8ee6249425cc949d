// Package search implements the Search & Query Surface (spec.md §4.6):
// per-dataset list/get, federated search with trust-scoped visibility and
// FTS snippet highlighting, and the suggestions composer. Grounded on the
// teacher's storage/sqlite query-composition style (internal/store/sqlite's
// QueryBuilder) generalized from one table to the ten queryable datasets.
package search

// DatasetSpec describes how to list/get one queryable table: its own
// columns beyond the common (id, source_id, pathname, crawled_at) set,
// its canonical ordering column, and its tag-join shape (if any).
type DatasetSpec struct {
	// Table is the base table name (e.g. "posts").
	Table string
	// Columns are the dataset-specific column names, selected in this
	// order and returned in Record.Fields keyed by column name.
	Columns []string
	// TimeColumn is the column list/search orders by ascending/descending
	// (spec.md §4.6.1: "ordered by the dataset's canonical time field").
	TimeColumn string
	// TagJoinTable and TagFKColumn are empty for datasets without tags
	// (comments, votes, published sites).
	TagJoinTable string
	TagFKColumn  string
}

func (s DatasetSpec) hasTags() bool { return s.TagJoinTable != "" }

// Specs is the registry of every queryable dataset's DatasetSpec, keyed by
// dataset tag, matching the tables created by store/sqlite's migrations.
var Specs = map[string]DatasetSpec{
	"posts": {
		Table: "posts", Columns: []string{"body", "created_at", "updated_at"},
		TimeColumn: "created_at", TagJoinTable: "post_tags", TagFKColumn: "post_id",
	},
	"bookmarks": {
		Table: "bookmarks", Columns: []string{"href", "title", "pinned", "created_at", "updated_at"},
		TimeColumn: "created_at", TagJoinTable: "bookmark_tags", TagFKColumn: "bookmark_id",
	},
	"discussions": {
		Table: "discussions", Columns: []string{"title", "body", "href", "created_at", "updated_at"},
		TimeColumn: "created_at", TagJoinTable: "discussion_tags", TagFKColumn: "discussion_id",
	},
	"comments": {
		Table: "comments", Columns: []string{"href", "body", "parent_href", "created_at", "updated_at"},
		TimeColumn: "created_at",
	},
	"media": {
		Table: "media", Columns: []string{"caption", "mime_type", "blob_name", "created_at", "updated_at"},
		TimeColumn: "created_at", TagJoinTable: "media_tags", TagFKColumn: "media_id",
	},
	"votes": {
		Table: "votes", Columns: []string{"href", "vote", "created_at", "updated_at"},
		TimeColumn: "created_at",
	},
	"published-sites": {
		Table: "published_sites", Columns: []string{"hostname", "created_at"},
		TimeColumn: "created_at",
	},
	"site-descriptions": {
		Table: "site_descriptions", Columns: []string{"subject_url", "title", "description", "type", "created_at"},
		TimeColumn: "created_at",
	},
}
