package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/driftweb/crawlindex/internal/crawlerr"
)

// migration is one ordered, idempotent schema step. Tolerant migrations
// swallow their error instead of failing the whole open, matching the
// teacher's historical-rollout-mistake escape hatch (spec.md §4.4).
type migration struct {
	version  int
	name     string
	tolerant bool
	up       func(context.Context, *sql.Tx) error
}

var migrations = []migration{
	{version: 1, name: "crawl_sources", up: migrateCrawlSources},
	{version: 2, name: "dataset_tables", up: migrateDatasetTables},
	{version: 3, name: "fts5_indexes", up: migrateFTS5Indexes},
	{version: 4, name: "legacy_index_cleanup", tolerant: true, up: migrateLegacyIndexCleanup},
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			if m.tolerant {
				s.logger.Warn().Err(err).Int("version", m.version).Str("name", m.name).
					Msg("tolerant migration failed, continuing")
				continue
			}
			return crawlerr.Wrap(crawlerr.KindMigrationFailed, err, "migration %d (%s)", m.version, m.name)
		}
	}
	return nil
}

func (s *Store) createMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	return err
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s','now'))",
		m.version, m.name); err != nil {
		return err
	}

	return tx.Commit()
}

func migrateCrawlSources(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS crawl_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		origin TEXT NOT NULL UNIQUE,
		dns_binding_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS crawl_source_meta (
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		dataset_tag TEXT NOT NULL,
		crawl_source_version INTEGER NOT NULL DEFAULT 0,
		crawl_dataset_version INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, dataset_tag)
	);

	CREATE TABLE IF NOT EXISTS dns_bindings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		key TEXT NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 0,
		first_confirmed_at INTEGER NOT NULL,
		last_confirmed_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_dns_bindings_current_name
		ON dns_bindings(name) WHERE is_current = 1;
	CREATE INDEX IF NOT EXISTS idx_dns_bindings_key ON dns_bindings(key);
	`)
	return err
}

func migrateDatasetTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

	CREATE TABLE IF NOT EXISTS bookmarks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		href TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		pinned INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_created_at ON bookmarks(created_at);

	CREATE TABLE IF NOT EXISTS discussions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		href TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_discussions_created_at ON discussions(created_at);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		href TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		parent_href TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_comments_href ON comments(href);

	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		blob_name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);

	CREATE TABLE IF NOT EXISTS votes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		href TEXT NOT NULL DEFAULT '',
		vote INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_votes_href ON votes(href);

	CREATE TABLE IF NOT EXISTS reactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		topic TEXT NOT NULL,
		emojis TEXT NOT NULL DEFAULT '',
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);
	CREATE INDEX IF NOT EXISTS idx_reactions_topic ON reactions(topic);

	CREATE TABLE IF NOT EXISTS follow_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		dest_origin TEXT NOT NULL,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, dest_origin)
	);
	CREATE INDEX IF NOT EXISTS idx_follow_edges_source ON follow_edges(source_id);

	CREATE TABLE IF NOT EXISTS published_sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		hostname TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, pathname)
	);

	CREATE TABLE IF NOT EXISTS published_site_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		dest_origin TEXT NOT NULL,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, dest_origin)
	);
	CREATE INDEX IF NOT EXISTS idx_published_site_edges_source ON published_site_edges(source_id);

	CREATE TABLE IF NOT EXISTS site_descriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES crawl_sources(id) ON DELETE CASCADE,
		pathname TEXT NOT NULL,
		subject_url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		crawled_at INTEGER NOT NULL,
		UNIQUE (source_id, subject_url)
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS post_tags (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (post_id, tag_id)
	);
	CREATE TABLE IF NOT EXISTS bookmark_tags (
		bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (bookmark_id, tag_id)
	);
	CREATE TABLE IF NOT EXISTS discussion_tags (
		discussion_id INTEGER NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (discussion_id, tag_id)
	);
	CREATE TABLE IF NOT EXISTS media_tags (
		media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (media_id, tag_id)
	);
	`)
	return err
}

// ftsTable describes one base table's FTS5 shadow, for both migrateFTS5Indexes
// and query-time snippet()/match composition in internal/search.
type ftsTable struct {
	base    string
	columns []string
}

// FTSTables lists the four datasets reachable from federated search
// (spec.md §4.6.3): site descriptions, posts, bookmarks, discussions.
var FTSTables = []ftsTable{
	{base: "site_descriptions", columns: []string{"title", "description"}},
	{base: "posts", columns: []string{"body"}},
	{base: "bookmarks", columns: []string{"title"}},
	{base: "discussions", columns: []string{"title", "body"}},
}

func migrateFTS5Indexes(ctx context.Context, tx *sql.Tx) error {
	for _, t := range FTSTables {
		cols := ""
		for i, c := range t.columns {
			if i > 0 {
				cols += ", "
			}
			cols += c
		}

		ddl := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS %[1]s_fts_index USING fts5(
			%[2]s,
			content=%[1]s,
			content_rowid=id
		);
		`, t.base, cols)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s_fts_index: %w", t.base, err)
		}

		insertCols, insertVals, updateSet := "", "", ""
		for i, c := range t.columns {
			if i > 0 {
				insertCols += ", "
				insertVals += ", "
				updateSet += ", "
			}
			insertCols += c
			insertVals += "new." + c
			updateSet += fmt.Sprintf("%s = new.%s", c, c)
		}

		triggers := fmt.Sprintf(`
		CREATE TRIGGER IF NOT EXISTS %[1]s_fts_insert AFTER INSERT ON %[1]s BEGIN
			INSERT INTO %[1]s_fts_index(rowid, %[2]s) VALUES (new.id, %[3]s);
		END;
		CREATE TRIGGER IF NOT EXISTS %[1]s_fts_update AFTER UPDATE ON %[1]s BEGIN
			DELETE FROM %[1]s_fts_index WHERE rowid = old.id;
			INSERT INTO %[1]s_fts_index(rowid, %[2]s) VALUES (new.id, %[3]s);
		END;
		CREATE TRIGGER IF NOT EXISTS %[1]s_fts_delete AFTER DELETE ON %[1]s BEGIN
			DELETE FROM %[1]s_fts_index WHERE rowid = old.id;
		END;
		`, t.base, insertCols, insertVals)
		_ = updateSet // delete-old/insert-new pattern used instead of UPDATE, per spec.md §4.4
		if _, err := tx.ExecContext(ctx, triggers); err != nil {
			return fmt.Errorf("create %s fts triggers: %w", t.base, err)
		}
	}
	return nil
}

// migrateLegacyIndexCleanup drops an index name used by an early rollout
// that was superseded by idx_posts_created_at; tolerant because the index
// may never have existed on installations that started past this point.
func migrateLegacyIndexCleanup(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX idx_posts_created`)
	return err
}
