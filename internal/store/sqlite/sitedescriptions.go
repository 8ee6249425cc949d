package sqlite

import "context"

// UpsertSiteDescription materializes a SiteDescription row keyed on
// (sourceID, subjectURL) — not pathname, since both /dat.json and
// /data/known_sites/<host>/dat.json describe a subject distinct from the
// archive's own pathname layout (spec.md §4.3.3).
func (s *Store) UpsertSiteDescription(ctx context.Context, sourceID int64, pathname, subjectURL, title, description, typeLabel string, createdAt, crawledAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_descriptions (source_id, pathname, subject_url, title, description, type, created_at, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, subject_url) DO UPDATE SET
			pathname = excluded.pathname,
			title = excluded.title,
			description = excluded.description,
			type = excluded.type,
			created_at = excluded.created_at,
			crawled_at = excluded.crawled_at`,
		sourceID, pathname, subjectURL, title, description, typeLabel, createdAt, crawledAt)
	return err
}

// DeleteSiteDescription removes the row for (sourceID, subjectURL).
func (s *Store) DeleteSiteDescription(ctx context.Context, sourceID int64, subjectURL string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM site_descriptions WHERE source_id = ? AND subject_url = ?`, sourceID, subjectURL)
	return err
}

// GetBestSiteDescription returns the most recently crawled description of
// subjectURL across every known source, used to hydrate author display
// names in list/search results (spec.md §4.6.1's "getBest({subject})").
func (s *Store) GetBestSiteDescription(ctx context.Context, subjectURL string) (title, description string, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT title, description FROM site_descriptions
		WHERE subject_url = ? ORDER BY crawled_at DESC LIMIT 1`, subjectURL)
	if scanErr := row.Scan(&title, &description); scanErr != nil {
		return "", "", nil
	}
	return title, description, nil
}
