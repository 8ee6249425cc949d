package sqlite

import (
	"context"
	"fmt"

	"github.com/driftweb/crawlindex/internal/crawlerr"
)

// ListEdgeDestinations returns every destination origin recorded for
// sourceID in an edge table (follow_edges, published_site_edges), used
// both by dataset ingesters to diff against a freshly read canonical file
// and by the Scheduler to resolve follow/published candidate lists.
func (s *Store) ListEdgeDestinations(ctx context.Context, table string, sourceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT dest_origin FROM %s WHERE source_id = ?`, table), sourceID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var dest string
		if err := rows.Scan(&dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}
	return out, rows.Err()
}

// InsertEdge adds a (sourceID, dest) row, tolerating (logging, not failing)
// a unique-constraint race per spec.md §4.3.2.
func (s *Store) InsertEdge(ctx context.Context, table string, sourceID int64, dest string, crawledAt int64) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (source_id, dest_origin, crawled_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, table),
		sourceID, dest, crawledAt)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindUniqueConstraint, err, "insert edge %s/%s", table, dest)
	}
	return nil
}

// DeleteEdge removes the (sourceID, dest) row, if present.
func (s *Store) DeleteEdge(ctx context.Context, table string, sourceID int64, dest string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source_id = ? AND dest_origin = ?`, table), sourceID, dest)
	return err
}
