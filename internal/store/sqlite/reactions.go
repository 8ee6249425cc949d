package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

// UpsertReaction materializes one reactions file's row: topic plus the
// comma-joined emoji string (spec.md §4.3.4).
func (s *Store) UpsertReaction(ctx context.Context, sourceID int64, pathname, topic, emojis string, crawledAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (source_id, pathname, topic, emojis, crawled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_id, pathname) DO UPDATE SET
			topic = excluded.topic, emojis = excluded.emojis, crawled_at = excluded.crawled_at`,
		sourceID, pathname, topic, emojis, crawledAt)
	return err
}

// ReactionRow is one source's reaction entry for a topic, as stored.
type ReactionRow struct {
	SourceID int64
	Origin   string
	Emojis   string
}

// ListReactionsByTopic returns every source's reaction row for topic,
// joined to the source's origin, for listReactions' per-emoji grouping.
func (s *Store) ListReactionsByTopic(ctx context.Context, topic string) ([]ReactionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source_id, cs.origin, r.emojis
		FROM reactions r JOIN crawl_sources cs ON cs.id = r.source_id
		WHERE r.topic = ?`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReactionRow
	for rows.Next() {
		var r ReactionRow
		if err := rows.Scan(&r.SourceID, &r.Origin, &r.Emojis); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReactionEmojis returns the stored emoji string for (sourceID,
// pathname), or "" if absent — used by addReaction/removeReaction's
// read-modify-write to seed the in-archive-file edit from the index's
// last-known state when the archive file itself is missing.
func (s *Store) GetReactionEmojis(ctx context.Context, sourceID int64, pathname string) (string, error) {
	var emojis string
	err := s.db.QueryRowContext(ctx,
		`SELECT emojis FROM reactions WHERE source_id = ? AND pathname = ?`, sourceID, pathname).Scan(&emojis)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return emojis, nil
}
