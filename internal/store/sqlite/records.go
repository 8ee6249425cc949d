package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// UpsertRecord inserts or replaces the row for (sourceID, pathname) in
// table, keyed on the dataset tables' shared UNIQUE(source_id, pathname)
// constraint (spec.md §4.3.1: "if a row ... exists, update it; else
// insert"). cols carries every dataset-specific column beyond the common
// source_id/pathname/crawled_at triad. Returns the row id for tag sync.
func (s *Store) UpsertRecord(ctx context.Context, table string, sourceID int64, pathname string, crawledAt int64, cols map[string]any) (int64, error) {
	names := make([]string, 0, len(cols)+3)
	placeholders := make([]string, 0, len(cols)+3)
	args := make([]any, 0, len(cols)+3)
	updateSet := make([]string, 0, len(cols)+1)

	names = append(names, "source_id", "pathname", "crawled_at")
	placeholders = append(placeholders, "?", "?", "?")
	args = append(args, sourceID, pathname, crawledAt)
	updateSet = append(updateSet, "crawled_at = excluded.crawled_at")

	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		names = append(names, k)
		placeholders = append(placeholders, "?")
		args = append(args, cols[k])
		updateSet = append(updateSet, fmt.Sprintf("%s = excluded.%s", k, k))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (source_id, pathname) DO UPDATE SET %s`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updateSet, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", table, err)
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE source_id = ? AND pathname = ?`, table),
		sourceID, pathname).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve %s id: %w", table, err)
	}
	return id, nil
}

// DeleteRecord removes the row for (sourceID, pathname) from table,
// reporting whether a row existed.
func (s *Store) DeleteRecord(ctx context.Context, table string, sourceID int64, pathname string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source_id = ? AND pathname = ?`, table), sourceID, pathname)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SyncTags replaces every join-table row for recordID with one row per
// entry in tags, resolving (or creating) each tag's id first. Per
// spec.md §4.3.1: "delete all join rows for the record id, then insert
// (tag) rows with ON CONFLICT IGNORE, resolve tag ids, and insert join
// rows."
func (s *Store) SyncTags(ctx context.Context, joinTable, fkColumn string, recordID int64, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, joinTable, fkColumn), recordID); err != nil {
		return fmt.Errorf("clear %s: %w", joinTable, err)
	}

	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (tag) VALUES (?) ON CONFLICT (tag) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}

		var tagID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag = ?`, tag).Scan(&tagID); err != nil {
			return fmt.Errorf("resolve tag %q: %w", tag, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, joinTable, fkColumn),
			recordID, tagID); err != nil {
			return fmt.Errorf("insert %s row: %w", joinTable, err)
		}
	}

	return tx.Commit()
}

// ResetDataset deletes every row for sourceID from table, used when an
// ingester observes resetRequired (schema bump or DNS-change global reset)
// before it replays the full diff from version zero.
func (s *Store) ResetDataset(ctx context.Context, table string, sourceID int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_id = ?`, table), sourceID)
	if err != nil {
		return fmt.Errorf("reset %s: %w", table, err)
	}
	return nil
}

// RecordExists reports whether a row for (sourceID, pathname) is already
// present in table, used by dataset handlers to decide <kind>-added vs
// <kind>-updated before the upsert runs.
func (s *Store) RecordExists(ctx context.Context, table string, sourceID int64, pathname string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE source_id = ? AND pathname = ?`, table), sourceID, pathname).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
