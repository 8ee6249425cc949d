// Package dnsstore implements the DNSStore consumed interface (spec.md
// §6.1) backed by the same sqlite database as the Index Store, matching
// the teacher's convention of backing every auxiliary store with
// storage/sqlite rather than a second engine.
package dnsstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/driftweb/crawlindex/internal/models"
)

// Binding is the (id, name, lastConfirmedAt, firstConfirmedAt) tuple
// returned by GetCurrentByKey.
type Binding = models.DNSBinding

// Store is the DNSStore contract: current DNS-name <-> archive-key bindings.
type Store interface {
	// GetCurrentByKey returns the current binding for an archive key, or
	// nil if none is on record.
	GetCurrentByKey(ctx context.Context, key string) (*Binding, error)
	// Update records name as the current binding for key, superseding any
	// prior current binding for that key.
	Update(ctx context.Context, name, key string) error
	// Unset clears the current binding for key, if any.
	Unset(ctx context.Context, key string) error
}

// SQLiteStore is the Store implementation backed by the dns_bindings table
// created by store/sqlite's migrations.
type SQLiteStore struct {
	db *sql.DB
}

// New constructs a SQLiteStore over an already-open *sql.DB (the Index
// Store's connection; dnsstore owns no connection of its own).
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetCurrentByKey(ctx context.Context, key string) (*Binding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, first_confirmed_at, last_confirmed_at
		FROM dns_bindings WHERE key = ? AND is_current = 1`, key)

	var b Binding
	b.Key = key
	b.IsCurrent = true
	if err := row.Scan(&b.ID, &b.Name, &b.FirstConfirmedAt, &b.LastConfirmedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// Update marks (name, key) as the current binding. Any previously current
// binding for this key is demoted (not deleted, so history is retained).
func (s *SQLiteStore) Update(ctx context.Context, name, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	if _, err := tx.ExecContext(ctx,
		`UPDATE dns_bindings SET is_current = 0 WHERE key = ? AND is_current = 1`, key); err != nil {
		return err
	}

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM dns_bindings WHERE key = ? AND name = ?`, key, name).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dns_bindings (name, key, is_current, first_confirmed_at, last_confirmed_at)
			VALUES (?, ?, 1, ?, ?)`, name, key, now, now); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE dns_bindings SET is_current = 1, last_confirmed_at = ? WHERE id = ?`, now, existingID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Unset(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE dns_bindings SET is_current = 0 WHERE key = ? AND is_current = 1`, key)
	return err
}

var _ Store = (*SQLiteStore)(nil)
