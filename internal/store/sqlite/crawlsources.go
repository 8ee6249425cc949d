package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/models"
)

// GetOrCreateCrawlSource resolves the CrawlSource row for origin, inserting
// one (with dnsBindingID) if it does not yet exist, per spec.md §4.1 step 3.
func (s *Store) GetOrCreateCrawlSource(ctx context.Context, origin string, dnsBindingID int64) (*models.CrawlSource, error) {
	cs, err := s.GetCrawlSourceByOrigin(ctx, origin)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, crawlerr.NotFound) {
		return nil, err
	}

	var dnsArg any
	if dnsBindingID != 0 {
		dnsArg = dnsBindingID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO crawl_sources (origin, dns_binding_id) VALUES (?, ?)`, origin, dnsArg)
	if err != nil {
		return nil, fmt.Errorf("insert crawl_source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("crawl_source last insert id: %w", err)
	}
	return &models.CrawlSource{ID: id, Origin: origin, DNSBindingID: dnsBindingID}, nil
}

// GetCrawlSourceByOrigin looks up a CrawlSource by canonical origin.
func (s *Store) GetCrawlSourceByOrigin(ctx context.Context, origin string) (*models.CrawlSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, origin, COALESCE(dns_binding_id, 0) FROM crawl_sources WHERE origin = ?`, origin)
	var cs models.CrawlSource
	if err := row.Scan(&cs.ID, &cs.Origin, &cs.DNSBindingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, crawlerr.New(crawlerr.KindNotFound, "crawl source %q", origin)
		}
		return nil, fmt.Errorf("query crawl_source: %w", err)
	}
	return &cs, nil
}

// UpdateDNSBinding persists a new dns_binding_id on an existing CrawlSource,
// called after a successful crawl following DNS-change detection
// (spec.md §4.1 step 6).
func (s *Store) UpdateDNSBinding(ctx context.Context, sourceID, dnsBindingID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crawl_sources SET dns_binding_id = ? WHERE id = ?`, dnsBindingID, sourceID)
	return err
}

// DeleteCrawlSource removes a CrawlSource and (via ON DELETE CASCADE) every
// derived row, per spec.md's resetSite operation.
func (s *Store) DeleteCrawlSource(ctx context.Context, origin string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawl_sources WHERE origin = ?`, origin)
	if err != nil {
		return fmt.Errorf("delete crawl_source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return crawlerr.New(crawlerr.KindNotFound, "crawl source %q", origin)
	}
	return nil
}

// GetCrawlSourceMeta loads the checkpoint for (sourceID, datasetTag), if any.
func (s *Store) GetCrawlSourceMeta(ctx context.Context, sourceID int64, datasetTag string) (*models.CrawlSourceMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, dataset_tag, crawl_source_version, crawl_dataset_version, updated_at
		 FROM crawl_source_meta WHERE source_id = ? AND dataset_tag = ?`, sourceID, datasetTag)
	var m models.CrawlSourceMeta
	if err := row.Scan(&m.SourceID, &m.DatasetTag, &m.CrawlSourceVersion, &m.CrawlDatasetVersion, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query crawl_source_meta: %w", err)
	}
	return &m, nil
}

// PutCrawlSourceMeta is an idempotent replace of the one-row-per-key
// checkpoint (spec.md §4.2 step 5 and §4.3.1's fine-grained checkpoint).
func (s *Store) PutCrawlSourceMeta(ctx context.Context, sourceID int64, datasetTag string, sourceVersion int64, datasetVersion int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_source_meta (source_id, dataset_tag, crawl_source_version, crawl_dataset_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_id, dataset_tag) DO UPDATE SET
			crawl_source_version = excluded.crawl_source_version,
			crawl_dataset_version = excluded.crawl_dataset_version,
			updated_at = excluded.updated_at`,
		sourceID, datasetTag, sourceVersion, datasetVersion, time.Now().UnixMilli())
	return err
}

// ListCrawlSources returns every known CrawlSource, for the Coordinator's
// listCrawlStates and the Scheduler's candidate-list resolution.
func (s *Store) ListCrawlSources(ctx context.Context) ([]models.CrawlSource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, origin, COALESCE(dns_binding_id, 0) FROM crawl_sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CrawlSource
	for rows.Next() {
		var cs models.CrawlSource
		if err := rows.Scan(&cs.ID, &cs.Origin, &cs.DNSBindingID); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ListCrawlSourceMeta returns every checkpoint row for sourceID, used to
// assemble the dataset -> crawlDatasetVersion mapping in listCrawlStates.
func (s *Store) ListCrawlSourceMeta(ctx context.Context, sourceID int64) ([]models.CrawlSourceMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, dataset_tag, crawl_source_version, crawl_dataset_version, updated_at
		 FROM crawl_source_meta WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CrawlSourceMeta
	for rows.Next() {
		var m models.CrawlSourceMeta
		if err := rows.Scan(&m.SourceID, &m.DatasetTag, &m.CrawlSourceVersion, &m.CrawlDatasetVersion, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
