package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

const siteDescriptionsSchemaVersion = 1

// ownDatPath is the archive's own self-description file.
const ownDatPath = "/dat.json"

// knownSitePathRegex matches a captured description of another origin
// (spec.md §4.3.3's "/data/known_sites/<hostname>/dat.json").
var knownSitePathRegex = regexp.MustCompile(`^/data/known_sites/([^/]+)/dat\.json$`)

// siteDescriptionsPathRegex matches either watched path.
var siteDescriptionsPathRegex = regexp.MustCompile(`^(/dat\.json|/data/known_sites/[^/]+/dat\.json)$`)

// SiteDescriptionStore is the narrow store surface this ingester needs.
type SiteDescriptionStore interface {
	ingest.Checkpointer
	UpsertSiteDescription(ctx context.Context, sourceID int64, pathname, subjectURL, title, description, typeLabel string, createdAt, crawledAt int64) error
	DeleteSiteDescription(ctx context.Context, sourceID int64, subjectURL string) error
}

// SiteDescriptionsIngester implements spec.md §4.3.3: the subject URL is
// derived from the path (the archive's own origin for /dat.json, or the
// captured hostname for /data/known_sites/<hostname>/dat.json), and rows
// are upserted keyed on (sourceId, subjectUrl) rather than pathname.
type SiteDescriptionsIngester struct {
	bus    *events.Bus
	store  SiteDescriptionStore
	logger arbor.ILogger
}

// NewSiteDescriptionsIngester constructs the site-descriptions ingester.
func NewSiteDescriptionsIngester(bus *events.Bus, store SiteDescriptionStore, logger arbor.ILogger) *SiteDescriptionsIngester {
	return &SiteDescriptionsIngester{bus: bus, store: store, logger: logger}
}

func (d *SiteDescriptionsIngester) Tag() string { return "site-descriptions" }

func (d *SiteDescriptionsIngester) Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	return ingest.DoCrawl(ctx, d.bus, d.store, ah, cs, d.Tag(), siteDescriptionsSchemaVersion,
		func(ctx context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			return d.handle(ctx, ah, cs, changes, win)
		})
}

func (d *SiteDescriptionsIngester) handle(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, changes []archive.DiffEntry, win ingest.Window) error {
	matching := ingest.GetMatchingChangesInOrder(changes, siteDescriptionsPathRegex)
	for i, change := range matching {
		subject := d.subjectURLFor(cs.Origin, change.Name)
		if subject == "" {
			continue
		}

		if change.Type == archive.DiffDel {
			if err := d.store.DeleteSiteDescription(ctx, cs.ID, subject); err != nil {
				return err
			}
			d.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: d.Tag(), Pathname: change.Name})
		} else {
			if err := d.applyPut(ctx, ah, cs, change.Name, subject); err != nil {
				if errors.Is(err, crawlerr.ArchiveUnreadable) {
					return err
				}
				d.logger.Warn().Err(err).Str("path", change.Name).Msg("skipping invalid site description")
			}
		}

		if err := ingest.DoCheckpoint(ctx, d.store, cs.ID, d.Tag(), siteDescriptionsSchemaVersion, ingest.VersionOrFallback(change, win.End-1)); err != nil {
			return err
		}
		ingest.EmitProgressEvent(d.bus, cs.Origin, d.Tag(), i+1, len(matching))
	}
	return nil
}

func (d *SiteDescriptionsIngester) applyPut(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, pathname, subject string) error {
	data, err := ah.ReadFile(ctx, pathname)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", pathname)
	}

	var payload models.SiteDescription
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "decode %s", pathname)
	}
	if err := models.Validator().Struct(payload); err != nil {
		return crawlerr.Wrap(crawlerr.KindValidationFailed, err, "validate %s", pathname)
	}

	createdAt := ingest.NormalizeTimestamp(payload.CreatedAt)
	return d.store.UpsertSiteDescription(ctx, cs.ID, pathname, subject, payload.Title, payload.Description, payload.Type, createdAt, time.Now().UnixMilli())
}

func siteDescriptionLockName(archiveURL string) string {
	return datasetLockName("site-descriptions", archiveURL)
}

// SetOwnSiteDescription overwrites the archive's own /dat.json and
// enqueues a re-crawl (spec.md §6.4's site-description edit operation).
func SetOwnSiteDescription(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL string, description models.SiteDescription) error {
	release, err := locker.Lock(ctx, siteDescriptionLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	if description.CreatedAt == "" {
		description.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := writeJSON(ctx, ah, ownDatPath, description); err != nil {
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}

// SetKnownSiteDescription writes (or overwrites) a captured description of
// hostname under /data/known_sites/<hostname>/dat.json and enqueues a
// re-crawl.
func SetKnownSiteDescription(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, hostname string, description models.SiteDescription) error {
	release, err := locker.Lock(ctx, siteDescriptionLockName(archiveURL))
	if err != nil {
		return err
	}
	defer release()

	if description.CreatedAt == "" {
		description.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := writeJSON(ctx, ah, knownSiteDatPath(hostname), description); err != nil {
		return err
	}
	return enqueueCrawl(ctx, requests, archiveURL)
}

// RemoveKnownSiteDescription deletes the captured description of hostname
// and enqueues a re-crawl.
func RemoveKnownSiteDescription(ctx context.Context, locker NamedLocker, requests CrawlRequests, ah ArchiveWriter, archiveURL, hostname string) error {
	return RemoveRecord(ctx, locker, requests, ah, "site-descriptions", archiveURL, knownSiteDatPath(hostname))
}

func knownSiteDatPath(hostname string) string {
	return "/data/known_sites/" + strings.ToLower(hostname) + "/dat.json"
}

// subjectURLFor derives the subject origin a description path is about:
// the archive's own origin for /dat.json, or the captured hostname,
// lowercased, as hyper://hostname (no trailing slash) for a known_sites
// capture.
func (d *SiteDescriptionsIngester) subjectURLFor(ownOrigin, pathname string) string {
	if pathname == ownDatPath {
		return ownOrigin
	}
	m := knownSitePathRegex.FindStringSubmatch(pathname)
	if m == nil {
		return ""
	}
	host := strings.ToLower(m[1])
	return "hyper://" + host
}
