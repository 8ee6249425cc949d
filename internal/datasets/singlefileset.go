package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/ingest"
	"github.com/driftweb/crawlindex/internal/models"
)

// EdgeStore is the narrow edge-table surface single-file-set ingesters
// and the published-sites ingester share (follow_edges,
// published_site_edges both have this shape).
type EdgeStore interface {
	ListEdgeDestinations(ctx context.Context, table string, sourceID int64) ([]string, error)
	InsertEdge(ctx context.Context, table string, sourceID int64, dest string, crawledAt int64) error
	DeleteEdge(ctx context.Context, table string, sourceID int64, dest string) error
	ResetDataset(ctx context.Context, table string, sourceID int64) error
}

// SingleFileSetSpec describes one canonical-path URL-array dataset
// (spec.md §4.3.2): follows.
type SingleFileSetSpec struct {
	Tag           string
	SchemaVersion int
	CanonicalPath string
	EdgeTable     string
}

// SingleFileSetIngester implements the single-file-set ingestion shape:
// one canonical path holds an array of origin URLs, diffed against the
// currently indexed edge set for the source.
type SingleFileSetIngester struct {
	spec   SingleFileSetSpec
	bus    *events.Bus
	ckpt   ingest.Checkpointer
	edges  EdgeStore
	logger arbor.ILogger

	pathRegex *regexp.Regexp
}

// NewSingleFileSetIngester constructs a single-file-set ingester.
func NewSingleFileSetIngester(spec SingleFileSetSpec, bus *events.Bus, ckpt ingest.Checkpointer, edges EdgeStore, logger arbor.ILogger) *SingleFileSetIngester {
	return &SingleFileSetIngester{
		spec:      spec,
		bus:       bus,
		ckpt:      ckpt,
		edges:     edges,
		logger:    logger,
		pathRegex: regexp.MustCompile("^" + regexp.QuoteMeta(spec.CanonicalPath) + "$"),
	}
}

func (s *SingleFileSetIngester) Tag() string { return s.spec.Tag }

func (s *SingleFileSetIngester) Crawl(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	return ingest.DoCrawl(ctx, s.bus, s.ckpt, ah, cs, s.spec.Tag, s.spec.SchemaVersion,
		func(ctx context.Context, changes []archive.DiffEntry, win ingest.Window) error {
			return s.handle(ctx, ah, cs, changes, win)
		})
}

func (s *SingleFileSetIngester) handle(ctx context.Context, ah archive.Handle, cs *models.CrawlSource, changes []archive.DiffEntry, win ingest.Window) error {
	touched := ingest.GetMatchingChangesInOrder(changes, s.pathRegex)

	if win.ResetRequired {
		if err := s.edges.ResetDataset(ctx, s.spec.EdgeTable, cs.ID); err != nil {
			return err
		}
	}
	if len(touched) == 0 {
		// No diff entry touched the canonical path: the shared scaffold's
		// final checkpoint already advances to the current version.
		return nil
	}

	last := touched[len(touched)-1]
	if last.Type == archive.DiffDel {
		// canonical file removed entirely: every prior edge is gone
		existing, err := s.edges.ListEdgeDestinations(ctx, s.spec.EdgeTable, cs.ID)
		if err != nil {
			return err
		}
		for _, dest := range existing {
			if err := s.edges.DeleteEdge(ctx, s.spec.EdgeTable, cs.ID, dest); err != nil {
				return err
			}
			s.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: s.spec.Tag, Pathname: dest})
		}
		return nil
	}

	data, err := ah.ReadFile(ctx, s.spec.CanonicalPath)
	if err != nil {
		return crawlerr.Wrap(crawlerr.KindArchiveUnreadable, err, "read %s", s.spec.CanonicalPath)
	}

	var list models.CanonicalURLList
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&list); err != nil {
		s.logger.Warn().Err(err).Str("path", s.spec.CanonicalPath).Msg("skipping invalid canonical list file")
		return nil
	}
	if err := models.Validator().Struct(list); err != nil {
		s.logger.Warn().Err(err).Str("path", s.spec.CanonicalPath).Msg("skipping invalid canonical list file")
		return nil
	}

	wanted := make(map[string]bool, len(list.URLs))
	for _, raw := range list.URLs {
		if origin := archive.CanonicalOrigin(raw); origin != "" {
			wanted[origin] = true
		}
	}

	existing, err := s.edges.ListEdgeDestinations(ctx, s.spec.EdgeTable, cs.ID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, dest := range existing {
		have[dest] = true
	}

	now := time.Now().UnixMilli()
	for origin := range wanted {
		if have[origin] {
			continue
		}
		if err := s.edges.InsertEdge(ctx, s.spec.EdgeTable, cs.ID, origin, now); err != nil {
			if errors.Is(err, crawlerr.UniqueConstraint) {
				s.logger.Warn().Str("dest", origin).Msg("edge insert race, continuing")
				continue
			}
			return err
		}
		s.bus.Publish(events.Event{Kind: events.KindRecordAdded, SourceURL: cs.Origin, Dataset: s.spec.Tag, Pathname: origin})
	}
	for dest := range have {
		if wanted[dest] {
			continue
		}
		if err := s.edges.DeleteEdge(ctx, s.spec.EdgeTable, cs.ID, dest); err != nil {
			return err
		}
		s.bus.Publish(events.Event{Kind: events.KindRecordRemoved, SourceURL: cs.Origin, Dataset: s.spec.Tag, Pathname: dest})
	}
	return nil
}

var _ Ingester = (*SingleFileSetIngester)(nil)
