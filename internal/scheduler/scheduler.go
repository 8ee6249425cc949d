// Package scheduler implements the Crawl Scheduler (spec.md §4.5): a
// user-session ticker that recomputes a priority-ordered candidate list
// every tick and dispatches the next windowed slice of it to the
// Coordinator. Grounded on the teacher's scheduler.Service — robfig/cron
// drives the tick, a mutex-guarded struct field survives across ticks —
// generalized from the teacher's named job registry (RegisterJob,
// LoadJobDefinitions, stale-job detection) down to the single recurring
// tick this component needs.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/models"
)

// defaultTargetsPerTick is N in spec.md §4.5 step 3, overridable via
// [scheduler].targets_per_tick.
const defaultTargetsPerTick = 10

// defaultTickCron is the default cron spec: every 5 seconds, overridable
// via [scheduler].tick_cron.
const defaultTickCron = "@every 5s"

// UserRegistry yields the active user's origin (spec.md §6.1). Only a
// single active user session is supported.
type UserRegistry interface {
	ActiveUserOrigin(ctx context.Context) (string, error)
}

// Graph is the follow-graph surface the Scheduler needs to build the
// priority-ordered candidate list: self, direct follows, published sites,
// friends-of-friends.
type Graph interface {
	// ResolveSourceID looks up the CrawlSource id for origin. ok is false
	// if origin has never been crawled (e.g. a follow not yet indexed).
	ResolveSourceID(ctx context.Context, origin string) (id int64, ok bool, err error)
	Follows(ctx context.Context, sourceID int64) ([]string, error)
	Published(ctx context.Context, sourceID int64) ([]string, error)
}

// Crawler dispatches a crawl by origin, resolving to a loaded archive
// handle itself. Coordinator.CrawlOrigin satisfies this (shared with
// internal/queue.Crawler).
type Crawler interface {
	CrawlOrigin(ctx context.Context, origin string) error
}

// SourceResolver is the narrow Index Store surface SQLiteGraph needs.
type SourceResolver interface {
	GetCrawlSourceByOrigin(ctx context.Context, origin string) (*models.CrawlSource, error)
}

// EdgeReader is the narrow Index Store surface SQLiteGraph needs to read
// follow_edges / published_site_edges.
type EdgeReader interface {
	ListEdgeDestinations(ctx context.Context, table string, sourceID int64) ([]string, error)
}

// SQLiteGraph implements Graph over the Index Store's crawl-source lookup
// and generic edge-table reader.
type SQLiteGraph struct {
	sources SourceResolver
	edges   EdgeReader
}

// NewSQLiteGraph constructs a SQLiteGraph.
func NewSQLiteGraph(sources SourceResolver, edges EdgeReader) *SQLiteGraph {
	return &SQLiteGraph{sources: sources, edges: edges}
}

func (g *SQLiteGraph) ResolveSourceID(ctx context.Context, origin string) (int64, bool, error) {
	cs, err := g.sources.GetCrawlSourceByOrigin(ctx, origin)
	if err != nil {
		if errors.Is(err, crawlerr.NotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return cs.ID, true, nil
}

func (g *SQLiteGraph) Follows(ctx context.Context, sourceID int64) ([]string, error) {
	return g.edges.ListEdgeDestinations(ctx, "follow_edges", sourceID)
}

func (g *SQLiteGraph) Published(ctx context.Context, sourceID int64) ([]string, error) {
	return g.edges.ListEdgeDestinations(ctx, "published_site_edges", sourceID)
}

var _ Graph = (*SQLiteGraph)(nil)

// Service runs the 5-second candidate-list tick.
type Service struct {
	users         UserRegistry
	graph         Graph
	crawler       Crawler
	logger        arbor.ILogger
	tickCron      string
	targetsPerTick int

	cron *cron.Cron

	mu     sync.Mutex
	cursor int
}

// New constructs a Service. tickCron defaults to "@every 5s" and
// targetsPerTick to 10 when zero-valued.
func New(users UserRegistry, graph Graph, crawler Crawler, logger arbor.ILogger, tickCron string, targetsPerTick int) *Service {
	if tickCron == "" {
		tickCron = defaultTickCron
	}
	if targetsPerTick <= 0 {
		targetsPerTick = defaultTargetsPerTick
	}
	return &Service{
		users:          users,
		graph:          graph,
		crawler:        crawler,
		logger:         logger,
		tickCron:       tickCron,
		targetsPerTick: targetsPerTick,
	}
}

// Start registers the tick function with robfig/cron and starts it. Not
// safe to call twice on the same Service.
func (s *Service) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.tickCron, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight tick to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// tick is the robfig/cron entry point: any error is logged and swallowed
// (spec.md §4.5 step 5, "on any unhandled tick error, log and continue").
func (s *Service) tick() {
	if err := s.RunOnce(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler tick failed")
	}
}

// RunOnce executes a single tick: recompute the candidate list, select
// the next windowed slice, and dispatch a crawl to each target in
// parallel, awaiting all. Exported so callers (and tests) can drive a
// tick deterministically without waiting on the cron clock.
func (s *Service) RunOnce(ctx context.Context) error {
	candidates, err := s.buildCandidateList(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	targets := s.nextWindow(candidates)

	var wg sync.WaitGroup
	for _, origin := range targets {
		wg.Add(1)
		go func(origin string) {
			defer wg.Done()
			if err := s.crawler.CrawlOrigin(ctx, origin); err != nil {
				s.logger.Warn().Err(err).Str("origin", origin).Msg("scheduled crawl failed")
			}
		}(origin)
	}
	wg.Wait()
	return nil
}

// buildCandidateList implements spec.md §4.5 step 1-2: self, then direct
// follows, then published sites, then friends-of-friends, deduplicated
// while preserving first-seen order. Recomputed fresh every tick so the
// database is always the source of truth.
func (s *Service) buildCandidateList(ctx context.Context) ([]string, error) {
	self, err := s.users.ActiveUserOrigin(ctx)
	if err != nil {
		return nil, err
	}
	if self == "" {
		return nil, nil
	}
	self = archive.CanonicalOrigin(self)

	seen := map[string]bool{self: true}
	ordered := []string{self}

	selfID, ok, err := s.graph.ResolveSourceID(ctx, self)
	if err != nil {
		return nil, err
	}
	if !ok {
		// self has never been crawled yet: it's still the sole candidate.
		return ordered, nil
	}

	follows, err := s.graph.Follows(ctx, selfID)
	if err != nil {
		return nil, err
	}
	appendNew(&ordered, seen, follows)

	published, err := s.graph.Published(ctx, selfID)
	if err != nil {
		return nil, err
	}
	appendNew(&ordered, seen, published)

	for _, f := range follows {
		fid, ok, err := s.graph.ResolveSourceID(ctx, f)
		if err != nil || !ok {
			continue
		}
		foaf, err := s.graph.Follows(ctx, fid)
		if err != nil {
			continue
		}
		appendNew(&ordered, seen, foaf)
	}
	return ordered, nil
}

func appendNew(ordered *[]string, seen map[string]bool, items []string) {
	for _, item := range items {
		origin := archive.CanonicalOrigin(item)
		if seen[origin] {
			continue
		}
		seen[origin] = true
		*ordered = append(*ordered, origin)
	}
}

// nextWindow selects the next N candidates starting at the cursor,
// wrapping once past the end of the list, and advances the cursor.
func (s *Service) nextWindow(candidates []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(candidates)
	count := s.targetsPerTick
	if count > n {
		count = n
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, candidates[(s.cursor+i)%n])
	}
	s.cursor = (s.cursor + count) % n
	return out
}
