// Package coordinator implements the Crawl Coordinator (spec.md §4.1):
// the in-memory watch table of per-archive subscriptions, the 5-second
// trailing-edge debounced crawl trigger, DNS-change detection, and the
// fan-out to every registered dataset ingester under the per-archive
// named lock. Grounded on the teacher's jobs.Runner lifecycle (lock,
// resolve, dispatch, release, never throw) generalized from one job to
// one crawl session across N dataset ingesters.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/datasets"
	"github.com/driftweb/crawlindex/internal/dnsstore"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/models"
)

// CrawlSourceStore is the Index Store surface the Coordinator needs for
// CrawlSource lifecycle and state listing.
type CrawlSourceStore interface {
	GetOrCreateCrawlSource(ctx context.Context, origin string, dnsBindingID int64) (*models.CrawlSource, error)
	UpdateDNSBinding(ctx context.Context, sourceID, dnsBindingID int64) error
	DeleteCrawlSource(ctx context.Context, origin string) error
	ListCrawlSources(ctx context.Context) ([]models.CrawlSource, error)
	ListCrawlSourceMeta(ctx context.Context, sourceID int64) ([]models.CrawlSourceMeta, error)
	GetBestSiteDescription(ctx context.Context, subjectURL string) (title, description string, err error)
}

// Locker acquires the fair, FIFO per-archive crawl lock.
type Locker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// watchEntry is one archive's in-memory watch-table row. limiter caps how
// often this origin's trailing-edge timer may actually dispatch a crawl,
// on top of the coalescing the timer itself does — a burst of watch
// invalidations interleaved with scheduler/dispatcher-triggered crawls
// can otherwise still land closer together than debounceInterval.
type watchEntry struct {
	archive    archive.Handle
	cancel     func()
	limiter    *rate.Limiter
	debounceMu sync.Mutex
	timer      *time.Timer
}

// Coordinator owns the in-memory watch table and every crawl operation.
// Every exported method is safe for concurrent use; the watch table
// itself is mutated only here (spec.md §5's "shared resource policy").
type Coordinator struct {
	store    CrawlSourceStore
	dns      dnsstore.Store
	locker   Locker
	bus      *events.Bus
	registry *datasets.Registry
	logger   arbor.ILogger
	load     ArchiveLoader

	debounceInterval time.Duration

	mu      sync.Mutex
	watched map[string]*watchEntry // keyed by canonical origin
}

// ArchiveLoader resolves a canonical origin to a loaded archive handle,
// loading it on demand. Supplied by the out-of-scope archive daemon
// integration; wired in by cmd/crawld. Both the write->crawl mailbox
// dispatcher and the Scheduler address archives by origin, not by handle.
type ArchiveLoader func(ctx context.Context, origin string) (archive.Handle, error)

// New constructs a Coordinator.
func New(store CrawlSourceStore, dns dnsstore.Store, locker Locker, bus *events.Bus, registry *datasets.Registry, logger arbor.ILogger, debounceInterval time.Duration, load ArchiveLoader) *Coordinator {
	if debounceInterval <= 0 {
		debounceInterval = 5 * time.Second
	}
	return &Coordinator{
		store:            store,
		dns:              dns,
		locker:           locker,
		bus:              bus,
		registry:         registry,
		logger:           logger,
		load:             load,
		debounceInterval: debounceInterval,
		watched:          make(map[string]*watchEntry),
	}
}

// Watch subscribes to an archive's invalidation stream, idempotently. If
// already watched, this is a no-op (spec.md §4.1).
func (c *Coordinator) Watch(ctx context.Context, ah archive.Handle) error {
	origin := archive.CanonicalOrigin(ah.URL())

	c.mu.Lock()
	if _, already := c.watched[origin]; already {
		c.mu.Unlock()
		return nil
	}

	entry := &watchEntry{archive: ah, limiter: rate.NewLimiter(rate.Every(c.debounceInterval), 1)}
	c.watched[origin] = entry
	c.mu.Unlock()

	invalidations, cancel, err := ah.Watch(ctx)
	if err != nil {
		c.mu.Lock()
		delete(c.watched, origin)
		c.mu.Unlock()
		return err
	}
	entry.cancel = cancel

	go c.watchLoop(origin, entry, invalidations)

	c.bus.Publish(events.Event{Kind: events.KindWatch, SourceURL: origin})

	go func() {
		if err := c.Crawl(context.Background(), ah); err != nil {
			c.logger.Warn().Err(err).Str("origin", origin).Msg("initial crawl on watch failed")
		}
	}()
	return nil
}

// watchLoop applies the 5-second trailing-edge debounce: an invalidation
// event schedules a crawl debounceInterval in the future, coalescing any
// further events that arrive before the timer fires.
func (c *Coordinator) watchLoop(origin string, entry *watchEntry, ch <-chan archive.Event) {
	for range ch {
		entry.debounceMu.Lock()
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.timer = time.AfterFunc(c.debounceInterval, func() {
			if err := entry.limiter.Wait(context.Background()); err != nil {
				return
			}
			if err := c.Crawl(context.Background(), entry.archive); err != nil {
				c.logger.Warn().Err(err).Str("origin", origin).Msg("debounced crawl failed")
			}
		})
		entry.debounceMu.Unlock()
	}
}

// Unwatch closes the archive's change subscription and removes its watch
// entry. Idempotent.
func (c *Coordinator) Unwatch(origin string) {
	origin = archive.CanonicalOrigin(origin)

	c.mu.Lock()
	entry, ok := c.watched[origin]
	if ok {
		delete(c.watched, origin)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.debounceMu.Lock()
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.debounceMu.Unlock()

	c.bus.Publish(events.Event{Kind: events.KindUnwatch, SourceURL: origin})
}

// CrawlOrigin satisfies queue.Crawler for the write->crawl mailbox
// dispatcher: resolve origin to a loaded archive handle via the
// Coordinator's ArchiveLoader, then run a normal crawl.
func (c *Coordinator) CrawlOrigin(ctx context.Context, origin string) error {
	ah, err := c.load(ctx, origin)
	if err != nil {
		return fmt.Errorf("load archive %s: %w", origin, err)
	}
	return c.Crawl(ctx, ah)
}

// Crawl runs one crawl session against ah: resolve CrawlSource, detect DNS
// change, fan out to every registered dataset ingester in parallel, and
// release the per-archive lock in all paths. A failure is published as a
// crawl-error event and also returned; the watch and debounce paths, and
// the callers of CrawlOrigin (the queue dispatcher and the scheduler),
// log it rather than propagating it further.
func (c *Coordinator) Crawl(ctx context.Context, ah archive.Handle) error {
	origin := archive.CanonicalOrigin(ah.URL())

	release, err := c.locker.Lock(ctx, "crawl:"+origin)
	if err != nil {
		return err
	}
	defer release()

	c.bus.Publish(events.Event{Kind: events.KindCrawlStart, SourceURL: origin})

	err = c.doCrawl(ctx, ah, origin)

	if err != nil {
		c.bus.Publish(events.Event{Kind: events.KindCrawlError, SourceURL: origin, Err: err})
	} else {
		c.bus.Publish(events.Event{Kind: events.KindCrawlFinish, SourceURL: origin})
	}
	return err
}

func (c *Coordinator) doCrawl(ctx context.Context, ah archive.Handle, origin string) error {
	// DNSStore.GetCurrentByKey is keyed by the archive's own stable
	// identity (its origin), not by the human-readable DNS name Domain()
	// returns — Domain() is the *value* a binding's Name field holds, the
	// "key" argument is what that name currently resolves to.
	var dnsBindingID int64
	if c.dns != nil {
		if binding, err := c.dns.GetCurrentByKey(ctx, origin); err == nil && binding != nil {
			dnsBindingID = binding.ID
		}
	}

	cs, err := c.store.GetOrCreateCrawlSource(ctx, origin, dnsBindingID)
	if err != nil {
		return fmt.Errorf("resolve crawl source: %w", err)
	}

	if dnsBindingID != 0 && cs.DNSBindingID != 0 && dnsBindingID != cs.DNSBindingID {
		cs.GlobalResetRequired = true
		c.bus.Publish(events.Event{Kind: events.KindCrawlDNSChange, SourceURL: origin})
	}

	if err := c.fanOut(ctx, ah, cs); err != nil {
		return err
	}

	if dnsBindingID != 0 && dnsBindingID != cs.DNSBindingID {
		if err := c.store.UpdateDNSBinding(ctx, cs.ID, dnsBindingID); err != nil {
			return fmt.Errorf("persist dns binding: %w", err)
		}
	}
	return nil
}

// fanOut dispatches every registered dataset ingester concurrently,
// awaiting all (the Coordinator's Promise.all-equivalent semantics): one
// ingester's error aborts the session but every other ingester's
// already-applied checkpoints remain in place.
func (c *Coordinator) fanOut(ctx context.Context, ah archive.Handle, cs *models.CrawlSource) error {
	ingesters := c.registry.All()
	errs := make([]error, len(ingesters))

	var wg sync.WaitGroup
	for i, ing := range ingesters {
		wg.Add(1)
		go func(i int, ing datasets.Ingester) {
			defer wg.Done()
			errs[i] = ing.Crawl(ctx, ah, cs)
		}(i, ing)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// ResetSite acquires the archive lock and deletes the CrawlSource row,
// cascading every derived row. Re-crawling is the caller's responsibility.
func (c *Coordinator) ResetSite(ctx context.Context, origin string) error {
	origin = archive.CanonicalOrigin(origin)

	release, err := c.locker.Lock(ctx, "crawl:"+origin)
	if err != nil {
		return err
	}
	defer release()

	if err := c.store.DeleteCrawlSource(ctx, origin); err != nil {
		if errors.Is(err, crawlerr.NotFound) {
			return nil
		}
		return err
	}
	return nil
}

// CrawlState is one source's summary row, as returned by ListCrawlStates.
type CrawlState struct {
	Origin          string
	Title           string // the source's own site-description title, if crawled
	DatasetVersions map[string]int
	UpdatedAt       int64 // max CrawlSourceMeta.UpdatedAt across every dataset, epoch ms
}

// ListCrawlStates returns, for every known source, its origin, self-title,
// a mapping dataset -> crawlDatasetVersion, and the most recent checkpoint
// timestamp across all datasets (spec.md §4.1's crawl-state listing).
func (c *Coordinator) ListCrawlStates(ctx context.Context) ([]CrawlState, error) {
	sources, err := c.store.ListCrawlSources(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CrawlState, 0, len(sources))
	for _, cs := range sources {
		metas, err := c.store.ListCrawlSourceMeta(ctx, cs.ID)
		if err != nil {
			return nil, err
		}
		versions := make(map[string]int, len(metas))
		var updatedAt int64
		for _, m := range metas {
			versions[m.DatasetTag] = m.CrawlDatasetVersion
			if m.UpdatedAt > updatedAt {
				updatedAt = m.UpdatedAt
			}
		}

		title, _, err := c.store.GetBestSiteDescription(ctx, cs.Origin)
		if err != nil {
			return nil, err
		}

		out = append(out, CrawlState{Origin: cs.Origin, Title: title, DatasetVersions: versions, UpdatedAt: updatedAt})
	}
	return out, nil
}

// Events returns a subscription to the Coordinator's event bus.
func (c *Coordinator) Events() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}
