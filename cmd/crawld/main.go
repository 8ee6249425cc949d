package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/archive"
	"github.com/driftweb/crawlindex/internal/common"
	"github.com/driftweb/crawlindex/internal/coordinator"
	"github.com/driftweb/crawlindex/internal/crawlerr"
	"github.com/driftweb/crawlindex/internal/datasets"
	"github.com/driftweb/crawlindex/internal/dnsstore"
	"github.com/driftweb/crawlindex/internal/events"
	"github.com/driftweb/crawlindex/internal/queue"
	"github.com/driftweb/crawlindex/internal/scheduler"
	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	showVersion = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("crawlindex version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER): load config -> apply CLI overrides
	// (none beyond -config itself today) -> init logger -> print banner.
	if len(configFiles) == 0 {
		if _, err := os.Stat("crawlindex.toml"); err == nil {
			configFiles = append(configFiles, "crawlindex.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	common.PrintBanner(config, logger)

	store, err := sqlite.Open(logger, config.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open index store")
	}
	defer store.Close()

	dns := dnsstore.New(store.DB())
	bus := events.NewBus(logger)
	registry := datasets.NewRegistry()
	registerIngesters(registry, bus, store, logger)

	loader := unavailableArchiveLoader(logger)
	crawl := coordinator.New(store, dns, store.Locker(), bus, registry, logger, config.Crawler.DebounceInterval, loader)

	requests, err := queue.NewGoqiteQueue(store.DB())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open crawl-request queue")
	}
	dispatcher := queue.NewDispatcher(requests, crawl, logger, time.Second)

	graph := scheduler.NewSQLiteGraph(store, store)
	users := staticUserRegistry{origin: config.User.Origin}
	sched := scheduler.New(users, graph, crawl, logger, config.Scheduler.TickCron, config.Scheduler.TargetsPerTick)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start crawl scheduler")
	}

	ctx, cancelDispatcher := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)

	logger.Info().Msg("crawlindex ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")
	sched.Stop()
	cancelDispatcher()
	common.PrintShutdownBanner(logger)
}

// registerIngesters wires every dataset ingester named in SPEC_FULL.md §3
// into registry, in the order the dataset catalogue table lists them.
func registerIngesters(registry *datasets.Registry, bus *events.Bus, store *sqlite.Store, logger arbor.ILogger) {
	ingesters := []datasets.Ingester{
		datasets.NewPostsIngester(bus, store, logger),
		datasets.NewBookmarksIngester(bus, store, logger),
		datasets.NewFollowsIngester(bus, store, store, logger),
		datasets.NewReactionsIngester(bus, store, logger),
		datasets.NewDiscussionsIngester(bus, store, logger),
		datasets.NewCommentsIngester(bus, store, logger),
		datasets.NewMediaIngester(bus, store, logger),
		datasets.NewVotesIngester(bus, store, logger),
		datasets.NewPublishedSitesIngester(bus, store, logger),
		datasets.NewSiteDescriptionsIngester(bus, store, logger),
	}
	for _, ing := range ingesters {
		if err := registry.Register(ing); err != nil {
			logger.Fatal().Err(err).Str("dataset", ing.Tag()).Msg("failed to register dataset ingester")
		}
	}
}

// unavailableArchiveLoader stands in for the archive daemon integration
// (spec.md §6.1's ArchiveHandle), which is supplied by the browser shell
// process and out of scope for this module: it returns a clear
// ArchiveUnreadable error rather than silently doing nothing, so a
// misconfigured scheduler/dispatcher fails loudly during development.
func unavailableArchiveLoader(logger arbor.ILogger) coordinator.ArchiveLoader {
	return func(_ context.Context, origin string) (archive.Handle, error) {
		logger.Warn().Str("origin", origin).Msg("no archive daemon connection wired; cannot load archive")
		return nil, crawlerr.New(crawlerr.KindArchiveUnreadable, "archive daemon integration not configured for %s", origin)
	}
}

// staticUserRegistry implements scheduler.UserRegistry over the
// statically configured [user].origin, standing in for a live session
// until the browser shell supplies a real UserRegistry.
type staticUserRegistry struct {
	origin string
}

func (s staticUserRegistry) ActiveUserOrigin(_ context.Context) (string, error) {
	return s.origin, nil
}

var _ scheduler.UserRegistry = staticUserRegistry{}
